package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gpabois/emerald/internal/apperr"
)

// ShardRow represents a row in the shards table.
type ShardRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskRow is one indexed task. Position orders the tasks of a shard;
// Depth is 0 for top-level tasks and grows with each subtask level.
type TaskRow struct {
	Source   string `json:"source"`
	Position int    `json:"position"`
	Line     int    `json:"line"`
	Depth    int    `json:"depth"`
	Text     string `json:"text"`
	Checked  bool   `json:"checked"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	// Prefix keeps tasks whose source path starts with it.
	Prefix   string
	OpenOnly bool
	Limit    int
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ftsDoc is what the full-text table holds for one shard.
type ftsDoc struct {
	path  string
	title string
	body  string
	tags  []string
	tasks []TaskRow
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertShard replaces a shard, its FTS entry, links and tasks within a transaction.
func (db *DB) UpsertShard(s ShardRow, body string, links []string, tasks []TaskRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if s.Tags == nil {
		s.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(s.Tags)

	_, err = tx.Exec(`
		INSERT INTO shards (path, title, checksum, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, s.Path, s.Title, s.Checksum, string(tagsJSON), body, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert shard: %w", err)
	}

	if err := ftsUpsert(tx, ftsDoc{path: s.Path, title: s.Title, body: body, tags: s.Tags, tasks: tasks}); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, s.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(s.Path, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	_, _ = tx.Exec(`DELETE FROM tasks WHERE source = ?`, s.Path)
	if len(tasks) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO tasks (source, position, line, depth, text, checked) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare task insert: %w", err)
		}
		defer stmt.Close()
		for i, t := range tasks {
			if _, err := stmt.Exec(s.Path, i, t.Line, t.Depth, t.Text, t.Checked); err != nil {
				return fmt.Errorf("index: insert task: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteShard removes a shard, its FTS entry, outgoing links and tasks.
func (db *DB) DeleteShard(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	for _, q := range []string{
		`DELETE FROM links WHERE source = ?`,
		`DELETE FROM tasks WHERE source = ?`,
		`DELETE FROM shards WHERE path = ?`,
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return fmt.Errorf("index: delete shard: %w", err)
		}
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a shard, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM shards WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

func scanShard(row interface{ Scan(...any) error }) (ShardRow, error) {
	var s ShardRow
	var tags string
	if err := row.Scan(&s.Path, &s.Title, &s.Checksum, &tags, &s.UpdatedAt); err != nil {
		return s, err
	}
	_ = json.Unmarshal([]byte(tags), &s.Tags)
	return s, nil
}

// GetShard returns the indexed metadata of one shard.
func (db *DB) GetShard(path string) (*ShardRow, error) {
	row := db.conn.QueryRow(`SELECT path, title, checksum, tags, updated_at FROM shards WHERE path = ?`, path)
	s, err := scanShard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: shard %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get shard: %w", err)
	}
	return &s, nil
}

// ListShards pages through shards ordered by path. A non-empty tag keeps
// only shards carrying it. The total count ignores paging.
func (db *DB) ListShards(limit, offset int, tag string) ([]ShardRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(shards.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM shards `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count shards: %w", err)
	}

	rows, err := db.conn.Query(`SELECT path, title, checksum, tags, updated_at FROM shards `+where+
		` ORDER BY path LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list shards: %w", err)
	}
	defer rows.Close()

	var out []ShardRow
	for rows.Next() {
		s, err := scanShard(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// AllChecksums returns path → checksum for every indexed shard.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM shards`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns all shard paths that link to the given target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Tasks lists indexed tasks ordered by source and position.
func (db *DB) Tasks(f TaskFilter) ([]TaskRow, error) {
	var cond []string
	var args []any
	if f.Prefix != "" {
		cond = append(cond, `source LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(f.Prefix)+"%")
	}
	if f.OpenOnly {
		cond = append(cond, `checked = 0`)
	}
	q := `SELECT source, position, line, depth, text, checked FROM tasks`
	if len(cond) > 0 {
		q += ` WHERE ` + strings.Join(cond, ` AND `)
	}
	q += ` ORDER BY source, position`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRow
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.Source, &t.Position, &t.Line, &t.Depth, &t.Text, &t.Checked); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
