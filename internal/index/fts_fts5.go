//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Column weights for bm25: path, title, body, tags, tasks.
const rankExpr = `bm25(shards_fts, 0.0, 10.0, 1.0, 5.0, 2.0)`

func initFTS(conn *sql.DB) error {
	if _, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS shards_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			tags,
			tasks,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`); err != nil {
		return err
	}
	// Backfill shards indexed by a build without FTS5.
	_, err := conn.Exec(`
		INSERT INTO shards_fts (path, title, body, tags, tasks)
		SELECT s.path, s.title, s.body,
		       coalesce((SELECT group_concat(value, ' ') FROM json_each(s.tags)), ''),
		       coalesce((SELECT group_concat(text, ' ') FROM tasks WHERE source = s.path), '')
		FROM shards s
		WHERE s.path NOT IN (SELECT path FROM shards_fts)
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, d ftsDoc) error {
	if _, err := tx.Exec(`DELETE FROM shards_fts WHERE path = ?`, d.path); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	texts := make([]string, len(d.tasks))
	for i, t := range d.tasks {
		texts[i] = t.Text
	}
	_, err := tx.Exec(`INSERT INTO shards_fts (path, title, body, tags, tasks) VALUES (?, ?, ?, ?, ?)`,
		d.path, d.title, d.body, strings.Join(d.tags, " "), strings.Join(texts, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	_, err := tx.Exec(`DELETE FROM shards_fts WHERE path = ?`, path)
	return err
}

// Search runs an FTS5 match. Title hits outrank tag, task and body hits;
// the snippet is cut from the best matching column.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT path, title, snippet(shards_fts, -1, '<b>', '</b>', '...', 64)
		FROM shards_fts
		WHERE shards_fts MATCH ?
		ORDER BY `+rankExpr+`
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
