//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

// Without FTS5, search is a LIKE scan over shards and their tasks.
func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, ftsDoc) error { return nil }

func ftsDelete(*sql.Tx, string) error { return nil }

// Search matches query as a substring of the title, prose, tags or any
// task text. Title matches sort first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT path, title, substr(body, 1, 200)
		FROM shards
		WHERE title LIKE ?1 ESCAPE '\'
		   OR body LIKE ?1 ESCAPE '\'
		   OR tags LIKE ?1 ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM tasks WHERE tasks.source = shards.path AND tasks.text LIKE ?1 ESCAPE '\')
		ORDER BY title NOT LIKE ?1 ESCAPE '\', path
		LIMIT ?2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
