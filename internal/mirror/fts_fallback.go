//go:build !sqlite_fts5

package mirror

import (
	"database/sql"
	"fmt"

	"github.com/aldmark/skald/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search falls back to LIKE over the relational
	// tables.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Note, _ []models.Heading) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsUpdateFilename(_ *sql.DB, _, _ string) {}

// Search performs a LIKE-based scan of titles and heading text (fallback
// when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT n.id,
		       n.filename,
		       COALESCE(n.title, ''),
		       COALESCE((SELECT h.text FROM headings h
		                 WHERE h.note_id = n.id AND h.text LIKE ?1
		                 ORDER BY h.line LIMIT 1), COALESCE(n.title, ''))
		FROM notes n
		WHERE n.title LIKE ?1
		   OR EXISTS (SELECT 1 FROM headings h WHERE h.note_id = n.id AND h.text LIKE ?1)
		ORDER BY n.updated DESC
		LIMIT ?2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("mirror: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NoteID, &r.Filename, &r.Title, &r.Match); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
