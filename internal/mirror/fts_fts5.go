//go:build sqlite_fts5

package mirror

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/aldmark/skald/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			note_id UNINDEXED,
			filename UNINDEXED,
			title,
			headings,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, n models.Note, headings []models.Heading) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, n.ID)
	texts := make([]string, len(headings))
	for i, h := range headings {
		texts[i] = h.Text
	}
	_, err := tx.Exec(`INSERT INTO notes_fts (note_id, filename, title, headings) VALUES (?, ?, ?, ?)`,
		n.ID, n.Filename, n.Title, strings.Join(texts, "\n"))
	if err != nil {
		return fmt.Errorf("mirror: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, id)
}

func ftsUpdateFilename(conn *sql.DB, id, filename string) {
	_, _ = conn.Exec(`UPDATE notes_fts SET filename = ? WHERE note_id = ?`, filename, id)
}

// Search performs an FTS5 search across note titles and heading text.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT note_id,
		       filename,
		       title,
		       snippet(notes_fts, 3, '', '', '...', 16)
		FROM notes_fts
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
