package mirror

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aldmark/skald/internal/apperr"
	"github.com/aldmark/skald/internal/models"
)

// UpsertNote inserts or replaces a note row and fully replaces its
// headings (delete-all, reinsert) within one transaction. Headings are
// never diffed individually.
func (db *DB) UpsertNote(n models.Note, headings []models.Heading) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("mirror: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (id, filename, title, hash, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			title    = excluded.title,
			hash     = excluded.hash,
			created  = excluded.created,
			updated  = excluded.updated
	`, n.ID, n.Filename, n.Title, n.Hash, n.Created, n.Updated)
	if err != nil {
		return fmt.Errorf("mirror: upsert note: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM headings WHERE note_id = ?`, n.ID); err != nil {
		return fmt.Errorf("mirror: clear headings: %w", err)
	}
	if len(headings) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO headings (note_id, text, level, line) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("mirror: prepare heading insert: %w", err)
		}
		defer stmt.Close()
		for _, h := range headings {
			if _, err := stmt.Exec(n.ID, h.Text, h.Level, h.Line); err != nil {
				return fmt.Errorf("mirror: insert heading: %w", err)
			}
		}
	}

	if err := ftsUpsert(tx, n, headings); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteNote removes a note row. Headings and bookmarks go with it via
// foreign-key cascade.
func (db *DB) DeleteNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("mirror: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mirror: delete note: %w", err)
	}

	return tx.Commit()
}

// DeleteByFilename removes the note indexed under filename and returns
// its id. Returns "" when no such row exists.
func (db *DB) DeleteByFilename(filename string) (string, error) {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM notes WHERE filename = ?`, filename).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("mirror: lookup by filename: %w", err)
	}
	return id, db.DeleteNote(id)
}

// GetNote returns the note row for id, or apperr.ErrNotFound.
func (db *DB) GetNote(id string) (*models.Note, error) {
	return db.scanNote(db.conn.QueryRow(
		`SELECT id, filename, title, hash, created, updated FROM notes WHERE id = ?`, id))
}

// GetByFilename returns the note row for filename, or apperr.ErrNotFound.
func (db *DB) GetByFilename(filename string) (*models.Note, error) {
	return db.scanNote(db.conn.QueryRow(
		`SELECT id, filename, title, hash, created, updated FROM notes WHERE filename = ?`, filename))
}

func (db *DB) scanNote(row *sql.Row) (*models.Note, error) {
	var n models.Note
	var title sql.NullString
	err := row.Scan(&n.ID, &n.Filename, &title, &n.Hash, &n.Created, &n.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mirror: scan note: %w", err)
	}
	n.Title = title.String
	return &n, nil
}

// UpdateFilename points the note row at its new filename. The rename
// resolver calls this before touching the filesystem.
func (db *DB) UpdateFilename(id, filename string) error {
	res, err := db.conn.Exec(`UPDATE notes SET filename = ? WHERE id = ?`, filename, id)
	if err != nil {
		return fmt.Errorf("mirror: update filename: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperr.ErrNotFound
	}
	ftsUpdateFilename(db.conn, id, filename)
	return nil
}

// Headings returns a note's headings in document order.
func (db *DB) Headings(noteID string) ([]models.Heading, error) {
	rows, err := db.conn.Query(
		`SELECT text, level, line FROM headings WHERE note_id = ? ORDER BY line`, noteID)
	if err != nil {
		return nil, fmt.Errorf("mirror: headings: %w", err)
	}
	defer rows.Close()

	var out []models.Heading
	for rows.Next() {
		var h models.Heading
		if err := rows.Scan(&h.Text, &h.Level, &h.Line); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListNotes returns paginated note rows plus the total row count.
func (db *DB) ListNotes(limit, offset int, sort string) ([]models.Note, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	orderBy := "updated DESC"
	switch sort {
	case "title":
		orderBy = "title COLLATE NOCASE"
	case "created":
		orderBy = "created DESC"
	case "filename":
		orderBy = "filename"
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("mirror: count notes: %w", err)
	}

	rows, err := db.conn.Query(
		`SELECT id, filename, title, hash, created, updated FROM notes ORDER BY `+orderBy+` LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("mirror: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		var title sql.NullString
		if err := rows.Scan(&n.ID, &n.Filename, &title, &n.Hash, &n.Created, &n.Updated); err != nil {
			return nil, 0, err
		}
		n.Title = title.String
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// AllHashes returns filename → stored hash for every indexed note.
func (db *DB) AllHashes() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT filename, hash FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("mirror: all hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var filename, hash string
		if err := rows.Scan(&filename, &hash); err != nil {
			return nil, err
		}
		out[filename] = hash
	}
	return out, rows.Err()
}
