package mirror

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aldmark/skald/internal/apperr"
	"github.com/aldmark/skald/internal/models"
)

// SetBookmark stores bookmark number at headingIndex (1-based) of the
// given note, denormalizing the heading text for later drift resolution.
// Numbers are user-chosen; setting an existing number moves it.
func (db *DB) SetBookmark(number int, noteID string, headingIndex int) (*models.Bookmark, error) {
	headings, err := db.Headings(noteID)
	if err != nil {
		return nil, err
	}
	if headingIndex < 1 || headingIndex > len(headings) {
		return nil, fmt.Errorf("mirror: heading %d of note %s: %w", headingIndex, noteID, apperr.ErrBounds)
	}

	b := models.Bookmark{
		Number:       number,
		NoteID:       noteID,
		HeadingIndex: headingIndex,
		HeadingText:  headings[headingIndex-1].Text,
	}
	_, err = db.conn.Exec(`
		INSERT INTO bookmarks (number, note_id, heading_index, heading_text)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET
			note_id       = excluded.note_id,
			heading_index = excluded.heading_index,
			heading_text  = excluded.heading_text
	`, b.Number, b.NoteID, b.HeadingIndex, b.HeadingText)
	if err != nil {
		return nil, fmt.Errorf("mirror: set bookmark: %w", err)
	}
	return &b, nil
}

// RemoveBookmark deletes bookmark number. Missing numbers are a no-op.
func (db *DB) RemoveBookmark(number int) error {
	if _, err := db.conn.Exec(`DELETE FROM bookmarks WHERE number = ?`, number); err != nil {
		return fmt.Errorf("mirror: remove bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns all bookmarks ordered by number.
func (db *DB) ListBookmarks() ([]models.Bookmark, error) {
	rows, err := db.conn.Query(
		`SELECT number, note_id, heading_index, heading_text FROM bookmarks ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("mirror: list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []models.Bookmark
	for rows.Next() {
		var b models.Bookmark
		if err := rows.Scan(&b.Number, &b.NoteID, &b.HeadingIndex, &b.HeadingText); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindBookmark resolves bookmark number against the note's current
// heading list. When edits have shifted the stored index away from the
// stored text, the list is scanned for a text match and the stored index
// (and, for a loose match, the stored text) is repaired before returning.
// A bookmark whose text no longer appears anywhere is orphaned: it is
// removed and apperr.ErrOrphaned is returned.
func (db *DB) FindBookmark(number int) (*ResolvedBookmark, error) {
	var b models.Bookmark
	err := db.conn.QueryRow(
		`SELECT number, note_id, heading_index, heading_text FROM bookmarks WHERE number = ?`, number).
		Scan(&b.Number, &b.NoteID, &b.HeadingIndex, &b.HeadingText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mirror: find bookmark: %w", err)
	}

	note, err := db.GetNote(b.NoteID)
	if errors.Is(err, apperr.ErrNotFound) {
		// FK cascade should have removed the bookmark already; self-heal.
		_ = db.RemoveBookmark(number)
		return nil, apperr.ErrOrphaned
	}
	if err != nil {
		return nil, err
	}

	headings, err := db.Headings(b.NoteID)
	if err != nil {
		return nil, err
	}

	// Fast path: the stored index still carries the stored text.
	if b.HeadingIndex >= 1 && b.HeadingIndex <= len(headings) &&
		headings[b.HeadingIndex-1].Text == b.HeadingText {
		return &ResolvedBookmark{Bookmark: b, Note: *note, Heading: headings[b.HeadingIndex-1]}, nil
	}

	// Drift: re-resolve by text.
	if idx := matchHeading(headings, b.HeadingText); idx > 0 {
		b.HeadingIndex = idx
		b.HeadingText = headings[idx-1].Text
		if _, err := db.conn.Exec(
			`UPDATE bookmarks SET heading_index = ?, heading_text = ? WHERE number = ?`,
			b.HeadingIndex, b.HeadingText, b.Number); err != nil {
			return nil, fmt.Errorf("mirror: repair bookmark: %w", err)
		}
		return &ResolvedBookmark{Bookmark: b, Note: *note, Heading: headings[idx-1]}, nil
	}

	// No match anywhere: the bookmark is orphaned.
	if err := db.RemoveBookmark(number); err != nil {
		return nil, err
	}
	return nil, apperr.ErrOrphaned
}

// matchHeading finds text in headings, preferring an exact match and
// falling back to a case-insensitive trimmed one. Returns a 1-based
// index, or 0.
func matchHeading(headings []models.Heading, text string) int {
	for i, h := range headings {
		if h.Text == text {
			return i + 1
		}
	}
	want := strings.ToLower(strings.TrimSpace(text))
	for i, h := range headings {
		if strings.ToLower(strings.TrimSpace(h.Text)) == want {
			return i + 1
		}
	}
	return 0
}
