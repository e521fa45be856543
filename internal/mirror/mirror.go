// Package mirror projects notes, headings, and bookmarks into a SQLite
// store with cascading deletes, plus title/heading search on top.
package mirror

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aldmark/skald/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id       TEXT PRIMARY KEY,
	filename TEXT UNIQUE NOT NULL,
	title    TEXT,
	hash     TEXT NOT NULL,
	created  DATETIME NOT NULL,
	updated  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS headings (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	text    TEXT NOT NULL,
	level   INTEGER NOT NULL,
	line    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_headings_note ON headings(note_id);

CREATE TABLE IF NOT EXISTS bookmarks (
	number        INTEGER PRIMARY KEY,
	note_id       TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	heading_index INTEGER NOT NULL,
	heading_text  TEXT NOT NULL
);
`

// DB wraps a sql.DB with mirror-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// foreign_keys is forced on: heading and bookmark cascades depend on it.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("mirror: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SearchResult is one hit of a title-or-heading search.
type SearchResult struct {
	NoteID   string `json:"note_id"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Match    string `json:"match"` // matched heading text or title snippet
}

// ResolvedBookmark is the outcome of drift-aware bookmark resolution.
type ResolvedBookmark struct {
	Bookmark models.Bookmark `json:"bookmark"`
	Note     models.Note     `json:"note"`
	Heading  models.Heading  `json:"heading"`
}

// NoteMirror defines the mirror operations the engine and API depend on.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type NoteMirror interface {
	UpsertNote(n models.Note, headings []models.Heading) error
	DeleteNote(id string) error
	DeleteByFilename(filename string) (string, error)
	GetNote(id string) (*models.Note, error)
	GetByFilename(filename string) (*models.Note, error)
	UpdateFilename(id, filename string) error
	Headings(noteID string) ([]models.Heading, error)
	ListNotes(limit, offset int, sort string) ([]models.Note, int, error)
	AllHashes() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	SetBookmark(number int, noteID string, headingIndex int) (*models.Bookmark, error)
	RemoveBookmark(number int) error
	ListBookmarks() ([]models.Bookmark, error)
	FindBookmark(number int) (*ResolvedBookmark, error)
	Close() error
}

// Verify *DB satisfies NoteMirror at compile time.
var _ NoteMirror = (*DB)(nil)
