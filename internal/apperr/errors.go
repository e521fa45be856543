// Package apperr defines the sentinel error kinds surfaced by the engine.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrParserUnavailable means no outline extractor is wired in. The
	// engine refuses to start in this state: silently treating every file
	// as titleless would re-synthesize headers and corrupt user content.
	ErrParserUnavailable = errors.New("outline extractor unavailable")

	// ErrBounds means an operation referenced a heading index beyond the
	// note's current heading count.
	ErrBounds = errors.New("heading index out of bounds")

	// ErrOrphaned means a bookmark's note or heading no longer resolves.
	// The bookmark is removed before this is returned.
	ErrOrphaned = errors.New("bookmark orphaned")

	// ErrIdentifierMissing means a note still had no id after one
	// normalization pass synthesized one.
	ErrIdentifierMissing = errors.New("note id missing after normalization")
)
