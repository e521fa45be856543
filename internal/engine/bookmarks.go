package engine

import (
	"context"
	"errors"
	"strconv"

	"github.com/aldmark/skald/internal/apperr"
	"github.com/aldmark/skald/internal/mirror"
	"github.com/aldmark/skald/internal/models"
)

// SetBookmark pins number to headingIndex (1-based) of the note at path.
func (e *Engine) SetBookmark(_ context.Context, number int, notePath string, headingIndex int) (*models.Bookmark, error) {
	note, err := e.db.GetByFilename(notePath)
	if err != nil {
		return nil, err
	}
	return e.db.SetBookmark(number, note.ID, headingIndex)
}

// RemoveBookmark deletes bookmark number.
func (e *Engine) RemoveBookmark(_ context.Context, number int) error {
	return e.db.RemoveBookmark(number)
}

// ListBookmarks returns all bookmarks.
func (e *Engine) ListBookmarks(_ context.Context) ([]models.Bookmark, error) {
	return e.db.ListBookmarks()
}

// ResolveBookmark resolves number to its current (note, heading),
// repairing heading drift along the way. An orphaned bookmark has been
// removed by the time the error returns.
func (e *Engine) ResolveBookmark(_ context.Context, number int) (*mirror.ResolvedBookmark, error) {
	res, err := e.db.FindBookmark(number)
	if errors.Is(err, apperr.ErrOrphaned) {
		e.emit(EventBookmarkOrphaned, strconv.Itoa(number))
	}
	return res, err
}

// Search finds notes whose title or heading text matches query.
func (e *Engine) Search(_ context.Context, query string, limit int) ([]mirror.SearchResult, error) {
	return e.db.Search(query, limit)
}

// ListNotes returns paginated mirror rows.
func (e *Engine) ListNotes(_ context.Context, limit, offset int, sort string) ([]models.Note, int, error) {
	return e.db.ListNotes(limit, offset, sort)
}

// GetNote returns the mirror row plus current headings for a vault path.
func (e *Engine) GetNote(_ context.Context, notePath string) (*models.Note, []models.Heading, error) {
	note, err := e.db.GetByFilename(notePath)
	if err != nil {
		return nil, nil, err
	}
	headings, err := e.db.Headings(note.ID)
	if err != nil {
		return nil, nil, err
	}
	return note, headings, nil
}
