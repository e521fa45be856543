package api

import (
	"github.com/aldmark/skald/internal/mirror"
	"github.com/aldmark/skald/internal/models"
)

// SyncRequest is the request body for sync and open operations.
type SyncRequest struct {
	Path string `json:"path" example:"topics/hello.md" validate:"required"`
}

// SetBookmarkRequest is the request body for assigning a bookmark slot.
type SetBookmarkRequest struct {
	Path         string `json:"path" example:"topics/hello.md" validate:"required"`
	HeadingIndex int    `json:"heading_index" example:"2" validate:"required"`
}

// NoteDetail is the response payload for a single note with its outline.
type NoteDetail struct {
	Note     models.Note      `json:"note"`
	Headings []models.Heading `json:"headings"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []mirror.SearchResult `json:"results" validate:"required"`
}

// BookmarkListResponse wraps the bookmark table.
type BookmarkListResponse struct {
	Bookmarks []models.Bookmark `json:"bookmarks" validate:"required"`
}

// ResolvedBookmarkResponse is the drift-aware resolution result for one slot.
type ResolvedBookmarkResponse = mirror.ResolvedBookmark
