package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aldmark/skald/internal/apperr"
)

func bookmarkNumber(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "number"))
}

// ListBookmarks handles GET /api/bookmarks.
//
//	@Summary		List all bookmark assignments
//	@Tags			bookmarks
//	@Produce		json
//	@Success		200	{object}	BookmarkListResponse
//	@Security		BearerAuth
//	@Router			/bookmarks [get]
func (h *Handler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	bms, err := h.eng.ListBookmarks(r.Context())
	if err != nil {
		slog.Error("list bookmarks failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookmarks": bms,
	})
}

// SetBookmark handles PUT /api/bookmarks/{number}.
//
//	@Summary		Assign a bookmark slot to a heading
//	@Tags			bookmarks
//	@Accept			json
//	@Produce		json
//	@Param			number	path		int					true	"Bookmark slot"
//	@Param			body	body		SetBookmarkRequest	true	"Target note and heading"
//	@Success		200		{object}	models.Bookmark
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bookmarks/{number} [put]
func (h *Handler) SetBookmark(w http.ResponseWriter, r *http.Request) {
	number, err := bookmarkNumber(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid bookmark number"))
		return
	}
	var req SetBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bm, err := h.eng.SetBookmark(r.Context(), number, req.Path, req.HeadingIndex)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrBounds):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody("heading index out of range"))
		default:
			slog.Error("set bookmark failed", slog.Int("number", number), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, bm)
}

// RemoveBookmark handles DELETE /api/bookmarks/{number}.
//
//	@Summary		Clear a bookmark slot
//	@Tags			bookmarks
//	@Param			number	path	int	true	"Bookmark slot"
//	@Success		204		"Bookmark removed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bookmarks/{number} [delete]
func (h *Handler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	number, err := bookmarkNumber(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid bookmark number"))
		return
	}
	if err := h.eng.RemoveBookmark(r.Context(), number); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("remove bookmark failed", slog.Int("number", number), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveBookmark handles GET /api/bookmarks/{number}/resolve.
//
//	@Summary		Resolve a bookmark slot against the current outline
//	@Tags			bookmarks
//	@Produce		json
//	@Param			number	path		int	true	"Bookmark slot"
//	@Success		200		{object}	ResolvedBookmarkResponse
//	@Failure		404		{object}	errResponse
//	@Failure		410		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bookmarks/{number}/resolve [get]
func (h *Handler) ResolveBookmark(w http.ResponseWriter, r *http.Request) {
	number, err := bookmarkNumber(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid bookmark number"))
		return
	}
	res, err := h.eng.ResolveBookmark(r.Context(), number)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrOrphaned):
			writeJSON(w, http.StatusGone, errorBody("bookmark orphaned"))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		default:
			slog.Error("resolve bookmark failed", slog.Int("number", number), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}
