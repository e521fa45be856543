// Package engine implements the note synchronization mediator: it keeps
// vault files, their metadata headers, their filenames, and the
// relational mirror consistent under reentrancy and partial failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aldmark/skald/internal/apperr"
	"github.com/aldmark/skald/internal/checksum"
	"github.com/aldmark/skald/internal/metadata"
	"github.com/aldmark/skald/internal/mirror"
	"github.com/aldmark/skald/internal/models"
	"github.com/aldmark/skald/internal/outline"
	"github.com/aldmark/skald/internal/slug"
	"github.com/aldmark/skald/internal/storage"
)

// Event kinds passed to the Events callback.
const (
	EventSynced           = "synced"
	EventRenamed          = "renamed"
	EventDeleted          = "deleted"
	EventBookmarkOrphaned = "bookmark-orphaned"
)

// Events is called after an engine-driven mutation. For renames, path is
// the new path.
type Events func(kind, path string)

// Engine mediates between vault storage and the relational mirror.
type Engine struct {
	store   storage.Provider
	db      mirror.NoteMirror
	extract outline.Extractor
	norm    *metadata.Normalizer
	logger  *slog.Logger
	guards  *guardSet
	special map[string]struct{}
	batch   int
	notify  Events
}

// Option configures an Engine.
type Option func(*Engine)

// WithSpecialNotes marks vault-relative paths as special: normalized
// without id/tags and excluded from the mirror.
func WithSpecialNotes(paths []string) Option {
	return func(e *Engine) {
		for _, p := range paths {
			e.special[p] = struct{}{}
		}
	}
}

// WithBatchSize sets how many files a bulk-index pass processes before
// yielding.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batch = n
		}
	}
}

// WithEvents sets the mutation callback.
func WithEvents(fn Events) Option {
	return func(e *Engine) { e.notify = fn }
}

// WithClock injects the time source used for timestamps and fresh ids.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.norm.Now = now
		e.norm.NewID = metadata.NewIDGenerator(now).Next
	}
}

// New creates an Engine. A nil extractor is a fatal configuration error:
// without structural parsing the engine would treat every file as
// titleless and re-synthesize headers over user content.
func New(store storage.Provider, db mirror.NoteMirror, extract outline.Extractor, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if extract == nil {
		return nil, apperr.ErrParserUnavailable
	}
	e := &Engine{
		store:   store,
		db:      db,
		extract: extract,
		norm: &metadata.Normalizer{
			Now:   time.Now,
			NewID: metadata.NewIDGenerator(time.Now).Next,
		},
		logger:  logger,
		guards:  newGuardSet(),
		special: make(map[string]struct{}),
		batch:   64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// InFlight reports whether a pipeline currently owns path. The watcher
// uses this to drop filesystem events fired by the engine's own writes.
func (e *Engine) InFlight(path string) bool {
	return e.guards.inFlight(path)
}

func (e *Engine) isSpecial(p string) bool {
	if _, ok := e.special[p]; ok {
		return true
	}
	_, ok := e.special[path.Base(p)]
	return ok
}

func (e *Engine) emit(kind, path string) {
	if e.notify != nil {
		e.notify(kind, path)
	}
}

// SyncNote runs the full save pipeline for path. A sync already in
// flight for the same path drops this trigger and returns (nil, nil).
func (e *Engine) SyncNote(ctx context.Context, notePath string) (*models.Note, error) {
	fg, ok := e.guards.acquire(notePath)
	if !ok {
		e.logger.Debug("sync: dropped re-entrant trigger", slog.String("path", notePath))
		return nil, nil
	}
	defer e.guards.release(notePath)
	return e.runSave(ctx, notePath, fg)
}

// runSave is the guarded pipeline body:
// Formatting → TitleEnsuring → MetadataNormalizing → MirrorSyncing →
// RenameChecking, each stage free to short-circuit back to idle.
func (e *Engine) runSave(ctx context.Context, notePath string, fg *fileGuard) (*models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := e.store.Read(notePath)
	if err != nil {
		// Read failure aborts before any mirror mutation.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("engine: %s: %w", notePath, apperr.ErrNotFound)
		}
		return nil, err
	}
	special := e.isSpecial(notePath)

	fg.state = stateFormatting
	content := formatBuffer(string(raw))

	fg.state = stateTitleEnsuring
	o := e.extract(content)

	fg.state = stateMetadataNormalizing
	stored, err := e.storedNote(notePath)
	if err != nil {
		return nil, err
	}
	var st *metadata.Stored
	if stored != nil {
		st = &metadata.Stored{Created: stored.Created, Updated: stored.Updated}
	}

	newContent, blk, _ := e.norm.Normalize(content, &o, st, special, false)
	if !special && blk.ID == "" {
		// Self-heal: one forced pass to synthesize an id.
		o = e.extract(newContent)
		newContent, blk, _ = e.norm.Normalize(newContent, &o, st, special, true)
		if blk.ID == "" {
			return nil, apperr.ErrIdentifierMissing
		}
	}

	if newContent != string(raw) {
		// Both guards go up before the write: the write below re-triggers
		// the very hook that runs this pipeline.
		fg.updatingFrontmatter = true
		fg.updatingDB = true
		if err := e.store.Write(notePath, []byte(newContent)); err != nil {
			// Write failure: never advance to MirrorSyncing.
			return nil, err
		}
		e.logger.Debug("sync: header normalized", slog.String("path", notePath))
		o = e.extract(newContent)
	}

	if special {
		// Special notes are normalized but never mirrored.
		return nil, nil
	}

	final := []byte(newContent)
	if stored != nil && !checksum.Changed(final, stored.Hash) {
		// The rename check runs even when content is unchanged: a prior
		// rename failure must not leave the filename non-canonical until
		// the content happens to change.
		fg.state = stateRenameChecking
		if newName, due := slug.PlanRename(notePath, stored.ID, stored.Title); due {
			fg.updatingFrontmatter = true
			fg.updatingDB = true
			renamed := *stored
			if err := e.execRename(&renamed, notePath, newName); err != nil {
				e.logger.Warn("sync: rename failed",
					slog.String("path", notePath),
					slog.String("target", newName),
					slog.String("error", err.Error()))
				return &renamed, err
			}
			return &renamed, nil
		}
		e.logger.Debug("sync: unchanged", slog.String("path", notePath))
		return stored, nil
	}

	fg.state = stateMirrorSyncing
	fg.updatingDB = true
	note := models.Note{
		ID:       blk.ID,
		Filename: notePath,
		Title:    o.Title(),
		Hash:     checksum.Sum(final),
		Created:  parseStamp(blk.Created, e.norm.Now()),
		Updated:  parseStamp(blk.Updated, e.norm.Now()),
	}
	if err := e.db.UpsertNote(note, o.Headings); err != nil {
		return nil, err
	}

	fg.state = stateRenameChecking
	if newName, due := slug.PlanRename(notePath, note.ID, note.Title); due {
		// Deferred relative to the save: the file is written and indexed
		// by now, and the rename runs to completion once started.
		if err := e.execRename(&note, notePath, newName); err != nil {
			e.logger.Warn("sync: rename failed",
				slog.String("path", notePath),
				slog.String("target", newName),
				slog.String("error", err.Error()))
			return &note, err
		}
	}

	e.emit(EventSynced, note.Filename)
	return &note, nil
}

// execRename performs the planned rename: mirror filename first, then the
// filesystem. A filesystem failure rolls the mirror back best-effort.
func (e *Engine) execRename(note *models.Note, oldPath, newPath string) error {
	if err := e.db.UpdateFilename(note.ID, newPath); err != nil {
		return err
	}
	if err := e.store.Move(oldPath, newPath); err != nil {
		if revertErr := e.db.UpdateFilename(note.ID, oldPath); revertErr != nil {
			e.logger.Warn("sync: rename rollback failed",
				slog.String("path", oldPath),
				slog.String("error", revertErr.Error()))
		}
		return err
	}
	note.Filename = newPath
	e.logger.Info("sync: renamed",
		slog.String("from", oldPath),
		slog.String("to", newPath))
	e.emit(EventRenamed, newPath)
	return nil
}

// OpenNote runs the lighter focus/open pipeline: only if the on-disk
// mtime strictly exceeds the mirror's stored updated stamp does it
// re-hash and re-sync. Unknown files get the full save pipeline.
func (e *Engine) OpenNote(ctx context.Context, notePath string) (*models.Note, error) {
	if e.isSpecial(notePath) {
		return nil, nil
	}
	stored, err := e.storedNote(notePath)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return e.SyncNote(ctx, notePath)
	}

	info, err := e.store.Stat(notePath)
	if err != nil {
		return nil, err
	}
	if !checksum.DiskNewer(info.ModTime, stored.Updated) {
		return stored, nil
	}

	fg, ok := e.guards.acquire(notePath)
	if !ok {
		return nil, nil
	}
	defer e.guards.release(notePath)
	return e.runRefresh(ctx, notePath, stored, fg)
}

// runRefresh re-runs change detection, mirror sync, and the rename check
// without rewriting the header.
func (e *Engine) runRefresh(ctx context.Context, notePath string, stored *models.Note, fg *fileGuard) (*models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := e.store.Read(notePath)
	if err != nil {
		return nil, err
	}
	if !checksum.Changed(raw, stored.Hash) {
		return stored, nil
	}

	o := e.extract(string(raw))
	blk := metadata.FromOutline(&o)

	id := blk.ID
	if id == "" {
		id = stored.ID
	}

	fg.state = stateMirrorSyncing
	fg.updatingDB = true
	note := models.Note{
		ID:       id,
		Filename: notePath,
		Title:    o.Title(),
		Hash:     checksum.Sum(raw),
		Created:  parseStamp(blk.Created, stored.Created),
		Updated:  parseStamp(blk.Updated, e.norm.Now()),
	}
	if err := e.db.UpsertNote(note, o.Headings); err != nil {
		return nil, err
	}

	fg.state = stateRenameChecking
	if newName, due := slug.PlanRename(notePath, note.ID, note.Title); due {
		if err := e.execRename(&note, notePath, newName); err != nil {
			return &note, err
		}
	}

	e.emit(EventSynced, note.Filename)
	return &note, nil
}

// DeleteNote removes a note file and its mirror row; headings and
// bookmarks cascade. A file already gone from disk still gets its mirror
// row removed.
func (e *Engine) DeleteNote(ctx context.Context, notePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.store.Delete(notePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return e.FileRemoved(notePath)
}

// FileRemoved drops the mirror row for a path whose backing file has
// disappeared.
func (e *Engine) FileRemoved(notePath string) error {
	id, err := e.db.DeleteByFilename(notePath)
	if err != nil {
		return err
	}
	if id != "" {
		e.logger.Debug("sync: mirror row removed", slog.String("path", notePath))
		e.emit(EventDeleted, notePath)
	}
	return nil
}

// storedNote fetches the mirror row for a filename, mapping not-found to
// nil.
func (e *Engine) storedNote(notePath string) (*models.Note, error) {
	stored, err := e.db.GetByFilename(notePath)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// formatBuffer applies the Formatting stage: line endings normalized to
// LF.
func formatBuffer(content string) string {
	return strings.ReplaceAll(content, "\r\n", "\n")
}

func parseStamp(s string, fallback time.Time) time.Time {
	if t, ok := metadata.ParseTime(s); ok {
		return t
	}
	return fallback.UTC().Truncate(time.Second)
}
