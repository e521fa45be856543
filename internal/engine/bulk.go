package engine

import (
	"context"
	"log/slog"

	"github.com/aldmark/skald/internal/slug"
)

// BulkIndex walks the vault and brings the mirror up to date:
//   - new or changed files run the full save pipeline
//   - mirror rows whose file vanished from disk are removed
//
// Work is chunked: after each batch of files the loop yields to ctx so a
// large vault never stalls shutdown or interactive use.
func (e *Engine) BulkIndex(ctx context.Context) error {
	metas, err := e.store.List("")
	if err != nil {
		return err
	}
	hashes, err := e.db.AllHashes()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for i := 0; i < len(metas); i += e.batch {
		end := i + e.batch
		if end > len(metas) {
			end = len(metas)
		}
		for _, m := range metas[i:end] {
			disk[m.Path] = struct{}{}
			if hashes[m.Path] == m.Checksum && !e.needsRename(m.Path) {
				continue
			}
			if _, err := e.SyncNote(ctx, m.Path); err != nil {
				e.logger.Warn("bulk: sync failed",
					slog.String("path", m.Path),
					slog.String("error", err.Error()))
			} else {
				e.logger.Debug("bulk: indexed", slog.String("path", m.Path))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	// A rename during the pass above moves files to their canonical
	// names; resolve stale rows against the mirror's current view.
	current, err := e.db.AllHashes()
	if err != nil {
		return err
	}
	for filename := range current {
		if _, ok := disk[filename]; ok {
			continue
		}
		if _, statErr := e.store.Stat(filename); statErr == nil {
			continue // created by a rename mid-pass
		}
		if err := e.FileRemoved(filename); err != nil {
			e.logger.Warn("bulk: stale row removal failed",
				slog.String("path", filename),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// needsRename reports whether an unchanged file still sits under a
// non-canonical name, e.g. after an earlier rename failure. The rename
// itself runs under the pipeline guard via SyncNote.
func (e *Engine) needsRename(notePath string) bool {
	stored, err := e.storedNote(notePath)
	if err != nil || stored == nil {
		return false
	}
	_, due := slug.PlanRename(notePath, stored.ID, stored.Title)
	return due
}
