package engine

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the vault root and feeds file
// change events into the engine until ctx is cancelled. Events for paths
// the engine is currently writing are dropped: they are the engine's own
// writes coming back around.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced reconciliation pass that removes stale
// mirror rows and picks up files that landed under a new name.
func (e *Engine) Watch(ctx context.Context, vaultRoot string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	e.logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			e.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := e.BulkIndex(ctx); err != nil {
				e.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: start watching and index their contents.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						e.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					e.syncNewDir(ctx, vaultRoot, absPath)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if e.InFlight(rel) {
				// Our own write looping back through the filesystem.
				e.logger.Debug("watcher: suppressed self-write", slog.String("path", rel))
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, syncErr := e.SyncNote(ctx, rel); syncErr != nil {
					e.logger.Warn("watcher: sync failed",
						slog.String("path", rel),
						slog.String("error", syncErr.Error()))
					continue
				}
				e.logger.Debug("watcher: synced", slog.String("path", rel))

			case ev.Op&fsnotify.Remove != 0:
				if delErr := e.FileRemoved(rel); delErr != nil {
					e.logger.Warn("watcher: remove failed",
						slog.String("path", rel),
						slog.String("error", delErr.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only; the new
				// path arrives as a separate Create (if it stays inside
				// a watched dir). Drop the old row now and schedule a
				// reconciliation pass for stragglers.
				if delErr := e.FileRemoved(rel); delErr != nil {
					e.logger.Warn("watcher: rename cleanup failed",
						slog.String("path", rel),
						slog.String("error", delErr.Error()))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// syncNewDir indexes any .md files found in a newly created directory.
func (e *Engine) syncNewDir(ctx context.Context, vaultRoot, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if _, syncErr := e.SyncNote(ctx, rel); syncErr == nil {
			e.logger.Debug("watcher: synced from new dir", slog.String("path", rel))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
