package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/agora/internal/checksum"
	"github.com/starford/agora/internal/records"
	"github.com/starford/agora/internal/replica"
	"github.com/starford/agora/internal/urlnorm"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the replica root and keeps the index in
// step with file changes until ctx is cancelled.
//
// A directory created directly under the root is registered as a new replica.
// Rename events trigger a debounced Sync pass that removes index entries whose
// files no longer exist. Files whose content matches the indexed checksum are
// skipped, so records written through the record store are not indexed twice.
func Watch(ctx context.Context, ix *Indexer, reg *replica.Registry, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := reg.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Sync(ctx, ix, reg, logger); err != nil {
				logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					onNewDir(ctx, w, ix, reg, absPath, logger)
					continue
				}
			}

			origin, rel, ok := reg.Resolve(absPath)
			if !ok || records.KindOf(rel) == records.KindUnknown {
				continue
			}
			url := urlnorm.Join(origin, rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				indexChanged(ctx, ix, origin, rel, absPath, kind, logger)

			case ev.Op&fsnotify.Remove != 0:
				if err := ix.Remove(ctx, url); err != nil {
					logger.Warn("watcher: delete failed", slog.String("url", url), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("url", url))
				ix.Emit(Event{Kind: EventDeleted, URL: url, Record: records.KindOf(rel)})

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives
				// as a Create if it stays inside a watched directory.
				if err := ix.Remove(ctx, url); err != nil {
					logger.Warn("watcher: rename delete failed", slog.String("url", url), slog.String("error", err.Error()))
				} else {
					ix.Emit(Event{Kind: EventDeleted, URL: url, Record: records.KindOf(rel)})
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexChanged reads absPath and indexes it unless its content is already indexed.
func indexChanged(ctx context.Context, ix *Indexer, origin, rel, absPath, kind string, logger *slog.Logger) {
	url := urlnorm.Join(origin, rel)
	data, err := os.ReadFile(absPath)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("url", url), slog.String("error", err.Error()))
		return
	}

	stored, err := ix.db.Checksum(ctx, url)
	if err != nil {
		logger.Warn("watcher: checksum lookup failed", slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	if checksum.Equal(stored, data) {
		return
	}

	modTime := time.Now()
	if info, statErr := os.Stat(absPath); statErr == nil {
		modTime = info.ModTime()
	}
	rec, err := ix.IndexFile(ctx, origin, rel, data, modTime)
	if err != nil {
		logger.Warn("watcher: index failed", slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: indexed", slog.String("url", url), slog.String("op", kind))
	ix.Emit(Event{Kind: kind, URL: url, Record: rec.Kind})
}

// onNewDir watches a directory created at runtime and indexes the records
// already inside it. A directory directly under the root becomes a replica.
func onNewDir(ctx context.Context, w *fsnotify.Watcher, ix *Indexer, reg *replica.Registry, dir string, logger *slog.Logger) {
	if filepath.Dir(dir) == reg.Root() {
		if !replica.ValidName(filepath.Base(dir)) {
			return
		}
		origin, err := reg.Create(filepath.Base(dir))
		if err != nil {
			logger.Debug("watcher: ignoring directory", slog.String("path", dir), slog.String("error", err.Error()))
			return
		}
		logger.Info("watcher: replica added", slog.String("origin", origin))
	}

	if err := addDirsRecursive(w, dir); err != nil {
		logger.Warn("watcher: add new dir failed", slog.String("path", dir), slog.String("error", err.Error()))
		return
	}

	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		origin, rel, ok := reg.Resolve(p)
		if !ok || records.KindOf(rel) == records.KindUnknown {
			return nil
		}
		indexChanged(ctx, ix, origin, rel, p, EventCreated, logger)
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
