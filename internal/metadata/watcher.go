package metadata

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called when an entity's current metadata changes on
// disk. name is the store name of the affected entity.
type EventCallback func(name string)

// Watch starts an fsnotify watcher on the store root and reports
// out-of-band changes to current metadata files until ctx is
// cancelled. The store is a plain directory tree, so operators can
// update it behind the service's back (for example through a git
// checkout); the watcher keeps connected clients in sync with such
// edits.
//
// New entity directories created at runtime are automatically added to
// the watch list.
func Watch(ctx context.Context, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("store watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("store watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("store watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			if filepath.Base(ev.Name) != currentFile {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			rel, relErr := filepath.Rel(root, filepath.Dir(ev.Name))
			if relErr != nil || rel == "." || strings.HasPrefix(rel, "..") {
				continue
			}

			logger.Debug("store watcher: metadata changed", slog.String("name", rel))
			if cb != nil {
				cb(rel)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("store watcher: error", slog.String("error", err.Error()))
		}
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
