package schema

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// LoadInto reads a catalog file and merges it into r.
func (r *Registry) LoadInto(path string) error {
	reports, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	r.Merge(reports)
	r.log().Info("catalog loaded", "path", path, "reports", len(reports))
	return nil
}

// Watch reloads the catalog at path into r whenever it changes, until ctx is
// done. A catalog that fails to parse is logged and the previous reports stay
// registered. The directory is watched rather than the file so editors that
// replace files on save are picked up.
func (r *Registry) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.LoadInto(abs); err != nil {
				r.log().Warn("catalog reload failed, keeping previous reports", "path", abs, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log().Warn("catalog watcher error", "error", err)
		}
	}
}
