package scannermodule

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/logger"
)

// categoryForPath resolves the top-level category of a path under root.
// Files directly in the root belong to the virtual "_root" category.
func categoryForPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path outside root: %s", path)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 1 {
		return RootCategory, nil
	}
	return parts[0], nil
}

// Watcher marks categories stale when files appear or vanish, so the UI
// can prompt a rescan without polling the disk. It watches the root and
// its top-level category directories only.
type Watcher struct {
	mu      sync.Mutex
	root    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching a root. Returns an error when inotify is
// unavailable.
func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{root: root, watcher: fw, done: make(chan struct{})}
	if err := w.addRootTree(); err != nil {
		fw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addRootTree() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		// Best-effort; a missing watch just means a manual rescan.
		if err := w.watcher.Add(filepath.Join(w.root, entry.Name())); err != nil {
			logger.Debug("Cannot watch %s: %v", entry.Name(), err)
		}
	}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			category, err := categoryForPath(w.root, event.Name)
			if err != nil {
				continue
			}
			w.markStale(category)

			// New top-level directories become categories and get a watch.
			if event.Op&fsnotify.Create != 0 && category == RootCategory {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Debug("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) markStale(category string) {
	db := database.GetDB()
	if db == nil || category == RootCategory {
		return
	}
	if err := db.Model(&database.FolderScanStatus{}).
		Where("category = ?", category).
		Update("is_scanned", false).Error; err != nil {
		logger.Debug("Mark %s stale: %v", category, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.watcher.Close()
}
