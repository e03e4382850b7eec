package daemon

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"curator/internal/logging"
)

// watchDebounce batches bursts of filesystem events (a rip finishing writes
// many files) into one scan job.
const watchDebounce = 5 * time.Second

// libraryWatcher enqueues a scan job when the library layout changes.
// fsnotify watches are not recursive, so every directory under the library
// roots is registered individually and new directories are added as they
// appear.
type libraryWatcher struct {
	daemon  *Daemon
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending *time.Timer
	done    chan struct{}
}

func newLibraryWatcher(d *Daemon) *libraryWatcher {
	return &libraryWatcher{daemon: d}
}

func (w *libraryWatcher) start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	roots := []string{
		filepath.Join(w.daemon.cfg.Paths.LibraryDir, w.daemon.cfg.Library.MoviesDir),
		filepath.Join(w.daemon.cfg.Paths.LibraryDir, w.daemon.cfg.Library.TVDir),
	}
	watched := 0
	for _, root := range roots {
		if err := addTree(watcher, root); err == nil {
			watched++
		}
	}
	if watched == 0 {
		watcher.Close()
		return os.ErrNotExist
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	go w.loop(ctx)
	return nil
}

func (w *libraryWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addTree(w.watcher, event.Name)
				}
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) || event.Op.Has(fsnotify.Remove) {
				w.kick(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.daemon.logger.Warn("library watcher error", logging.Error(err))
		}
	}
}

// kick arms (or re-arms) the debounce timer; the scan fires once the library
// has been quiet for the debounce window.
func (w *libraryWatcher) kick(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(watchDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.daemon.EnqueueScan(ctx, false); err != nil {
			w.daemon.logger.Warn("watcher scan enqueue failed", logging.Error(err))
			return
		}
		w.daemon.logger.Info("library change detected, scan scheduled")
	})
}

func (w *libraryWatcher) stop() {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
		w.watcher = nil
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
