package nsstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ExternalChangeWatcher watches the base directory tree for filesystem
// events the Coordinator did not itself originate: an operator or another
// process touching backing files directly, bypassing the advisory lock and
// the in-memory node table. It does not attempt to repair anything, only to
// surface the event to the caller for logging/alerting.
type ExternalChangeWatcher struct {
	watcher *fsnotify.Watcher
}

// WatchExternalChanges starts watching dir (and any subdirectories already
// present under it) for create/write/remove/rename events.
func WatchExternalChanges(dir string) (*ExternalChangeWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(w, dir); err != nil {
		w.Close()
		return nil, err
	}
	return &ExternalChangeWatcher{watcher: w}, nil
}

// Run delivers events to onEvent until ctx is done or the watcher errors
// fatally. Watcher errors are delivered to onErr; both callbacks must not
// block for long, since they run on the watcher's own goroutine.
func (w *ExternalChangeWatcher) Run(ctx context.Context, onEvent func(fsnotify.Event), onErr func(error)) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				// New subdirectories created after the watch started need
				// their own watch registered to see events inside them.
				_ = w.watcher.Add(ev.Name)
			}
			onEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			onErr(err)
		}
	}
}

// Close stops the underlying watcher.
func (w *ExternalChangeWatcher) Close() error {
	return w.watcher.Close()
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = addRecursive(w, filepath.Join(root, entry.Name()))
		}
	}
	return nil
}
