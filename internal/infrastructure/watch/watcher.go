package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// ChangeEvent represents a filesystem change.
type ChangeEvent struct {
	Path       string
	ChangeType string // "create", "write", "remove", "rename"
}

// FSWatcher watches directories for changes to files whose base name matches
// one of the include globs. Directories are watched rather than files so
// that editors saving via rename are still seen.
type FSWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	include  []string
	onChange func(ChangeEvent)
	logger   *slog.Logger
}

// NewFSWatcher creates a new filesystem watcher. An empty include list
// matches every file.
func NewFSWatcher(debounce time.Duration, include []string, onChange func(ChangeEvent), logger *slog.Logger) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSWatcher{
		watcher:  w,
		debounce: debounce,
		include:  include,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Add starts watching dir.
func (w *FSWatcher) Add(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}

// Close releases the watcher without running it.
func (w *FSWatcher) Close() error {
	return w.watcher.Close()
}

// Matches reports whether path passes the include globs.
func (w *FSWatcher) Matches(path string) bool {
	if len(w.include) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range w.include {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Run starts the event loop. It blocks until the context is cancelled.
// Watcher errors are logged and the loop keeps going.
func (w *FSWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		mu   sync.Mutex
		last ChangeEvent
	)
	debouncer := NewDebouncer(w.debounce, func() {
		mu.Lock()
		e := last
		mu.Unlock()
		if w.onChange != nil {
			w.onChange(e)
		}
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			changeType := opToChangeType(event.Op)
			if changeType == "" || !w.Matches(event.Name) {
				continue
			}
			mu.Lock()
			last = ChangeEvent{Path: event.Name, ChangeType: changeType}
			mu.Unlock()
			debouncer.Trigger()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func opToChangeType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}
