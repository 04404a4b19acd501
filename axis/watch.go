package axis

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a catalog file into a Registry whenever it changes.
// Invalid files are logged and ignored; the previous catalog stays active.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending bool

	// onReload is called after each reload attempt (tests hook in here).
	onReload func(err error)
}

// NewWatcher creates a watcher for the catalog at path. The parent directory
// is watched so editors that replace the file by rename are handled.
func NewWatcher(path string, registry *Registry, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		registry: registry,
		watcher:  fsw,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// Start begins watching. It returns once the watch is registered; events are
// processed until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.processEvents(ctx)
	w.logger.Info("Catalog watcher started", "path", w.path, "debounce", w.debounce)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Catalog watcher error", "error", err)

		case <-ticker.C:
			w.mu.Lock()
			due := w.pending
			w.pending = false
			w.mu.Unlock()
			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	c, err := LoadCatalog(w.path)
	if err != nil {
		w.logger.Warn("Catalog reload rejected, keeping previous catalog", "path", w.path, "error", err)
	} else {
		w.registry.Replace(c)
		w.logger.Info("Catalog reloaded", "path", w.path, "presets", len(c.IDs()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
