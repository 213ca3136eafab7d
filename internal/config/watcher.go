package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls back when the configuration file changes. It watches the
// parent directory so atomic rename-into-place saves are seen.
type Watcher struct {
	logger   *zap.Logger
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	running bool
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for path.
func NewWatcher(logger *zap.Logger, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		logger:   logger,
		path:     filepath.Clean(path),
		watcher:  fw,
		debounce: DefaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// Start begins watching and calls onChange after each debounced change.
func (w *Watcher) Start(onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.running = true
	go w.handleEvents(onChange)

	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
	return nil
}

// Stop stops watching and cancels any pending reload.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.cancel()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.watcher.Close()
	<-w.done
	w.logger.Info("Configuration watcher stopped")
}

func (w *Watcher) handleEvents(onChange func()) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Config file changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			w.scheduleReload(onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) scheduleReload(onChange func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Info("Reloading configuration", zap.String("path", w.path))
		onChange()
	})
}
