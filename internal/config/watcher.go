package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/moolen/sre-assistant/internal/logging"
)

// ReloadCallback receives every configuration that loads and validates after
// the watched file changes. An error is logged and watching continues.
type ReloadCallback func(cfg *Config) error

// Watcher re-reads the config file when it changes and hands valid results to
// a callback. Bursts of events from editors are debounced into one reload.
// Invalid files are logged and skipped; the previous configuration stays in
// effect.
type Watcher struct {
	path     string
	debounce time.Duration
	callback ReloadCallback
	logger   *logging.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for path. A zero debounce defaults to 500ms.
func NewWatcher(path string, debounce time.Duration, callback ReloadCallback) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Name implements lifecycle.Component.
func (w *Watcher) Name() string {
	return "config-watcher"
}

// Start begins watching and returns once the fsnotify watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case <-time.After(5 * time.Second):
		cancel()
		return fmt.Errorf("timeout waiting for config watcher to initialize")
	}
}

func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.ErrorWithErr("failed to create file watcher", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		w.logger.Error("failed to watch %s: %v", w.path, err)
		return
	}

	w.logger.Debug("watching %s for changes (debounce %s)", w.path, w.debounce)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic saves replace the inode; the watch must be re-added.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.path); err != nil {
					w.logger.Warn("failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("failed to reload config, keeping previous: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("reloaded config is invalid, keeping previous: %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.Warn("reload callback failed: %v", err)
		return
	}
	w.logger.Info("config reloaded from %s", w.path)
}

// Stop ends the watch loop, waiting up to five seconds.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for config watcher to stop")
	}
}
