package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces editor write bursts before reloading.
const DefaultReloadDebounce = 200 * time.Millisecond

// ReloadFunc receives the freshly loaded configuration.
type ReloadFunc func(*Config)

// Watcher reloads the project configuration when the config file
// changes on disk. A reload that fails validation is logged and
// discarded; the previous configuration stays in effect.
type Watcher struct {
	dir      string
	debounce time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
}

// NewWatcher creates a config watcher for the project directory. The
// callback runs on the watcher goroutine after each successful reload.
func NewWatcher(dir string, onReload ReloadFunc) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: DefaultReloadDebounce,
		onReload: onReload,
	}
}

// Start begins watching. It watches the directory rather than the file
// so that delete-and-recreate editors (vim, sed -i) keep working.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go w.run(ctx, fsw)
	return nil
}

// Stop stops watching. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(event) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// isConfigEvent reports whether the event touches the project config.
func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	return name == ".empire-search.yaml" || name == ".empire-search.yml"
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := Load(w.dir)
	if err != nil {
		slog.Warn("config_reload_rejected, keeping previous configuration",
			slog.String("dir", w.dir),
			slog.String("error", err.Error()))
		return
	}

	slog.Info("config_reloaded", slog.String("dir", w.dir))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
