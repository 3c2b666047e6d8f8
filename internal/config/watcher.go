package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of events editors emit on save.
const debounceDelay = 300 * time.Millisecond

// Watcher reloads the config file when it changes and applies it to a live Config.
type Watcher struct {
	path string
	cfg  *Config

	mu       sync.Mutex
	handlers []func(*Config)
	lastHash string
}

// NewWatcher creates a watcher for path that updates cfg in place.
func NewWatcher(path string, cfg *Config) *Watcher {
	return &Watcher{path: path, cfg: cfg, lastHash: cfg.Hash()}
}

// OnChange registers a callback invoked with the live config after each reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Run watches the config directory until ctx is done. The directory is watched
// rather than the file so atomic renames are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	target := filepath.Clean(w.path)
	envPath := filepath.Join(filepath.Dir(w.path), EnvFile)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if name != target && name != envPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.Reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config.watch_error", "error", err)
		}
	}
}

// Reload re-reads the file and notifies handlers when the content changed.
// It reports whether the live config was replaced.
func (w *Watcher) Reload() bool {
	next, err := Load(w.path)
	if err != nil {
		slog.Warn("config.reload_failed", "path", w.path, "error", err)
		return false
	}
	hash := next.Hash()

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return false
	}
	w.lastHash = hash
	handlers := append([]func(*Config){}, w.handlers...)
	w.mu.Unlock()

	w.cfg.ReplaceFrom(next)
	slog.Info("config.reloaded", "path", w.path)
	for _, fn := range handlers {
		fn(w.cfg)
	}
	return true
}
