package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the last good configuration of a file current.
//
// The parent directory is watched rather than the file, so editors that
// replace the file on save are followed. An edit that fails to load or
// validate is logged and the previous configuration stays in force.
//
// Thread-safety: Current is safe for concurrent use with Run.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)

	mu      sync.RWMutex
	current *Config
}

// Watch loads path and starts watching it. onChange (which may be nil) is
// called from Run after every successful reload.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     path,
		watcher:  fw,
		onChange: onChange,
		current:  cfg,
	}, nil
}

// Current returns the last good configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping last good config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config reloaded",
		"path", w.path,
		"culture", cfg.Node.Culture,
		"enabled", cfg.Node.Enabled,
		"groups", len(cfg.Node.Groups))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
