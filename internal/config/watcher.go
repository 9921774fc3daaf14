package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// reloadDebounce coalesces the event bursts editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Watcher re-reads the config file while serve runs and hands the validated
// result to an apply callback. A reload that fails to parse or validate is
// logged and dropped; the previous configuration stays live.
type Watcher struct {
	path  string
	apply func(Config)
	fsw   *fsnotify.Watcher
}

// NewWatcher watches the directory containing path. Watching the directory
// rather than the file survives the rename-over-save strategy most editors
// and atomic writers use.
func NewWatcher(path string, apply func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{path: filepath.Clean(path), apply: apply, fsw: fsw}, nil
}

// Run blocks until ctx is done, applying debounced reloads as the file
// changes. The fsnotify watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fsw.Close() }()

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				reload = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-reload:
			timer = nil
			reload = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("config reload failed: %v", err)
		return
	}
	cfg, err := Load()
	if err != nil {
		log.Printf("config reload rejected, keeping previous: %v", err)
		return
	}
	w.apply(cfg)
}
