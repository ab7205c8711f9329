package bans

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"tgrelay/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads the registry when the ban file is edited by hand.
// It watches the parent directory because Save replaces the file by rename.
type Watcher struct {
	registry *Registry
	path     string
	log      zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the file behind store.
func NewWatcher(registry *Registry, store *FileStore, log zerolog.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		path:     filepath.Clean(store.Path()),
		log:      logger.Component(log, "bans-watcher"),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.log.Debug().Str("path", w.path).Msg("watching ban file")

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("file watcher error")
		}
	}
}

// schedule debounces bursts of events into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		if err := w.registry.Load(); err != nil {
			w.log.Error().Err(err).Msg("reload ban list failed")
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
