package sshimport

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher re-imports the ssh config whenever it changes. The parent
// directory is watched because editors replace the file on save.
type Watcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
	debounce   time.Duration

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the given ssh config path.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath: configPath,
		watcher:    fsw,
		debounce:   250 * time.Millisecond,
	}, nil
}

// Start runs an initial import and begins watching for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	if err := ImportSSHConfig(runCtx, w.configPath); err != nil {
		log.Warn().Err(err).Str("path", w.configPath).Msg("initial ssh config import failed")
	}
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		log.Warn().Err(err).Str("path", w.configPath).Msg("cannot watch ssh config dir")
	}
	go w.watchLoop(runCtx)
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// debounce: editors emit bursts of events on save
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := ImportSSHConfig(ctx, w.configPath); err != nil {
					log.Error().Err(err).Msg("ssh config re-import failed")
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("ssh config watcher error")
		}
	}
}
