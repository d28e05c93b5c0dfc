package registry

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the registry cache when the manifest file changes on
// disk. Editors rewrite files with remove+rename sequences, so the watch is
// placed on the manifest's directory and filtered by basename, and events
// are debounced before the cache clears.
type Watcher struct {
	service  *Service
	path     string
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for the service's resolved manifest path.
func NewWatcher(service *Service, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		service:  service,
		path:     service.ResolvePath(service.cfg.ManifestPath),
		debounce: debounce,
	}
}

// Start begins watching. Idempotent; returns the fsnotify error if the
// directory cannot be watched (for example when it does not exist yet).
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(watchCtx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()

	base := filepath.Base(w.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.service.logger.Debug(ctx, "manifest changed on disk, clearing registry cache", "path", w.path)
			w.service.ClearCache()
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Stop ends the watch and waits for the run loop to exit. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	watcher := w.watcher
	cancel := w.cancel
	w.watcher = nil
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		watcher.Close()
	}
	w.wg.Wait()
}
