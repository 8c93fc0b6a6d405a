package mealtime

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/campusmess/messhall/pkg/logger"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads Windows from a YAML file whenever it changes.
type Watcher struct {
	path     string
	fallback *time.Location
	windows  *Windows
	log      *logger.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	changed  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// reloaded is signalled after every reload attempt. Tests hook in here.
	reloaded func(error)
}

// NewWatcher loads path into windows once and prepares a watcher on its
// directory. The directory is watched rather than the file so that editors
// which replace the file on save are still seen.
func NewWatcher(path string, fallback *time.Location, windows *Windows, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NewDefault("mealtime")
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		fallback: fallback,
		windows:  windows,
		log:      log,
		debounce: DefaultDebounce,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		reloaded: func(error) {},
	}
	if err := w.reload(); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw
	return w, nil
}

// Start begins processing file events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
}

// Stop releases the underlying watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			select {
			case w.changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("meal window watcher error")
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.done:
			timer.Stop()
			return
		case <-w.changed:
			timer.Reset(w.debounce)
		case <-timer.C:
			err := w.reload()
			if err != nil {
				w.log.WithError(err).WithField("path", w.path).Warn("meal windows not reloaded, keeping previous")
			} else {
				w.log.WithField("path", w.path).Info("meal windows reloaded")
			}
			w.reloaded(err)
		}
	}
}

func (w *Watcher) reload() error {
	loc, windows, err := LoadFile(w.path, w.fallback)
	if err != nil {
		return err
	}
	return w.windows.Replace(loc, windows)
}
