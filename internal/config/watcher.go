package config

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches config files for changes and invokes a callback after a
// debounce period. It watches each file's parent directory rather than the
// file itself, so it survives editors that replace the file via rename
// (vim, many config-management tools); every write, create or rename in
// those directories is reported, not only the named files.
type Watcher struct {
	watcher      *fsnotify.Watcher
	debounce     time.Duration
	onChange     func(path string)
	mu           sync.Mutex
	pending      map[string]bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWatcher builds a watcher over the directories of the given files. A
// directory that cannot be watched is logged and skipped, not returned as
// an error.
func NewWatcher(paths ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		dir := filepath.Dir(p)
		if err := fsw.Add(dir); err != nil {
			log.Printf("config watcher: failed to watch %s: %v", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		watcher:  fsw,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// OnChange sets the callback invoked (once per debounce window) with the
// path of a changed file.
func (w *Watcher) OnChange(callback func(path string)) {
	w.onChange = callback
}

// Start begins the event and debounce loops.
func (w *Watcher) Start() {
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
}

// Stop halts the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = true
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	if w.onChange == nil {
		return
	}
	for _, p := range paths {
		w.onChange(p)
	}
}
