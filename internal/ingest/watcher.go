package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher monitors one directory for file create/write events and hands
// debounced paths to its handler. Rapid repeated events for the same file
// within the debounce window collapse into a single processing pass.
// Shutdown is graceful: in-flight handler calls finish before Run returns.
type Watcher struct {
	dir      string
	debounce time.Duration
	handle   func(path string)
	logger   logger.Logger

	mu       sync.Mutex
	pending  map[string]*time.Timer
	stopped  bool
	inflight sync.WaitGroup
}

func NewWatcher(dir string, debounce time.Duration, handle func(path string), logger logger.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		handle:   handle,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Existing directory entries are
// scheduled once at startup so files dropped while the service was down,
// and files that never reached completed, get (re)processed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: can't create watcher for %s", err, w.dir)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("%w: can't watch %s", err, w.dir)
	}
	w.logger.Infof("watching %s", w.dir)

	if err := w.scanExisting(); err != nil {
		w.logger.Warnf("%s: initial scan of %s failed", err, w.dir)
	}

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				w.drain()
				return nil
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.schedule(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				w.drain()
				return nil
			}
			w.logger.Errorf("%s: watcher error on %s", err, w.dir)
		}
	}
}

func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.schedule(filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// schedule coalesces events: a pending timer for the same path is pushed
// back instead of firing twice.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.inflight.Add(1)
		w.mu.Unlock()

		defer w.inflight.Done()
		w.handle(path)
	})
}

// drain stops pending timers and waits for in-flight handlers.
func (w *Watcher) drain() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.inflight.Wait()
}
