// Package watch monitors a drop directory and enqueues ingestion jobs for
// CSV files that appear in it.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adlens/adlens/pkg/util"
)

// OnFile is invoked once per settled file. Returning an error leaves the
// file in place for a later retry.
type OnFile func(path string) error

// Watcher monitors one directory for new export files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	onFile   OnFile

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a watcher over dir. Files are reported after their writes have
// settled for the debounce window, so partially-copied files are not picked
// up mid-write.
func New(dir string, onFile OnFile) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}

	return &Watcher{
		watcher:  fsWatcher,
		dir:      absDir,
		debounce: time.Second,
		onFile:   onFile,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run processes any files already present, then blocks handling events until
// the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.scanExisting()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] %v", err)
		}
	}
}

// scanExisting reports files that were dropped before the watcher started.
func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[watch] scan %s: %v", w.dir, err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.schedule(filepath.Join(w.dir, entry.Name()))
		}
	}
}

// schedule (re)arms the debounce timer for a path. Each new write pushes the
// deadline out, so the callback only fires after writes settle.
func (w *Watcher) schedule(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if util.BaseFormat(absPath) != ".csv" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[absPath]; ok {
		timer.Stop()
	}
	w.timers[absPath] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, absPath)
		w.mu.Unlock()

		if _, err := os.Stat(absPath); err != nil {
			return
		}
		if err := w.onFile(absPath); err != nil {
			log.Printf("[watch] %s: %v", filepath.Base(absPath), err)
		}
	})
}
