// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when adding files to a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// FileWatcher reports debounced changes to a set of files. It watches the
// parent directories rather than the files themselves so that editors which
// save by writing a new file and renaming it over the old one are noticed.
type FileWatcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	onChange  func(path string)
	files     map[string]bool // absolute file paths
	dirs      map[string]int  // directory -> number of files watched in it
	closed    bool
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewFileWatcher creates a watcher that calls onChange with the absolute
// path of a watched file once writes to it have settled for debounce.
func NewFileWatcher(debounce time.Duration, onChange func(path string)) (*FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &FileWatcher{
		watcher:   fsWatcher,
		debouncer: NewDebouncer(debounce),
		onChange:  onChange,
		files:     make(map[string]bool),
		dirs:      make(map[string]int),
		closeCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Add starts watching path. Adding a path twice has no effect.
func (w *FileWatcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.files[abs] {
		return nil
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Remove stops watching path.
func (w *FileWatcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.files[abs] {
		return
	}
	delete(w.files, abs)
	w.debouncer.Cancel(abs)

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if !w.closed {
			_ = w.watcher.Remove(dir)
		}
	}
}

// Files returns the watched files, sorted.
func (w *FileWatcher) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedKeys(w.files)
}

// Dirs returns the watched directories, sorted.
func (w *FileWatcher) Dirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return sortedKeys(w.dirs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close stops the watcher. Pending notifications are dropped.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.debouncer.Stop()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *FileWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("FileWatcher: %v", err)
		}
	}
}

func (w *FileWatcher) handleEvent(event fsnotify.Event) {
	// Chmod fires on plain reads on some platforms; Remove and Rename
	// leave nothing to report until the file is created again.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	path := filepath.Clean(event.Name)
	w.mu.RLock()
	watched := w.files[path]
	w.mu.RUnlock()
	if !watched {
		return
	}

	w.debouncer.Debounce(path, func() { w.onChange(path) })
}
