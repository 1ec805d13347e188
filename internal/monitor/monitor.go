// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package monitor copies watched files to a destination whenever they
// change, keeping a backup of each file as it was when monitoring began.
package monitor

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/wingedpig/instancehub/internal/watcher"
)

// Monitor watches the source files of a rule set.
type Monitor struct {
	log      *log.Logger
	debounce time.Duration

	mu     sync.Mutex
	active map[string]Rule // absolute source path -> rule
	copies int
}

// New creates a monitor that reports progress to out.
func New(out io.Writer, debounce time.Duration) *Monitor {
	return &Monitor{
		log:      log.New(out, "", log.LstdFlags),
		debounce: debounce,
		active:   make(map[string]Rule),
	}
}

// Prepare checks each rule and creates its destination and backup
// directories. Rules whose source directory or file does not exist are
// skipped with a warning. It returns the number of active rules.
func (m *Monitor) Prepare(rules []Rule) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rules {
		if r.DestPath() == r.SourcePath() {
			m.log.Printf("Warning: line %d: destination is the source file itself", r.Line)
			continue
		}
		if info, err := os.Stat(r.Source); err != nil || !info.IsDir() {
			m.log.Printf("Warning: line %d: source directory not found: %s", r.Line, r.Source)
			continue
		}
		if err := os.MkdirAll(r.Dest, 0755); err != nil {
			m.log.Printf("Warning: line %d: %v", r.Line, err)
			continue
		}
		if err := os.MkdirAll(r.Backup, 0755); err != nil {
			m.log.Printf("Warning: line %d: %v", r.Line, err)
			continue
		}
		if _, err := os.Stat(r.SourcePath()); err != nil {
			m.log.Printf("Warning: line %d: source file not found: %s", r.Line, r.SourcePath())
			continue
		}
		m.active[r.SourcePath()] = r
		m.log.Printf("Rule loaded: %s -> %s (backup %s)", r.File, r.Dest, r.Backup)
	}
	return len(m.active)
}

// Backup copies every active source file into its backup directory.
func (m *Monitor) Backup() {
	m.log.Printf("Initial backup")
	for _, r := range m.rules() {
		if err := copyFile(r.SourcePath(), r.BackupPath()); err != nil {
			m.log.Printf("Backup of %s failed: %v", r.File, err)
			continue
		}
		m.log.Printf("Backup written: %s -> %s", r.File, r.BackupPath())
	}
}

// Run watches the active source files until ctx is done, copying each
// changed file to its destination.
func (m *Monitor) Run(ctx context.Context) error {
	w, err := watcher.NewFileWatcher(m.debounce, m.handleChange)
	if err != nil {
		return err
	}
	defer w.Close()

	for _, r := range m.rules() {
		if err := w.Add(r.SourcePath()); err != nil {
			m.log.Printf("Cannot watch %s: %v", r.SourcePath(), err)
		}
	}

	dirs := w.Dirs()
	m.log.Printf("Watching %d directories:", len(dirs))
	for _, d := range dirs {
		m.log.Printf("  %s", d)
	}

	<-ctx.Done()
	m.log.Printf("Monitoring stopped")
	return nil
}

// Copies returns how many change copies have been made.
func (m *Monitor) Copies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies
}

func (m *Monitor) rules() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, 0, len(m.active))
	for _, r := range m.active {
		out = append(out, r)
	}
	return out
}

func (m *Monitor) handleChange(path string) {
	m.mu.Lock()
	r, ok := m.active[path]
	m.mu.Unlock()
	if !ok {
		return
	}

	m.log.Printf("Change detected: %s", r.File)
	dst := r.DestPath()
	if err := copyFile(path, dst); err != nil {
		m.log.Printf("Copy of %s failed: %v", r.File, err)
		return
	}
	// Reloaders that poll mtimes need the destination to look new.
	now := time.Now()
	if err := os.Chtimes(dst, now, now); err != nil {
		m.log.Printf("Touch of %s failed: %v", dst, err)
		return
	}

	m.mu.Lock()
	m.copies++
	m.mu.Unlock()
	m.log.Printf("Copied to %s", dst)
}

// RunFile loads the rules at path, prepares them, makes the initial backup
// and watches until ctx is done.
func RunFile(ctx context.Context, path string, out io.Writer, debounce time.Duration) error {
	m := New(out, debounce)
	m.log.Printf("Starting file monitor (%s)", path)

	rules, errs, err := LoadRules(path)
	if err != nil {
		return err
	}
	for _, e := range errs {
		m.log.Printf("Error: %v", e)
	}
	if m.Prepare(rules) == 0 {
		m.log.Printf("No usable rules in %s, nothing to monitor", path)
		return nil
	}

	m.Backup()
	return m.Run(ctx)
}
