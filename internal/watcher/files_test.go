// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

func (c *changes) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func newTestWatcher(t *testing.T) (*FileWatcher, *changes) {
	t.Helper()
	rec := &changes{}
	w, err := NewFileWatcher(30*time.Millisecond, rec.add)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, rec
}

func TestFileWatcher_ReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	w, rec := newTestWatcher(t)
	require.NoError(t, w.Add(path))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))
	}

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, abs, rec.list()[0])
}

func TestFileWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	w, rec := newTestWatcher(t)
	require.NoError(t, w.Add(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("y"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.list())
}

func TestFileWatcher_ReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	w, rec := newTestWatcher(t)
	require.NoError(t, w.Add(path))

	tmp := filepath.Join(dir, ".config.txt.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return len(rec.list()) >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_AddRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	w, rec := newTestWatcher(t)
	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(b))

	absDir, _ := filepath.Abs(dir)
	assert.Len(t, w.Files(), 2)
	assert.Equal(t, []string{absDir}, w.Dirs())

	w.Remove(a)
	assert.Equal(t, []string{absDir}, w.Dirs())
	w.Remove(b)
	assert.Empty(t, w.Dirs())
	assert.Empty(t, w.Files())

	require.NoError(t, os.WriteFile(a, []byte("x"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.list())
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	w, _ := newTestWatcher(t)
	err := w.Add(filepath.Join(t.TempDir(), "nope", "file.txt"))
	assert.Error(t, err)
	assert.Empty(t, w.Files())
}

func TestFileWatcher_Close(t *testing.T) {
	w, _ := newTestWatcher(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Add(filepath.Join(t.TempDir(), "x")), ErrClosed)
}
