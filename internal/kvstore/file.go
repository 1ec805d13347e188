// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileStore keeps all keys in one JSON object on disk. Every operation
// re-reads the file under an flock(2) lock so several hub processes sharing
// a data directory see each other's writes.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileStore opens (or creates) a JSON store at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Get returns the value for key.
func (s *FileStore) Get(key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.withLock(false, func(m map[string]string) bool {
		value, ok = m[key]
		return false
	})
	return value, ok, err
}

// Set creates or replaces key.
func (s *FileStore) Set(key, value string) error {
	return s.withLock(true, func(m map[string]string) bool {
		m[key] = value
		return true
	})
}

// Remove deletes key.
func (s *FileStore) Remove(key string) error {
	return s.withLock(true, func(m map[string]string) bool {
		if _, ok := m[key]; !ok {
			return false
		}
		delete(m, key)
		return true
	})
}

// ListKeys returns the sorted keys starting with prefix.
func (s *FileStore) ListKeys(prefix string) ([]string, error) {
	var keys []string
	err := s.withLock(false, func(m map[string]string) bool {
		keys = keysWithPrefix(m, prefix)
		return false
	})
	return keys, err
}

// Close is a no-op; the lock is only held for the duration of an operation.
func (s *FileStore) Close() error {
	return nil
}

// withLock loads the map under the file lock, runs fn and persists the map
// when fn reports a change.
func (s *FileStore) withLock(exclusive bool, fn func(map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if exclusive {
		err = s.lock.Lock()
	} else {
		err = s.lock.RLock()
	}
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	m, err := s.load()
	if err != nil {
		return err
	}
	if fn(m) && exclusive {
		return s.save(m)
	}
	return nil
}

func (s *FileStore) load() (map[string]string, error) {
	m := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", s.path, err)
	}
	return m, nil
}

func (s *FileStore) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
