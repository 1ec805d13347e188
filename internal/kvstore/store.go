// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package kvstore provides the small persistent key/value store that holds
// instance identity ("instances/<id>" -> display name).
package kvstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wingedpig/instancehub/internal/config"
)

// Store is a string key/value store with prefix listing.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set creates or replaces key.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// ListKeys returns all keys starting with prefix, sorted.
	ListKeys(prefix string) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

// Open opens the backend selected by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.StoreFile:
		return NewFileStore(cfg.Path)
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func keysWithPrefix(m map[string]string, prefix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
