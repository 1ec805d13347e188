// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package instance persists instance identity and owns each instance's
// working directory and command file.
package instance

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/wingedpig/instancehub/internal/kvstore"
)

// keyPrefix namespaces instance entries in the key/value store.
const keyPrefix = "instances/"

// Kind selects the scaffolding written for a new instance.
type Kind string

const (
	KindApp     Kind = "app"
	KindMonitor Kind = "monitor"
)

// Instance is a named unit owning a directory and a command list.
type Instance struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Dir  string `json:"dir"`
	Kind Kind   `json:"kind"`
}

// Store maps instance ids to names in a key/value store and to directories
// under a base directory.
type Store struct {
	kv        kvstore.Store
	baseDir   string
	removeAll func(path string) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRemoveAll replaces os.RemoveAll as the function that deletes an
// instance directory.
func WithRemoveAll(fn func(path string) error) StoreOption {
	return func(s *Store) {
		s.removeAll = fn
	}
}

// NewStore creates a store keeping instance directories under baseDir.
func NewStore(kv kvstore.Store, baseDir string, opts ...StoreOption) *Store {
	s := &Store{kv: kv, baseDir: baseDir, removeAll: os.RemoveAll}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseDir returns the directory holding all instance directories.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Create allocates a new instance with a fresh directory and default files.
func (s *Store) Create(name string, kind Kind) (Instance, error) {
	name, err := validateName(name)
	if err != nil {
		return Instance{}, err
	}
	if kind == "" {
		kind = KindApp
	}
	if kind != KindApp && kind != KindMonitor {
		return Instance{}, fmt.Errorf("unknown instance kind %q", kind)
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return Instance{}, &IOError{Op: "create", Path: s.baseDir, Err: err}
	}

	inst := Instance{ID: uuid.NewString(), Name: name, Kind: kind}
	inst.Dir = s.dir(inst.ID)

	// Mkdir, not MkdirAll: an existing directory means an id collision.
	if err := os.Mkdir(inst.Dir, 0755); err != nil {
		return Instance{}, &IOError{Op: "create", Path: inst.Dir, Err: err}
	}

	files := map[string][]byte{CommandsFile: defaultCommands(kind)}
	if kind == KindMonitor {
		files[RulesFile] = defaultRules()
	}
	for file, content := range files {
		path := filepath.Join(inst.Dir, file)
		if err := os.WriteFile(path, content, 0644); err != nil {
			os.RemoveAll(inst.Dir)
			return Instance{}, &IOError{Op: "create", Path: path, Err: err}
		}
	}

	if err := s.kv.Set(keyPrefix+inst.ID, name); err != nil {
		os.RemoveAll(inst.Dir)
		return Instance{}, fmt.Errorf("persist instance: %w", err)
	}

	return inst, nil
}

// Get returns the instance with the given id.
func (s *Store) Get(id string) (Instance, error) {
	if !validID(id) {
		return Instance{}, ErrNotFound
	}
	name, ok, err := s.kv.Get(keyPrefix + id)
	if err != nil {
		return Instance{}, fmt.Errorf("load instance: %w", err)
	}
	if !ok {
		return Instance{}, ErrNotFound
	}
	return s.instance(id, name), nil
}

// Rename changes the display name. The id and directory are unchanged.
func (s *Store) Rename(id, newName string) (Instance, error) {
	newName, err := validateName(newName)
	if err != nil {
		return Instance{}, err
	}
	inst, err := s.Get(id)
	if err != nil {
		return Instance{}, err
	}
	if err := s.kv.Set(keyPrefix+id, newName); err != nil {
		return Instance{}, fmt.Errorf("persist instance: %w", err)
	}
	inst.Name = newName
	return inst, nil
}

// Delete removes the instance from the index and then deletes its directory.
// The caller must stop the instance's processes first. When the directory
// cannot be removed the index entry is still gone and a *DirRemovalError is
// returned.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.kv.Remove(keyPrefix + id); err != nil {
		return fmt.Errorf("remove instance: %w", err)
	}

	dir := s.dir(id)
	if err := s.removeAll(dir); err != nil {
		return &DirRemovalError{ID: id, Dir: dir, Err: err}
	}
	return nil
}

// List returns every instance whose directory still exists, sorted by name.
// Entries whose directory has disappeared are removed from the index.
func (s *Store) List() ([]Instance, error) {
	keys, err := s.kv.ListKeys(keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	instances := make([]Instance, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, keyPrefix)
		if !validID(id) || dirMissing(s.dir(id)) {
			log.Printf("Instance %s: directory missing, pruning from index", id)
			if err := s.kv.Remove(key); err != nil {
				return nil, fmt.Errorf("prune instance %s: %w", id, err)
			}
			continue
		}

		name, ok, err := s.kv.Get(key)
		if err != nil {
			return nil, fmt.Errorf("load instance %s: %w", id, err)
		}
		if !ok {
			continue
		}
		instances = append(instances, s.instance(id, name))
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].Name != instances[j].Name {
			return instances[i].Name < instances[j].Name
		}
		return instances[i].ID < instances[j].ID
	})
	return instances, nil
}

func (s *Store) instance(id, name string) Instance {
	inst := Instance{ID: id, Name: name, Dir: s.dir(id), Kind: KindApp}
	if _, err := os.Stat(filepath.Join(inst.Dir, RulesFile)); err == nil {
		inst.Kind = KindMonitor
	}
	return inst
}

func dirMissing(dir string) bool {
	_, err := os.Stat(dir)
	return errors.Is(err, os.ErrNotExist)
}

func (s *Store) dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// validID rejects anything that is not a UUID so ids arriving over the API
// can never address paths outside the base directory.
func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return "", ErrInvalidName
	}
	return name, nil
}
