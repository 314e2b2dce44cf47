package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the external configuration store the gateway consumes: a
// CRUD key-value store keyed by connection id. The real implementation
// lives in the surrounding application; MemoryStore covers the CLI and
// tests.
type Store interface {
	// Get returns the config for id, or ErrConnectionNotFound.
	Get(ctx context.Context, id string) (*ConnectionConfig, error)

	// Put creates or replaces the config for cfg.ID.
	Put(ctx context.Context, cfg *ConnectionConfig) error

	// All returns every stored config, ordered by id.
	All(ctx context.Context) ([]*ConnectionConfig, error)

	// Delete removes the config for id. Removing an absent id is not an
	// error.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[string]*ConnectionConfig
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conns: make(map[string]*ConnectionConfig)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*ConnectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.conns[id]
	if !ok {
		return nil, &NotFoundError{ConnectionID: id}
	}
	clone := *cfg
	return &clone, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, cfg *ConnectionConfig) error {
	if cfg.ID == "" {
		return errors.New("store: connection id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cfg
	s.conns[cfg.ID] = &clone
	return nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context) ([]*ConnectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ConnectionConfig, 0, len(s.conns))
	for _, cfg := range s.conns {
		clone := *cfg
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
	return nil
}

// connectionsFile is the YAML layout for a connections file.
type connectionsFile struct {
	Connections []*ConnectionConfig `yaml:"connections"`
}

// LoadFile reads a YAML connections file into a new MemoryStore. Used
// by the CLI; server deployments plug in their own Store.
func LoadFile(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connections file: %w", err)
	}

	var file connectionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing connections file %s: %w", path, err)
	}

	store := NewMemoryStore()
	for _, cfg := range file.Connections {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("connection %q: %w", cfg.ID, err)
		}
		store.conns[cfg.ID] = cfg
	}
	return store, nil
}
