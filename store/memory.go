package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. Config-file sources are merged into one
// at startup so they never touch the database.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Source
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Source)}
}

// List returns all sources in name order.
func (s *MemoryStore) List(ctx context.Context) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Source, 0, len(s.items))
	for _, name := range slices.Sorted(maps.Keys(s.items)) {
		out = append(out, cloneSource(s.items[name]))
	}
	return out, nil
}

// Get returns one source by name.
func (s *MemoryStore) Get(ctx context.Context, name string) (Source, bool, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.items[strings.TrimSpace(name)]
	if !ok {
		return Source{}, false, nil
	}
	return cloneSource(src), true, nil
}

// Upsert validates and stores a source.
func (s *MemoryStore) Upsert(ctx context.Context, src Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src.Name = strings.TrimSpace(src.Name)
	if err := src.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if src.RegisteredAt.IsZero() {
		if existing, ok := s.items[src.Name]; ok && !existing.RegisteredAt.IsZero() {
			src.RegisteredAt = existing.RegisteredAt
		} else {
			src.RegisteredAt = time.Now().UTC()
		}
	}
	s.items[src.Name] = cloneSource(src)
	return nil
}

// Delete removes a source. Deleting a missing name is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, strings.TrimSpace(name))
	return nil
}

var _ Store = (*MemoryStore)(nil)
