package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStorage is an in-memory implementation of the Store interface.
type MemoryStorage struct {
	collections map[string]map[string][]byte
	mu          sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		collections: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStorage) collection(name string) map[string][]byte {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string][]byte)
		s.collections[name] = c
	}
	return c
}

// Create stores a new document in memory.
func (s *MemoryStorage) Create(ctx context.Context, collection, id string, doc interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s/%s: %w", collection, id, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		c := s.collection(collection)
		if _, ok := c[id]; ok {
			return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, collection, id)
		}
		c[id] = data
		return nil
	})
}

// Put stores or replaces a document in memory.
func (s *MemoryStorage) Put(ctx context.Context, collection, id string, doc interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s/%s: %w", collection, id, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.collection(collection)[id] = data
		return nil
	})
}

// Update merges fields into a stored document.
func (s *MemoryStorage) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		c := s.collection(collection)
		data, ok := c[id]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		merged, err := mergeFields(data, fields)
		if err != nil {
			return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
		}
		c[id] = merged
		return nil
	})
}

// Delete removes a document from memory.
func (s *MemoryStorage) Delete(ctx context.Context, collection, id string) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		c := s.collection(collection)
		if _, ok := c[id]; !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		delete(c, id)
		return nil
	})
}

// Get retrieves a document from memory.
func (s *MemoryStorage) Get(ctx context.Context, collection, id string) ([]byte, error) {
	return withContext(ctx, func() ([]byte, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		data, ok := s.collections[collection][id]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return append([]byte(nil), data...), nil
	})
}

// Find scans a collection for documents matching every filter.
func (s *MemoryStorage) Find(ctx context.Context, collection string, filters ...Filter) ([][]byte, error) {
	return withContext(ctx, func() ([][]byte, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		c := s.collections[collection]
		ids := make([]string, 0, len(c))
		for id := range c {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })

		var out [][]byte
		for _, id := range ids {
			ok, err := matches(c[id], filters)
			if err != nil {
				return nil, fmt.Errorf("failed to filter %s/%s: %w", collection, id, err)
			}
			if ok {
				out = append(out, append([]byte(nil), c[id]...))
			}
		}
		return out, nil
	})
}
