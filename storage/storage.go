// Package storage provides durable key-value blob storage for cart persistence.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound indicates the key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key-value store addressed by string keys. Values are
// opaque blobs; the cart layer stores JSON-serialized state under a single
// configurable key.
type Store interface {
	// Read returns the value stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory Store implementation for tests and
// environments without durable storage.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Read returns the value stored under key, or ErrNotFound.
func (s *MemoryStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Write stores value under key.
func (s *MemoryStore) Write(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Delete removes the value stored under key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
