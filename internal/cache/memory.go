package cache

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps the blob in process memory. Nothing survives a restart.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a new memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Load returns the stored blob
func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	if val, found := s.cache.Get(StorageKey); found {
		data := val.([]byte)
		return append([]byte(nil), data...), nil
	}
	return nil, nil
}

// Save replaces the stored blob
func (s *MemoryStore) Save(ctx context.Context, data []byte) error {
	s.cache.Set(StorageKey, append([]byte(nil), data...), gocache.NoExpiration)
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
