// Package cache stores consensus and council results keyed by a content hash
// and a settings hash, with TTL expiry, a schema version guard and targeted
// invalidation. Entries live in memory and are mirrored to a persistent Store
// as one JSON blob.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/concord/internal/model"
)

// StorageKey is the fixed key the cache blob is persisted under
const StorageKey = "concord-result-cache"

// Store persists the cache blob. Load returns nil data when nothing is stored.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// DefaultDir returns ~/.concord/cache
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "concord-cache")
	}
	return filepath.Join(home, ".concord", "cache")
}

// NewStore creates the store selected by the cache configuration
func NewStore(cfg model.CacheConfig) (Store, error) {
	dir := cfg.Path
	if dir == "" {
		dir = DefaultDir()
	}

	switch cfg.Backend {
	case "", "file":
		return NewFileStore(filepath.Join(dir, StorageKey+".json")), nil
	case "sqlite":
		return NewSQLiteStore(filepath.Join(dir, "cache.db"))
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
		return NewRedisStore(cfg.RedisAddr), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
