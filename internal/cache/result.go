package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/metrics"
	"github.com/ppiankov/concord/internal/model"
)

// SchemaVersion guards the persisted blob. Any other version is wiped on load.
const SchemaVersion = 1

// Kind separates the key namespaces of the two cached result types
type Kind string

const (
	KindConsensus Kind = "consensus"
	KindCouncil   Kind = "council"
)

// Entry is one cached result
type Entry struct {
	Key          string          `json:"key"` // contentHash:settingsHash
	Result       json.RawMessage `json:"result"`
	CachedAt     time.Time       `json:"cachedAt"`
	ContentHash  string          `json:"contentHash"`
	SettingsHash string          `json:"settingsHash"`
	TTL          *time.Duration  `json:"ttl,omitempty"` // nil never expires
	Kind         Kind            `json:"kind"`
}

// Expired reports whether the entry's TTL has elapsed at now
func (e Entry) Expired(now time.Time) bool {
	return e.TTL != nil && now.Sub(e.CachedAt) > *e.TTL
}

type blob struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Key returns the entry key for a content and settings hash
func Key(contentHash, settingsHash string) string {
	return contentHash + ":" + settingsHash
}

func namespaced(kind Kind, key string) string {
	return string(kind) + ":" + key
}

// Stats summarizes the cache contents
type Stats struct {
	Entries int          `json:"entries"`
	ByKind  map[Kind]int `json:"byKind"`
	Expired int          `json:"expired"`
	Oldest  *time.Time   `json:"oldest,omitempty"`
	Newest  *time.Time   `json:"newest,omitempty"`
}

// ResultCache is an explicit cache instance; callers own its lifetime.
// All reads and writes are serialized; on a race the last write wins.
type ResultCache struct {
	mu      sync.Mutex
	entries *gocache.Cache
	store   Store
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a ResultCache
type Option func(*ResultCache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// New creates a cache mirrored to store and loads what the store holds.
// An unreadable or outdated blob wipes the cache instead of failing.
// A nil store keeps everything in memory.
func New(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) (*ResultCache, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &ResultCache{
		entries: gocache.New(gocache.NoExpiration, 0),
		store:   store,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	data, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil || b.Version != SchemaVersion {
		c.logger.Warn("discarding cache blob",
			zap.Int("version", b.Version),
			zap.Int("want_version", SchemaVersion),
			zap.NamedError("parse_error", err),
		)
		metrics.CacheEvictions.WithLabelValues("version").Add(float64(len(b.Entries)))
		if err := c.persistLocked(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	for k, e := range b.Entries {
		c.entries.Set(k, e, gocache.NoExpiration)
	}
	c.logger.Debug("cache loaded", zap.Int("entries", len(b.Entries)))
	return c, nil
}

// Close closes the underlying store
func (c *ResultCache) Close() error {
	return c.store.Close()
}

// Get returns the cached result, or false on a miss. Expired entries and
// entries whose payload no longer decodes are removed as a side effect.
func (c *ResultCache) Get(ctx context.Context, kind Kind, contentHash, settingsHash string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nk := namespaced(kind, Key(contentHash, settingsHash))
	val, found := c.entries.Get(nk)
	if !found {
		metrics.CacheMisses.WithLabelValues(string(kind), "absent").Inc()
		return nil, false
	}

	e := val.(Entry)
	if e.Kind != kind {
		metrics.CacheMisses.WithLabelValues(string(kind), "kind").Inc()
		return nil, false
	}

	reason := ""
	if e.Expired(c.now()) {
		reason = "expired"
	} else if err := revalidate(e); err != nil {
		reason = "invalid"
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", nk), zap.Error(err))
	}
	if reason != "" {
		c.entries.Delete(nk)
		metrics.CacheMisses.WithLabelValues(string(kind), reason).Inc()
		metrics.CacheEvictions.WithLabelValues(reason).Inc()
		if err := c.persistLocked(ctx); err != nil {
			c.logger.Warn("persisting cache after eviction failed", zap.Error(err))
		}
		return nil, false
	}

	metrics.CacheHits.WithLabelValues(string(kind)).Inc()
	return append(json.RawMessage(nil), e.Result...), true
}

// Lookup is Get followed by decoding the result into out
func (c *ResultCache) Lookup(ctx context.Context, kind Kind, contentHash, settingsHash string, out any) bool {
	raw, ok := c.Get(ctx, kind, contentHash, settingsHash)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Set stores result under the hashes. A nil ttl never expires.
func (c *ResultCache) Set(ctx context.Context, kind Kind, contentHash, settingsHash string, result any, ttl *time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	key := Key(contentHash, settingsHash)
	e := Entry{
		Key:          key,
		Result:       data,
		CachedAt:     c.now(),
		ContentHash:  contentHash,
		SettingsHash: settingsHash,
		TTL:          ttl,
		Kind:         kind,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Set(namespaced(kind, key), e, gocache.NoExpiration)
	return c.persistLocked(ctx)
}

// InvalidateBySettings removes every entry produced under settingsHash
func (c *ResultCache) InvalidateBySettings(ctx context.Context, settingsHash string) (int, error) {
	return c.removeWhere(ctx, "invalidated", func(e Entry) bool { return e.SettingsHash == settingsHash })
}

// InvalidateByContent removes every entry for contentHash
func (c *ResultCache) InvalidateByContent(ctx context.Context, contentHash string) (int, error) {
	return c.removeWhere(ctx, "invalidated", func(e Entry) bool { return e.ContentHash == contentHash })
}

// SweepExpired removes entries whose TTL has elapsed
func (c *ResultCache) SweepExpired(ctx context.Context) (int, error) {
	now := c.now()
	return c.removeWhere(ctx, "expired", func(e Entry) bool { return e.Expired(now) })
}

// Clear removes everything
func (c *ResultCache) Clear(ctx context.Context) (int, error) {
	return c.removeWhere(ctx, "cleared", func(Entry) bool { return true })
}

func (c *ResultCache) removeWhere(ctx context.Context, reason string, match func(Entry) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, item := range c.entries.Items() {
		if match(item.Object.(Entry)) {
			c.entries.Delete(k)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	metrics.CacheEvictions.WithLabelValues(reason).Add(float64(removed))
	c.logger.Debug("cache entries removed", zap.String("reason", reason), zap.Int("count", removed))
	return removed, c.persistLocked(ctx)
}

// Len returns the number of entries, expired ones included
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.ItemCount()
}

// Stats summarizes the cache contents
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{ByKind: make(map[Kind]int)}
	for _, item := range c.entries.Items() {
		e := item.Object.(Entry)
		s.Entries++
		s.ByKind[e.Kind]++
		if e.Expired(now) {
			s.Expired++
		}
		at := e.CachedAt
		if s.Oldest == nil || at.Before(*s.Oldest) {
			s.Oldest = &at
		}
		if s.Newest == nil || at.After(*s.Newest) {
			s.Newest = &at
		}
	}
	return s
}

func (c *ResultCache) persistLocked(ctx context.Context) error {
	b := blob{Version: SchemaVersion, Entries: make(map[string]Entry)}
	for k, item := range c.entries.Items() {
		b.Entries[k] = item.Object.(Entry)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := c.store.Save(ctx, data); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

var errEmptyPayload = errors.New("empty payload")

// revalidate checks that a stored payload still decodes as its kind
func revalidate(e Entry) error {
	if len(e.Result) == 0 || strings.TrimSpace(string(e.Result)) == "null" {
		return errEmptyPayload
	}
	if e.Key != Key(e.ContentHash, e.SettingsHash) {
		return fmt.Errorf("key %q does not match hashes", e.Key)
	}

	switch e.Kind {
	case KindConsensus:
		var r model.SourceValidationResult
		if err := json.Unmarshal(e.Result, &r); err != nil {
			return err
		}
		if r.FactConsensus.AgreedFacts == nil || r.FactConsensus.PartialAgreementFacts == nil || r.FactConsensus.DisagreedFacts == nil {
			return errors.New("missing consensus buckets")
		}
		if r.ValidationConfidence < 0 || r.ValidationConfidence > 1 {
			return fmt.Errorf("confidence %v out of range", r.ValidationConfidence)
		}
	case KindCouncil:
		var r model.CouncilResult
		if err := json.Unmarshal(e.Result, &r); err != nil {
			return err
		}
		if len(r.Answers) == 0 {
			return errors.New("council result has no answers")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}
