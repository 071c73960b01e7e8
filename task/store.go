package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/dsr/graph"
)

// Cache is the byte store holding the working set of running requests.
// Users may implement it with their preferred solution (e.g., Redis,
// Memcached) to share results between processes; MemoryCache is the
// in-process default.
type Cache interface {
	// Get retrieves a value. It returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL. If ttl is 0, the value does
	// not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// MemoryCache is a Cache backed by a map.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value   []byte
	expires time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && !c.now().Before(e.expires)) {
		return nil, nil
	}
	return e.value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := cacheEntry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeletePrefix implements Cache.
func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Store keeps the rows retrieved for each collection of a request in a
// Cache, msgpack encoded. Keys are "<request id>:<dataset>:<collection>".
type Store struct {
	cache Cache
	ttl   time.Duration
}

// NewStore returns a Store writing to cache. Entries expire after ttl, or
// never if ttl is 0.
func NewStore(cache Cache, ttl time.Duration) *Store {
	return &Store{cache: cache, ttl: ttl}
}

// Key returns the cache key of the rows of addr for the request.
func Key(requestID string, addr graph.CollectionAddress) string {
	return requestID + ":" + addr.String()
}

// Put stores the rows of addr.
func (s *Store) Put(ctx context.Context, requestID string, addr graph.CollectionAddress, rows []graph.Row) error {
	b, err := msgpack.Marshal(rows)
	if err != nil {
		return fmt.Errorf("task: encode rows of %s: %w", addr, err)
	}
	return s.cache.Set(ctx, Key(requestID, addr), b, s.ttl)
}

// Rows returns the rows stored for addr. The boolean is false when nothing
// was stored.
func (s *Store) Rows(ctx context.Context, requestID string, addr graph.CollectionAddress) ([]graph.Row, bool, error) {
	b, err := s.cache.Get(ctx, Key(requestID, addr))
	if err != nil || b == nil {
		return nil, false, err
	}
	var rows []graph.Row
	if err := msgpack.Unmarshal(b, &rows); err != nil {
		return nil, false, fmt.Errorf("task: decode rows of %s: %w", addr, err)
	}
	return rows, true, nil
}

// Clear removes every entry of the request.
func (s *Store) Clear(ctx context.Context, requestID string) error {
	return s.cache.DeletePrefix(ctx, requestID+":")
}
