package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/mealtracker/backend/internal/domain/catalog"
)

// DefaultVersionFloorTTL is how long a version floor lives when the cache has
// no expiry of its own
const DefaultVersionFloorTTL = 2 * time.Hour

// lruEntry with a nil product is a tombstone that only carries a floor
type lruEntry struct {
	product    *catalog.Product
	lastAccess time.Time
	floor      int
	floorUntil time.Time
}

// LRUProductCache is a bounded in-process product cache.
// Entries expire ExpireAfterAccess after their last Get or Put. Version
// floors set by Invalidate expire the same time after they were set and do
// not slide; a floor can be lost early when its slot is reclaimed by size.
type LRUProductCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[uuid.UUID, *lruEntry]
	ttl time.Duration
	now func() time.Time
}

// LRUProductCacheOption configures an LRUProductCache
type LRUProductCacheOption func(*LRUProductCache)

// WithClock replaces time.Now
func WithClock(now func() time.Time) LRUProductCacheOption {
	return func(c *LRUProductCache) {
		c.now = now
	}
}

// NewLRUProductCache creates an LRU cache sized by cfg
func NewLRUProductCache(cfg catalog.CacheConfig, opts ...LRUProductCacheOption) (*LRUProductCache, error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("cache max size must be positive, got %d", cfg.MaxSize)
	}
	if cfg.InitialCapacity < 0 || cfg.InitialCapacity > cfg.MaxSize {
		return nil, fmt.Errorf("cache initial capacity %d must be between 0 and max size %d", cfg.InitialCapacity, cfg.MaxSize)
	}
	if cfg.ExpireAfterAccess < 0 {
		return nil, fmt.Errorf("cache expire-after-access cannot be negative")
	}

	c := &LRUProductCache{
		ttl: cfg.ExpireAfterAccess,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	l, err := simplelru.NewLRU[uuid.UUID, *lruEntry](cfg.MaxSize, nil)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns a copy of the cached product and refreshes its expiry
func (c *LRUProductCache) Get(_ context.Context, id uuid.UUID) (*catalog.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(id)
	if !ok {
		return nil, false, nil
	}
	now := c.now()
	if entry.product != nil && c.expired(entry, now) {
		entry.product = nil
	}
	if entry.product == nil {
		if !c.floorActive(entry, now) {
			c.lru.Remove(id)
		}
		return nil, false, nil
	}
	entry.lastAccess = now
	return entry.product.Clone(), true, nil
}

// Put caches a copy of a global product. Private products are ignored, and
// so is a version below the floor recorded for the id.
func (c *LRUProductCache) Put(_ context.Context, product *catalog.Product) error {
	if product == nil || !product.IsGlobal() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.lru.Peek(product.ID)
	if !ok || !c.floorActive(entry, now) {
		c.lru.Add(product.ID, &lruEntry{product: product.Clone(), lastAccess: now})
		return nil
	}
	if product.Version < entry.floor {
		return nil
	}
	entry.product = product.Clone()
	entry.lastAccess = now
	c.lru.Add(product.ID, entry)
	return nil
}

// Evict removes the cached product for id. A live floor stays in place.
func (c *LRUProductCache) Evict(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Peek(id)
	if !ok {
		return nil
	}
	if c.floorActive(entry, c.now()) {
		entry.product = nil
		return nil
	}
	c.lru.Remove(id)
	return nil
}

// Invalidate removes the cached product for id and raises its floor to
// minVersion. A floor is never lowered while it is live.
func (c *LRUProductCache) Invalidate(_ context.Context, id uuid.UUID, minVersion int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	floor := minVersion
	if entry, ok := c.lru.Peek(id); ok && c.floorActive(entry, now) && entry.floor > floor {
		floor = entry.floor
	}
	c.lru.Add(id, &lruEntry{floor: floor, floorUntil: now.Add(c.floorTTL())})
	return nil
}

// Purge removes every entry
func (c *LRUProductCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of entries, expired ones and tombstones included
func (c *LRUProductCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *LRUProductCache) expired(e *lruEntry, now time.Time) bool {
	return c.ttl > 0 && !now.Before(e.lastAccess.Add(c.ttl))
}

func (c *LRUProductCache) floorActive(e *lruEntry, now time.Time) bool {
	return e.floor > 0 && now.Before(e.floorUntil)
}

func (c *LRUProductCache) floorTTL() time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return DefaultVersionFloorTTL
}

var _ catalog.ProductCache = (*LRUProductCache)(nil)
