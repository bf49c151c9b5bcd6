package catalog

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// ProductCache is a read-through cache for global products keyed by id.
// The repository stays authoritative; losing an entry is only a miss.
//
// Implementations must ignore Put for private products and must be safe
// for concurrent use.
type ProductCache interface {
	// Get returns the cached product and true on a hit
	Get(ctx context.Context, id uuid.UUID) (*Product, bool, error)

	// Put inserts or overwrites the entry for product.ID
	Put(ctx context.Context, product *Product) error

	// Evict removes the entry. Evicting an absent id is not an error.
	Evict(ctx context.Context, id uuid.UUID) error

	// Invalidate removes the entry and records minVersion as a floor: until the
	// floor expires, Put of an older version of the product is ignored.
	// Writers call it once their change is committed, so a reader that loaded
	// the previous version before the commit cannot reinstate it.
	Invalidate(ctx context.Context, id uuid.UUID, minVersion int) error
}

// VersionDeleted is the floor recorded for a deleted product
const VersionDeleted = math.MaxInt32

// CacheConfig configures the product cache
type CacheConfig struct {
	// InitialCapacity is a sizing hint for the in-memory tier. It is validated
	// against MaxSize; the LRU grows on demand and does not preallocate.
	InitialCapacity int
	// MaxSize bounds the number of entries; least recently used go first
	MaxSize int
	// ExpireAfterAccess drops entries not read or written for this long
	ExpireAfterAccess time.Duration
}

// DefaultCacheConfig returns the default product cache sizing
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		InitialCapacity:   1000,
		MaxSize:           2000,
		ExpireAfterAccess: 2 * time.Hour,
	}
}
