package cache

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"go.uber.org/zap"
)

// TieredProductCache puts a per-instance LRU (L1) in front of Redis (L2).
// Evictions are broadcast so that peers drop their L1 copy.
type TieredProductCache struct {
	l1          *LRUProductCache
	l2          catalog.ProductCache
	invalidator *ProductCacheInvalidator
	logger      *zap.Logger

	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64
}

// TieredCacheStats is a snapshot of per-tier hit counters
type TieredCacheStats struct {
	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64
}

// NewTieredProductCache combines the tiers. invalidator may be nil for a single instance.
func NewTieredProductCache(l1 *LRUProductCache, l2 catalog.ProductCache, invalidator *ProductCacheInvalidator, logger *zap.Logger) *TieredProductCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredProductCache{
		l1:          l1,
		l2:          l2,
		invalidator: invalidator,
		logger:      logger,
	}
}

// StartInvalidationSubscription blocks while applying peer invalidations to L1
func (c *TieredProductCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, c.handleInvalidation)
}

func (c *TieredProductCache) handleInvalidation(msg InvalidationMessage) {
	switch msg.Action {
	case InvalidationActionEvict:
		if msg.MinVersion > 0 {
			_ = c.l1.Invalidate(context.Background(), msg.ProductID, msg.MinVersion)
		} else {
			_ = c.l1.Evict(context.Background(), msg.ProductID)
		}
		c.logger.Debug("Evicted L1 entry on peer invalidation",
			zap.String("product_id", msg.ProductID.String()),
			zap.Int("min_version", msg.MinVersion))
	case InvalidationActionPurge:
		c.l1.Purge()
		c.logger.Info("Purged L1 cache on peer invalidation")
	default:
		c.logger.Warn("Unknown cache invalidation action", zap.String("action", string(msg.Action)))
	}
}

// Get reads L1, then L2. An L2 hit is copied into L1.
// An L2 error is reported as a miss so that reads fall through to the repository.
func (c *TieredProductCache) Get(ctx context.Context, id uuid.UUID) (*catalog.Product, bool, error) {
	if p, ok, _ := c.l1.Get(ctx, id); ok {
		c.l1Hits.Add(1)
		return p, true, nil
	}
	c.l1Misses.Add(1)

	p, ok, err := c.l2.Get(ctx, id)
	if err != nil {
		c.logger.Warn("L2 cache error", zap.String("product_id", id.String()), zap.Error(err))
		c.l2Misses.Add(1)
		return nil, false, nil
	}
	if !ok {
		c.l2Misses.Add(1)
		return nil, false, nil
	}
	c.l2Hits.Add(1)
	_ = c.l1.Put(ctx, p)
	return p, true, nil
}

// Put writes both tiers
func (c *TieredProductCache) Put(ctx context.Context, product *catalog.Product) error {
	if product == nil || !product.IsGlobal() {
		return nil
	}
	if err := c.l2.Put(ctx, product); err != nil {
		c.logger.Warn("L2 cache put failed", zap.String("product_id", product.ID.String()), zap.Error(err))
	}
	return c.l1.Put(ctx, product)
}

// Evict removes the entry from both tiers and tells peers to drop theirs.
// The L2 delete error is returned since a surviving L2 entry would be served stale.
func (c *TieredProductCache) Evict(ctx context.Context, id uuid.UUID) error {
	_ = c.l1.Evict(ctx, id)
	if err := c.l2.Evict(ctx, id); err != nil {
		return err
	}
	if c.invalidator != nil {
		if err := c.invalidator.PublishEvict(ctx, id); err != nil {
			c.logger.Warn("Failed to broadcast cache eviction", zap.String("product_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

// Invalidate drops the entry and raises its floor in both tiers, then tells
// peers to do the same in their L1. The L2 error is returned.
func (c *TieredProductCache) Invalidate(ctx context.Context, id uuid.UUID, minVersion int) error {
	_ = c.l1.Invalidate(ctx, id, minVersion)
	if err := c.l2.Invalidate(ctx, id, minVersion); err != nil {
		return err
	}
	if c.invalidator != nil {
		if err := c.invalidator.PublishInvalidate(ctx, id, minVersion); err != nil {
			c.logger.Warn("Failed to broadcast cache invalidation", zap.String("product_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

// Stats returns the hit counters
func (c *TieredProductCache) Stats() TieredCacheStats {
	return TieredCacheStats{
		L1Hits:   c.l1Hits.Load(),
		L1Misses: c.l1Misses.Load(),
		L2Hits:   c.l2Hits.Load(),
		L2Misses: c.l2Misses.Load(),
	}
}

var _ catalog.ProductCache = (*TieredProductCache)(nil)
