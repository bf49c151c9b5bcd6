package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"go.uber.org/zap"
)

// CacheRecorder receives one call per cache operation outcome
type CacheRecorder interface {
	RecordCacheHit(ctx context.Context)
	RecordCacheMiss(ctx context.Context)
	RecordCachePut(ctx context.Context)
	RecordCacheEviction(ctx context.Context)
	RecordCacheError(ctx context.Context, operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(context.Context)           {}
func (nopRecorder) RecordCacheMiss(context.Context)          {}
func (nopRecorder) RecordCachePut(context.Context)           {}
func (nopRecorder) RecordCacheEviction(context.Context)      {}
func (nopRecorder) RecordCacheError(context.Context, string) {}

// ObservedProductCache logs and counts every operation of the wrapped cache.
// Results and errors pass through unchanged.
type ObservedProductCache struct {
	next     catalog.ProductCache
	logger   *zap.Logger
	recorder CacheRecorder
}

// NewObservedProductCache wraps next. A nil recorder disables counting.
func NewObservedProductCache(next catalog.ProductCache, logger *zap.Logger, recorder CacheRecorder) *ObservedProductCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ObservedProductCache{next: next, logger: logger, recorder: recorder}
}

func (c *ObservedProductCache) Get(ctx context.Context, id uuid.UUID) (*catalog.Product, bool, error) {
	p, ok, err := c.next.Get(ctx, id)
	switch {
	case err != nil:
		c.recorder.RecordCacheError(ctx, "get")
		c.logger.Warn("product cache get failed", zap.String("product_id", id.String()), zap.Error(err))
	case ok:
		c.recorder.RecordCacheHit(ctx)
		c.logger.Debug("product cache hit", zap.String("product_id", id.String()))
	default:
		c.recorder.RecordCacheMiss(ctx)
		c.logger.Debug("product cache miss", zap.String("product_id", id.String()))
	}
	return p, ok, err
}

func (c *ObservedProductCache) Put(ctx context.Context, product *catalog.Product) error {
	err := c.next.Put(ctx, product)
	if err != nil {
		c.recorder.RecordCacheError(ctx, "put")
		c.logger.Warn("product cache put failed", zap.String("product_id", product.ID.String()), zap.Error(err))
		return err
	}
	c.recorder.RecordCachePut(ctx)
	c.logger.Debug("product cache put",
		zap.String("product_id", product.ID.String()),
		zap.Bool("global", product.IsGlobal()))
	return nil
}

func (c *ObservedProductCache) Evict(ctx context.Context, id uuid.UUID) error {
	err := c.next.Evict(ctx, id)
	if err != nil {
		c.recorder.RecordCacheError(ctx, "evict")
		c.logger.Warn("product cache evict failed", zap.String("product_id", id.String()), zap.Error(err))
		return err
	}
	c.recorder.RecordCacheEviction(ctx)
	c.logger.Debug("product cache evict", zap.String("product_id", id.String()))
	return nil
}

// Invalidate is counted as an eviction
func (c *ObservedProductCache) Invalidate(ctx context.Context, id uuid.UUID, minVersion int) error {
	err := c.next.Invalidate(ctx, id, minVersion)
	if err != nil {
		c.recorder.RecordCacheError(ctx, "invalidate")
		c.logger.Warn("product cache invalidate failed", zap.String("product_id", id.String()), zap.Error(err))
		return err
	}
	c.recorder.RecordCacheEviction(ctx)
	c.logger.Debug("product cache invalidate",
		zap.String("product_id", id.String()),
		zap.Int("min_version", minVersion))
	return nil
}

var _ catalog.ProductCache = (*ObservedProductCache)(nil)
