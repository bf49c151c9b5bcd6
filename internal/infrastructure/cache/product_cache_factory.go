package cache

import (
	"fmt"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewProductCache builds the configured backend wrapped in an ObservedProductCache.
// The tiered backend is also returned on its own so the caller can start its
// invalidation subscription; it is nil for the other backends.
func NewProductCache(
	cfg config.CacheConfig,
	client redis.UniversalClient,
	logger *zap.Logger,
	recorder CacheRecorder,
) (*ObservedProductCache, *TieredProductCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sizing := catalog.CacheConfig{
		InitialCapacity:   cfg.InitialCapacity,
		MaxSize:           cfg.MaxSize,
		ExpireAfterAccess: cfg.ExpireAfterAccess,
	}

	var (
		inner  catalog.ProductCache
		tiered *TieredProductCache
	)
	switch cfg.Backend {
	case config.CacheBackendMemory, "":
		l1, err := NewLRUProductCache(sizing)
		if err != nil {
			return nil, nil, err
		}
		inner = l1
	case config.CacheBackendRedis:
		if client == nil {
			return nil, nil, ErrRedisClientRequired
		}
		inner = NewRedisProductCache(client, cfg.RedisKeyPrefix, cfg.ExpireAfterAccess)
	case config.CacheBackendTiered:
		if client == nil {
			return nil, nil, ErrRedisClientRequired
		}
		l1, err := NewLRUProductCache(sizing)
		if err != nil {
			return nil, nil, err
		}
		invalidator := NewProductCacheInvalidator(client,
			WithInvalidatorChannel(cfg.InvalidationChannel),
			WithInvalidatorLogger(logger),
		)
		tiered = NewTieredProductCache(l1, NewRedisProductCache(client, cfg.RedisKeyPrefix, cfg.ExpireAfterAccess), invalidator, logger)
		inner = tiered
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	logger.Info("product cache configured",
		zap.String("backend", cfg.Backend),
		zap.Int("max_size", cfg.MaxSize),
		zap.Duration("expire_after_access", cfg.ExpireAfterAccess),
	)
	return NewObservedProductCache(inner, logger, recorder), tiered, nil
}
