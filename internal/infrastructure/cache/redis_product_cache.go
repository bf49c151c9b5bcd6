package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/redis/go-redis/v9"
)

const defaultProductKeyPrefix = "catalog:product:"

// putProductScript writes the entry unless its version is below the floor.
// KEYS: entry, floor. ARGV: payload, version, ttl in ms (0 keeps it forever).
var putProductScript = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[2]) < floor then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// invalidateProductScript deletes the entry and raises the floor.
// KEYS: entry, floor. ARGV: min version, floor ttl in ms.
var invalidateProductScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
local v = tonumber(ARGV[1])
if v < floor then
	v = floor
end
redis.call('SET', KEYS[2], v, 'PX', ARGV[2])
return v
`)

type cachedProduct struct {
	catalog.ProductPayload
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c cachedProduct) toDomain() *catalog.Product {
	return catalog.RestoreProduct(
		c.ID,
		catalog.ProductAttributes{
			Name:     c.Name,
			Category: c.Category,
			Calories: c.Calories,
			Protein:  c.Protein,
			Carbs:    c.Carbs,
			Fat:      c.Fat,
		},
		c.Owner,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
}

// RedisProductCache stores products as JSON shared by every instance.
// GETEX refreshes the TTL on each read. Each id has a second key holding its
// version floor; both carry the id as hash tag so they share a cluster slot.
type RedisProductCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisProductCache creates a cache on an existing client.
// A zero ttl stores entries without expiry.
func NewRedisProductCache(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisProductCache {
	if keyPrefix == "" {
		keyPrefix = defaultProductKeyPrefix
	}
	return &RedisProductCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisProductCache) key(id uuid.UUID) string {
	return c.keyPrefix + "{" + id.String() + "}"
}

func (c *RedisProductCache) floorKey(id uuid.UUID) string {
	return c.key(id) + ":minver"
}

func (c *RedisProductCache) floorTTL() time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return DefaultVersionFloorTTL
}

// Get reads the entry and extends its TTL
func (c *RedisProductCache) Get(ctx context.Context, id uuid.UUID) (*catalog.Product, bool, error) {
	data, err := c.client.GetEx(ctx, c.key(id), c.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get product from cache: %w", err)
	}

	var cp cachedProduct
	if err := json.Unmarshal(data, &cp); err != nil {
		// a corrupt entry is dropped and treated as a miss
		_ = c.client.Del(ctx, c.key(id)).Err()
		return nil, false, fmt.Errorf("failed to decode cached product: %w", err)
	}
	return cp.toDomain(), true, nil
}

// Put stores a global product unless its version is below the floor.
// Private products are ignored.
func (c *RedisProductCache) Put(ctx context.Context, product *catalog.Product) error {
	if product == nil || !product.IsGlobal() {
		return nil
	}
	data, err := json.Marshal(cachedProduct{
		ProductPayload: catalog.PayloadOf(product),
		CreatedAt:      product.CreatedAt,
		UpdatedAt:      product.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	keys := []string{c.key(product.ID), c.floorKey(product.ID)}
	if err := putProductScript.Run(ctx, c.client, keys, data, product.Version, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to put product in cache: %w", err)
	}
	return nil
}

// Evict deletes the entry and leaves the floor alone
func (c *RedisProductCache) Evict(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to evict product from cache: %w", err)
	}
	return nil
}

// Invalidate deletes the entry and raises the floor to minVersion
func (c *RedisProductCache) Invalidate(ctx context.Context, id uuid.UUID, minVersion int) error {
	keys := []string{c.key(id), c.floorKey(id)}
	if err := invalidateProductScript.Run(ctx, c.client, keys, minVersion, c.floorTTL().Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate product in cache: %w", err)
	}
	return nil
}

var _ catalog.ProductCache = (*RedisProductCache)(nil)
