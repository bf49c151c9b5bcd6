package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics counts product cache outcomes. It satisfies cache.CacheRecorder.
type CacheMetrics struct {
	hits      *Counter
	misses    *Counter
	puts      *Counter
	evictions *Counter
	errors    *Counter
}

// NewCacheMetrics registers the cache counters on meter
func NewCacheMetrics(meter metric.Meter) (*CacheMetrics, error) {
	var (
		m   CacheMetrics
		err error
	)
	for _, c := range []struct {
		dst  **Counter
		name string
		desc string
	}{
		{&m.hits, "catalog.cache.hits", "Product cache lookups served from cache"},
		{&m.misses, "catalog.cache.misses", "Product cache lookups that fell through to the repository"},
		{&m.puts, "catalog.cache.puts", "Products written to the cache"},
		{&m.evictions, "catalog.cache.evictions", "Explicit product cache evictions"},
		{&m.errors, "catalog.cache.errors", "Failed product cache operations"},
	} {
		if *c.dst, err = NewCounter(meter, c.name, c.desc, "{operation}"); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *CacheMetrics) RecordCacheHit(ctx context.Context)      { m.hits.Inc(ctx) }
func (m *CacheMetrics) RecordCacheMiss(ctx context.Context)     { m.misses.Inc(ctx) }
func (m *CacheMetrics) RecordCachePut(ctx context.Context)      { m.puts.Inc(ctx) }
func (m *CacheMetrics) RecordCacheEviction(ctx context.Context) { m.evictions.Inc(ctx) }

func (m *CacheMetrics) RecordCacheError(ctx context.Context, operation string) {
	m.errors.Inc(ctx, attribute.String("operation", operation))
}
