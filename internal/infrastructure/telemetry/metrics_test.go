package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/mealtracker/backend/internal/infrastructure/config"
	"github.com/mealtracker/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// sumValue adds up the data points of an int64 sum whose attributes include attrs
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	require.True(t, ok, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		matches := true
		for _, kv := range attrs {
			v, found := dp.Attributes.Value(kv.Key)
			if !found || v != kv.Value {
				matches = false
				break
			}
		}
		if matches {
			total += dp.Value
		}
	}
	return total
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	for _, cfg := range []config.TelemetryConfig{
		{Enabled: false, MetricsEnabled: true},
		{Enabled: true, MetricsEnabled: false},
	} {
		mp, err := telemetry.NewMeterProvider(ctx, cfg, logger)
		require.NoError(t, err)
		assert.NotNil(t, mp.Meter("test"))
		assert.NoError(t, mp.Shutdown(ctx))
	}
}

func TestCounterAndHistogram(t *testing.T) {
	reader, mp := newTestMeter(t)
	meter := mp.Meter("test")
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "test.count", "test counter", "{item}")
	require.NoError(t, err)
	counter.Inc(ctx, attribute.String("kind", "a"))
	counter.Inc(ctx, attribute.String("kind", "a"))
	counter.Inc(ctx, attribute.String("kind", "b"))

	hist, err := telemetry.NewHistogram(meter, "test.duration", "test histogram", "s", 0.1, 1)
	require.NoError(t, err)
	hist.RecordDuration(ctx, 250*time.Millisecond)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "test.count", attribute.String("kind", "a")))
	assert.Equal(t, int64(3), sumValue(t, rm, "test.count"))

	m, ok := findMetric(rm, "test.duration")
	require.True(t, ok)
	h, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(1), h.DataPoints[0].Count)
	assert.InDelta(t, 0.25, h.DataPoints[0].Sum, 1e-9)
	assert.Equal(t, []float64{0.1, 1}, h.DataPoints[0].Bounds)
}

func TestCacheMetrics(t *testing.T) {
	reader, mp := newTestMeter(t)
	ctx := context.Background()

	m, err := telemetry.NewCacheMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.RecordCacheHit(ctx)
	m.RecordCacheHit(ctx)
	m.RecordCacheMiss(ctx)
	m.RecordCachePut(ctx)
	m.RecordCacheEviction(ctx)
	m.RecordCacheError(ctx, "get")

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "catalog.cache.hits"))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.cache.misses"))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.cache.puts"))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.cache.evictions"))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.cache.errors", attribute.String("operation", "get")))
}

func TestCatalogMetrics(t *testing.T) {
	reader, mp := newTestMeter(t)
	ctx := context.Background()

	m, err := telemetry.NewCatalogMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.RecordOperation(ctx, "create", "ok", 5*time.Millisecond)
	m.RecordOperation(ctx, "create", "QUOTA_EXCEEDED", time.Millisecond)
	m.RecordQuotaRejected(ctx)
	m.RecordPublishFailure(ctx, "ProductUpdated")
	m.RecordSnapshotSkipped(ctx, "ProductUpdated")

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "catalog.operations", attribute.String("operation", "create")))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.operations", attribute.String("outcome", "QUOTA_EXCEEDED")))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.quota.rejections"))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.events.publish_failures", attribute.String("event_type", "ProductUpdated")))
	assert.Equal(t, int64(1), sumValue(t, rm, "catalog.snapshots.skipped"))

	_, ok := findMetric(rm, "catalog.operation.duration")
	assert.True(t, ok)
}
