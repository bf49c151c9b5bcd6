package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrOperation = attribute.Key("operation")
	attrOutcome   = attribute.Key("outcome")
	attrEventType = attribute.Key("event_type")
)

// CatalogMetrics records catalog service and replication outcomes
type CatalogMetrics struct {
	operations       *Counter
	duration         *Histogram
	quotaRejections  *Counter
	publishFailures  *Counter
	snapshotsSkipped *Counter
}

// NewCatalogMetrics registers the catalog instruments on meter
func NewCatalogMetrics(meter metric.Meter) (*CatalogMetrics, error) {
	operations, err := NewCounter(meter, "catalog.operations", "Catalog service operations by outcome", "{operation}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, "catalog.operation.duration", "Catalog service operation latency", "s",
		0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)
	if err != nil {
		return nil, err
	}
	quota, err := NewCounter(meter, "catalog.quota.rejections", "Private creates rejected by the per-user quota", "{request}")
	if err != nil {
		return nil, err
	}
	publish, err := NewCounter(meter, "catalog.events.publish_failures", "Events that could not be handed to the event channel", "{event}")
	if err != nil {
		return nil, err
	}
	skipped, err := NewCounter(meter, "catalog.snapshots.skipped", "Snapshot updates ignored because no snapshot exists", "{event}")
	if err != nil {
		return nil, err
	}
	return &CatalogMetrics{
		operations:       operations,
		duration:         duration,
		quotaRejections:  quota,
		publishFailures:  publish,
		snapshotsSkipped: skipped,
	}, nil
}

// RecordOperation counts one service call and its latency; outcome is "ok" or an error kind
func (m *CatalogMetrics) RecordOperation(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	m.operations.Inc(ctx, attrOperation.String(operation), attrOutcome.String(outcome))
	m.duration.RecordDuration(ctx, elapsed, attrOperation.String(operation))
}

func (m *CatalogMetrics) RecordQuotaRejected(ctx context.Context) {
	m.quotaRejections.Inc(ctx)
}

func (m *CatalogMetrics) RecordPublishFailure(ctx context.Context, eventType string) {
	m.publishFailures.Inc(ctx, attrEventType.String(eventType))
}

func (m *CatalogMetrics) RecordSnapshotSkipped(ctx context.Context, eventType string) {
	m.snapshotsSkipped.Inc(ctx, attrEventType.String(eventType))
}
