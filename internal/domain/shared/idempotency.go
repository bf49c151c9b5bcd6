package shared

import (
	"context"
	"time"
)

// IdempotencyStore records which events a consumer has already applied.
type IdempotencyStore interface {
	// MarkProcessed marks an event as processed with a TTL.
	// Returns true if the event was newly marked, false if it was already marked.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// Release removes a mark so that a redelivery of the event is applied again.
	// Used when the handler fails after the event was marked.
	Release(ctx context.Context, eventID string) error

	IsProcessed(ctx context.Context, eventID string) (bool, error)

	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed event ID is remembered.
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
