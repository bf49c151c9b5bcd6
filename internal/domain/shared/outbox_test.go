package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvent struct {
	BaseDomainEvent
}

func TestNewOutboxEntry_CopiesEventIdentity(t *testing.T) {
	aggID := uuid.New()
	ev := &stubEvent{BaseDomainEvent: NewBaseDomainEvent("ProductCreated", "Product", aggID)}

	entry := NewOutboxEntry(ev, []byte(`{}`))

	assert.Equal(t, ev.ID, entry.EventID)
	assert.Equal(t, "ProductCreated", entry.EventType)
	assert.Equal(t, aggID, entry.AggregateID)
	assert.Equal(t, "Product", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
	assert.False(t, entry.IsSettled())
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusFailed} {
		entry := &OutboxEntry{Status: status}
		require.NoError(t, entry.MarkProcessing())
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
	}

	for _, status := range []OutboxStatus{OutboxStatusSent, OutboxStatusDead, OutboxStatusProcessing} {
		entry := &OutboxEntry{Status: status}
		assert.Error(t, entry.MarkProcessing())
	}
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("resets dead letter entry", func(t *testing.T) {
		entry := &OutboxEntry{
			ID:         uuid.New(),
			Status:     OutboxStatusDead,
			RetryCount: 5,
			MaxRetries: 5,
			LastError:  "boom",
			UpdatedAt:  time.Now().Add(-time.Minute),
		}

		require.NoError(t, entry.ResetForRetry())
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Zero(t, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("rejects live entries", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed} {
			entry := &OutboxEntry{Status: status}
			err := entry.ResetForRetry()
			assert.ErrorContains(t, err, "can only retry dead letter entries")
		}
	})
}

func TestOutboxEntry_MarkFailed_MovesToDeadAfterMaxRetries(t *testing.T) {
	entry := &OutboxEntry{Status: OutboxStatusProcessing, RetryCount: 4, MaxRetries: 5}

	entry.MarkFailed("final error")

	assert.Equal(t, OutboxStatusDead, entry.Status)
	assert.Equal(t, 5, entry.RetryCount)
	assert.Equal(t, "final error", entry.LastError)
	assert.Nil(t, entry.NextRetryAt)
	assert.True(t, entry.IsSettled())
}

func TestOutboxEntry_MarkFailed_ExponentialBackoff(t *testing.T) {
	entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 5}

	entry.MarkFailed("error 1")
	assert.Equal(t, OutboxStatusFailed, entry.Status)
	require.NotNil(t, entry.NextRetryAt)
	first := time.Until(*entry.NextRetryAt)
	assert.True(t, first > 0 && first <= 2*time.Second)

	entry.Status = OutboxStatusProcessing
	entry.MarkFailed("error 2")
	second := time.Until(*entry.NextRetryAt)
	assert.True(t, second > time.Second && second <= 3*time.Second)

	entry.Status = OutboxStatusProcessing
	entry.MarkFailed("error 3")
	third := time.Until(*entry.NextRetryAt)
	assert.True(t, third > 3*time.Second && third <= 5*time.Second)
}

func TestOutboxEntry_Requeue(t *testing.T) {
	t.Run("never attempted goes back to pending", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing}
		entry.Requeue()
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("previously failed stays failed and is due now", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, RetryCount: 2, MaxRetries: 5}
		entry.Requeue()
		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, 2, entry.RetryCount)
		require.NotNil(t, entry.NextRetryAt)
		assert.False(t, entry.NextRetryAt.After(time.Now()))
	})
}
