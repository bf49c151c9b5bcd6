package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestIdempotentHandler_NewEvent(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newRecordingHandler(catalog.EventTypeProductCreated)
	h := NewIdempotentHandler("snapshot", inner, store, zap.NewNop())
	ev := newCreatedEvent(t, "Rice")

	store.On("MarkProcessed", mock.Anything, "snapshot:"+ev.EventID().String(), 24*time.Hour).Return(true, nil)

	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Len(t, inner.Handled(), 1)
	assert.Equal(t, int64(1), h.Metrics().Stats().EventsProcessed)
	store.AssertExpectations(t)
}

func TestIdempotentHandler_DuplicateSkipped(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newRecordingHandler(catalog.EventTypeProductCreated)
	h := NewIdempotentHandler("snapshot", inner, store, zap.NewNop())
	ev := newCreatedEvent(t, "Rice")

	store.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Empty(t, inner.Handled())
	assert.Equal(t, int64(1), h.Metrics().Stats().EventsDuplicate)
}

func TestIdempotentHandler_FailureReleasesMark(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newRecordingHandler(catalog.EventTypeProductCreated)
	handlerErr := errors.New("database unavailable")
	inner.setError(handlerErr)
	h := NewIdempotentHandler("snapshot", inner, store, zap.NewNop())
	ev := newCreatedEvent(t, "Rice")
	key := "snapshot:" + ev.EventID().String()

	store.On("MarkProcessed", mock.Anything, key, mock.Anything).Return(true, nil)
	store.On("Release", mock.Anything, key).Return(nil).Once()

	err := h.Handle(context.Background(), ev)
	assert.ErrorIs(t, err, handlerErr)
	assert.Equal(t, int64(1), h.Metrics().Stats().EventsFailed)
	store.AssertExpectations(t)
}

func TestIdempotentHandler_StoreErrorStillProcesses(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newRecordingHandler(catalog.EventTypeProductCreated)
	inner.setError(errors.New("still failing"))
	h := NewIdempotentHandler("snapshot", inner, store, zap.NewNop())

	store.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))

	err := h.Handle(context.Background(), newCreatedEvent(t, "Rice"))
	assert.Error(t, err)
	assert.Len(t, inner.Handled(), 1)
	// nothing was marked, so nothing is released
	store.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newRecordingHandler(catalog.EventTypeProductCreated)
	h := NewIdempotentHandler("snapshot", inner, store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))

	ev := newCreatedEvent(t, "Rice")
	require.NoError(t, h.Handle(context.Background(), ev))
	require.NoError(t, h.Handle(context.Background(), ev))

	assert.Len(t, inner.Handled(), 2)
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotentHandler_CustomTTL(t *testing.T) {
	store := new(MockIdempotencyStore)
	h := NewIdempotentHandler("snapshot", newRecordingHandler(), store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: true, TTL: time.Hour}))

	store.On("MarkProcessed", mock.Anything, mock.Anything, time.Hour).Return(true, nil)

	require.NoError(t, h.Handle(context.Background(), newCreatedEvent(t, "Rice")))
	store.AssertExpectations(t)
}

func TestIdempotentHandler_KeysAreNamespacedPerHandler(t *testing.T) {
	store := new(MockIdempotencyStore)
	metrics := &IdempotencyMetrics{}
	ev := newCreatedEvent(t, "Rice")

	store.On("MarkProcessed", mock.Anything, "snapshot:"+ev.EventID().String(), mock.Anything).Return(true, nil)
	store.On("MarkProcessed", mock.Anything, "audit:"+ev.EventID().String(), mock.Anything).Return(true, nil)

	snapshot := NewIdempotentHandler("snapshot", newRecordingHandler(), store, zap.NewNop(), WithIdempotencyMetrics(metrics))
	audit := NewIdempotentHandler("audit", newRecordingHandler(), store, zap.NewNop(), WithIdempotencyMetrics(metrics))

	require.NoError(t, snapshot.Handle(context.Background(), ev))
	require.NoError(t, audit.Handle(context.Background(), ev))

	assert.Equal(t, int64(2), metrics.Stats().EventsProcessed)
	store.AssertExpectations(t)
}

func TestIdempotentHandler_EventTypes(t *testing.T) {
	inner := newRecordingHandler(catalog.EventTypeProductCreated, catalog.EventTypeProductDeleted)
	h := NewIdempotentHandler("snapshot", inner, new(MockIdempotencyStore), zap.NewNop())
	assert.Equal(t, inner.EventTypes(), h.EventTypes())
}
