package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, shared.DomainEvent) error {
	panic("boom")
}

func (panickingHandler) EventTypes() []string {
	return nil
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	created := newRecordingHandler(catalog.EventTypeProductCreated)
	deleted := newRecordingHandler(catalog.EventTypeProductDeleted)
	bus.Subscribe(created)
	bus.Subscribe(deleted)

	ev := newCreatedEvent(t, "Rice")
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Len(t, created.Handled(), 1)
	assert.Equal(t, ev.EventID(), created.Handled()[0].EventID())
	assert.Empty(t, deleted.Handled())
}

func TestInMemoryEventBus_Publish_KeepsOrder(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	all := newRecordingHandler()
	bus.Subscribe(all)

	first := newCreatedEvent(t, "Rice")
	second := newDeletedEvent(first.AggregateID())
	require.NoError(t, bus.Publish(context.Background(), first, second))

	handled := all.Handled()
	require.Len(t, handled, 2)
	assert.Equal(t, catalog.EventTypeProductCreated, handled[0].EventType())
	assert.Equal(t, catalog.EventTypeProductDeleted, handled[1].EventType())
}

func TestInMemoryEventBus_Publish_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newRecordingHandler(catalog.EventTypeProductCreated)
	bus.Subscribe(h, catalog.EventTypeProductDeleted)

	require.NoError(t, bus.Publish(context.Background(), newCreatedEvent(t, "Rice")))
	assert.Empty(t, h.Handled())

	require.NoError(t, bus.Publish(context.Background(), newDeletedEvent(uuid.New())))
	assert.Len(t, h.Handled(), 1)
}

func TestInMemoryEventBus_Publish_HandlerErrorsAreJoined(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	errA := errors.New("snapshot store down")
	errB := errors.New("search index down")

	failingA := newRecordingHandler(catalog.EventTypeProductCreated)
	failingA.setError(errA)
	healthy := newRecordingHandler(catalog.EventTypeProductCreated)
	failingB := newRecordingHandler(catalog.EventTypeProductCreated)
	failingB.setError(errB)
	bus.Subscribe(failingA)
	bus.Subscribe(healthy)
	bus.Subscribe(failingB)

	err := bus.Publish(context.Background(), newCreatedEvent(t, "Rice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, healthy.Handled(), 1, "every handler sees the event")
}

func TestInMemoryEventBus_Publish_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(panickingHandler{}, catalog.EventTypeProductCreated)
	after := newRecordingHandler(catalog.EventTypeProductCreated)
	bus.Subscribe(after)

	err := bus.Publish(context.Background(), newCreatedEvent(t, "Rice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, after.Handled(), 1)
}

func TestInMemoryEventBus_Publish_NoHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	assert.NoError(t, bus.Publish(context.Background(), newCreatedEvent(t, "Rice")))
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newRecordingHandler(catalog.EventTypeProductCreated)
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newCreatedEvent(t, "Rice")))
	assert.Empty(t, h.Handled())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	assert.NoError(t, bus.Start(context.Background()))
	assert.NoError(t, bus.Stop(context.Background()))
}
