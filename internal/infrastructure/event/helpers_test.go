package event

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/require"
)

func newCreatedEvent(t *testing.T, name string) *catalog.ProductCreatedEvent {
	t.Helper()
	p, err := catalog.NewProduct(catalog.ProductAttributes{
		Name:     name,
		Category: catalog.CategoryCereal,
		Calories: 130,
		Protein:  3,
		Carbs:    28,
	}, nil)
	require.NoError(t, err)
	return catalog.NewProductCreatedEvent(p)
}

func newDeletedEvent(id uuid.UUID) *catalog.ProductDeletedEvent {
	return catalog.NewProductDeletedEvent(id)
}

// recordingHandler remembers what it handled and returns err when set
type recordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

func newRecordingHandler(eventTypes ...string) *recordingHandler {
	return &recordingHandler{eventTypes: eventTypes}
}

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, ev)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *recordingHandler) Handled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}
