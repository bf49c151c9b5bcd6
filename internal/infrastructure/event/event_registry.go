package event

import (
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
)

// RegisterCatalogEvents registers the product event types with the serializer.
// The outbox processor cannot deserialize unregistered types.
func RegisterCatalogEvents(serializer *EventSerializer) {
	serializer.Register(catalog.EventTypeProductCreated, func() shared.DomainEvent { return &catalog.ProductCreatedEvent{} })
	serializer.Register(catalog.EventTypeProductUpdated, func() shared.DomainEvent { return &catalog.ProductUpdatedEvent{} })
	serializer.Register(catalog.EventTypeProductDeleted, func() shared.DomainEvent { return &catalog.ProductDeletedEvent{} })
}
