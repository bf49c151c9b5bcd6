package catalog

import (
	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeProduct = "Product"

// Event type constants
const (
	EventTypeProductCreated = "ProductCreated"
	EventTypeProductUpdated = "ProductUpdated"
	EventTypeProductDeleted = "ProductDeleted"
)

var topics = map[string]string{
	EventTypeProductCreated: "product.created",
	EventTypeProductUpdated: "product.updated",
	EventTypeProductDeleted: "product.deleted",
}

// TopicFor returns the channel topic an event type is routed to
func TopicFor(eventType string) string {
	if t, ok := topics[eventType]; ok {
		return t
	}
	return "product.unknown"
}

// ProductPayload is the full product state carried by Created and Updated events
type ProductPayload struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category Category  `json:"category"`
	Calories int       `json:"calories"`
	Protein  int       `json:"protein"`
	Carbs    int       `json:"carbs"`
	Fat      int       `json:"fat"`
	Owner    *string   `json:"owner,omitempty"`
	Version  int       `json:"version"`
}

// PayloadOf captures the current state of p
func PayloadOf(p *Product) ProductPayload {
	return ProductPayload{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Calories: p.Calories,
		Protein:  p.Protein,
		Carbs:    p.Carbs,
		Fat:      p.Fat,
		Owner:    cloneString(p.Owner),
		Version:  p.Version,
	}
}

// ProductCreatedEvent is published after a product is persisted for the first time
type ProductCreatedEvent struct {
	shared.BaseDomainEvent
	Product ProductPayload `json:"product"`
}

// NewProductCreatedEvent creates a new ProductCreatedEvent
func NewProductCreatedEvent(p *Product) *ProductCreatedEvent {
	return &ProductCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductCreated, AggregateTypeProduct, p.ID),
		Product:         PayloadOf(p),
	}
}

// ProductUpdatedEvent is published after a product's fields were replaced
type ProductUpdatedEvent struct {
	shared.BaseDomainEvent
	Product ProductPayload `json:"product"`
}

// NewProductUpdatedEvent creates a new ProductUpdatedEvent
func NewProductUpdatedEvent(p *Product) *ProductUpdatedEvent {
	return &ProductUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductUpdated, AggregateTypeProduct, p.ID),
		Product:         PayloadOf(p),
	}
}

// ProductDeletedEvent carries only the id of the removed product
type ProductDeletedEvent struct {
	shared.BaseDomainEvent
	ProductID uuid.UUID `json:"product_id"`
}

// NewProductDeletedEvent creates a new ProductDeletedEvent
func NewProductDeletedEvent(id uuid.UUID) *ProductDeletedEvent {
	return &ProductDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductDeleted, AggregateTypeProduct, id),
		ProductID:       id,
	}
}
