package snapshot

import (
	"context"
	"fmt"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// ProductCreatedHandler stores a snapshot for every created product.
// Redelivery of the same event overwrites the snapshot with identical content.
type ProductCreatedHandler struct {
	repo   snapshot.ProductSnapshotRepository
	logger *zap.Logger
}

// NewProductCreatedHandler creates a new handler for product created events
func NewProductCreatedHandler(repo snapshot.ProductSnapshotRepository, logger *zap.Logger) *ProductCreatedHandler {
	return &ProductCreatedHandler{repo: repo, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *ProductCreatedHandler) EventTypes() []string {
	return []string{catalog.EventTypeProductCreated}
}

// Handle upserts the snapshot carried by a ProductCreatedEvent
func (h *ProductCreatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	created, ok := event.(*catalog.ProductCreatedEvent)
	if !ok {
		return unexpectedEvent(h.logger, catalog.EventTypeProductCreated, event)
	}

	fields := eventFields(event)
	written, err := h.repo.Upsert(ctx, snapshot.FromPayload(created.Product))
	if err != nil {
		h.logger.Error("failed to upsert product snapshot", append(fields, zap.Error(err))...)
		return fmt.Errorf("failed to upsert product snapshot: %w", err)
	}
	if !written {
		h.logger.Debug("newer product snapshot already stored, created event ignored",
			append(fields, zap.Int("version", created.Product.Version))...)
		return nil
	}

	h.logger.Info("product snapshot created", fields...)
	return nil
}

var _ shared.EventHandler = (*ProductCreatedHandler)(nil)
