package snapshot

import (
	"context"
	"fmt"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// ProductDeletedHandler removes snapshots of deleted products
type ProductDeletedHandler struct {
	repo   snapshot.ProductSnapshotRepository
	logger *zap.Logger
}

// NewProductDeletedHandler creates a new handler for product deleted events
func NewProductDeletedHandler(repo snapshot.ProductSnapshotRepository, logger *zap.Logger) *ProductDeletedHandler {
	return &ProductDeletedHandler{repo: repo, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *ProductDeletedHandler) EventTypes() []string {
	return []string{catalog.EventTypeProductDeleted}
}

// Handle deletes the snapshot. Deleting an absent snapshot succeeds.
func (h *ProductDeletedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	deleted, ok := event.(*catalog.ProductDeletedEvent)
	if !ok {
		return unexpectedEvent(h.logger, catalog.EventTypeProductDeleted, event)
	}

	fields := eventFields(event)
	existed, err := h.repo.Delete(ctx, deleted.ProductID)
	if err != nil {
		h.logger.Error("failed to delete product snapshot", append(fields, zap.Error(err))...)
		return fmt.Errorf("failed to delete product snapshot: %w", err)
	}
	if !existed {
		h.logger.Debug("product snapshot already absent", fields...)
		return nil
	}

	h.logger.Info("product snapshot deleted", fields...)
	return nil
}

var _ shared.EventHandler = (*ProductDeletedHandler)(nil)
