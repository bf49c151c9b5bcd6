package snapshot

import (
	"context"
	"fmt"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// ProductUpdatedHandler replaces existing snapshots with the updated product state.
// It never creates a snapshot: an update for an unknown product is dropped.
type ProductUpdatedHandler struct {
	repo     snapshot.ProductSnapshotRepository
	recorder SkipRecorder
	logger   *zap.Logger
}

// NewProductUpdatedHandler creates a new handler for product updated events
func NewProductUpdatedHandler(repo snapshot.ProductSnapshotRepository, recorder SkipRecorder, logger *zap.Logger) *ProductUpdatedHandler {
	if recorder == nil {
		recorder = nopSkipRecorder{}
	}
	return &ProductUpdatedHandler{repo: repo, recorder: recorder, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *ProductUpdatedHandler) EventTypes() []string {
	return []string{catalog.EventTypeProductUpdated}
}

// Handle overwrites the stored snapshot if there is one
func (h *ProductUpdatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	updated, ok := event.(*catalog.ProductUpdatedEvent)
	if !ok {
		return unexpectedEvent(h.logger, catalog.EventTypeProductUpdated, event)
	}

	fields := eventFields(event)
	changed, err := h.repo.UpdateIfExists(ctx, snapshot.FromPayload(updated.Product))
	if err != nil {
		h.logger.Error("failed to update product snapshot", append(fields, zap.Error(err))...)
		return fmt.Errorf("failed to update product snapshot: %w", err)
	}
	if !changed {
		// missing snapshot or a newer one already applied
		h.logger.Warn("no product snapshot to update, event skipped",
			append(fields, zap.Int("version", updated.Product.Version))...)
		h.recorder.RecordSnapshotSkipped(ctx, event.EventType())
		return nil
	}

	h.logger.Info("product snapshot updated", fields...)
	return nil
}

var _ shared.EventHandler = (*ProductUpdatedHandler)(nil)
