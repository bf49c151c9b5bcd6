package snapshot

import (
	"context"
	"fmt"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// SkipRecorder counts events that were dropped because they could not be applied
type SkipRecorder interface {
	RecordSnapshotSkipped(ctx context.Context, eventType string)
}

type nopSkipRecorder struct{}

func (nopSkipRecorder) RecordSnapshotSkipped(context.Context, string) {}

// Handlers returns the created, updated and deleted handlers sharing one repository
func Handlers(repo snapshot.ProductSnapshotRepository, recorder SkipRecorder, logger *zap.Logger) []shared.EventHandler {
	return []shared.EventHandler{
		NewProductCreatedHandler(repo, logger),
		NewProductUpdatedHandler(repo, recorder, logger),
		NewProductDeletedHandler(repo, logger),
	}
}

func unexpectedEvent(logger *zap.Logger, expected string, event shared.DomainEvent) error {
	logger.Error("unexpected event type",
		zap.String("expected", expected),
		zap.String("actual", event.EventType()),
	)
	return fmt.Errorf("unexpected event type: expected %s, got %s", expected, event.EventType())
}

func eventFields(event shared.DomainEvent) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("product_id", event.AggregateID().String()),
		zap.String("topic", catalog.TopicFor(event.EventType())),
	}
}
