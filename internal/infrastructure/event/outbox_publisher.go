package event

import (
	"context"
	"fmt"
	"time"

	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxPublisher appends events to the outbox table inside the transaction
// that writes their aggregate. Delivery to subscribers is done later by the
// OutboxProcessor.
type OutboxPublisher struct {
	repo       *GormOutboxRepository
	serializer *EventSerializer
	logger     *zap.Logger
	maxRetries int
}

// OutboxPublisherOption configures an OutboxPublisher
type OutboxPublisherOption func(*OutboxPublisher)

// WithMaxRetries sets how many delivery attempts an entry gets before it goes dead
func WithMaxRetries(n int) OutboxPublisherOption {
	return func(p *OutboxPublisher) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(repo *GormOutboxRepository, serializer *EventSerializer, logger *zap.Logger, opts ...OutboxPublisherOption) *OutboxPublisher {
	p := &OutboxPublisher{
		repo:       repo,
		serializer: serializer,
		logger:     logger,
		maxRetries: shared.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishWithTx stores events inside the caller's transaction. Entries keep
// the order of events.
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	return p.save(ctx, p.repo.WithTx(tx), events)
}

// SaveEvents implements shared.OutboxEventSaver
func (p *OutboxPublisher) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}
	return p.PublishWithTx(ctx, tx, events...)
}

func (p *OutboxPublisher) save(ctx context.Context, repo *GormOutboxRepository, events []shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for i, ev := range events {
		payload, err := p.serializer.Serialize(ev)
		if err != nil {
			return err
		}
		entry := shared.NewOutboxEntry(ev, payload)
		entry.MaxRetries = p.maxRetries
		// created_at orders delivery and postgres keeps microseconds only
		entry.CreatedAt = entry.CreatedAt.Truncate(time.Microsecond)
		if i > 0 && !entry.CreatedAt.After(entries[i-1].CreatedAt) {
			entry.CreatedAt = entries[i-1].CreatedAt.Add(time.Microsecond)
		}
		entries = append(entries, entry)
	}

	if err := repo.Save(ctx, entries...); err != nil {
		return err
	}

	for _, e := range entries {
		p.logger.Debug("event queued",
			zap.String("event_type", e.EventType),
			zap.String("topic", catalog.TopicFor(e.EventType)),
			zap.String("aggregate_id", e.AggregateID.String()),
		)
	}
	return nil
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
