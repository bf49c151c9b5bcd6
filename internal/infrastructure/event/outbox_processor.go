package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// Concurrency bounds how many aggregates are delivered in parallel.
	// Entries of one aggregate are always delivered one after another.
	Concurrency int
	// ProcessingTimeout is how long an entry may stay claimed before it is
	// considered abandoned and queued again
	ProcessingTimeout time.Duration
	CleanupEnabled    bool
	CleanupRetention  time.Duration
	CleanupInterval   time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:         100,
		PollInterval:      5 * time.Second,
		Concurrency:       4,
		ProcessingTimeout: 5 * time.Minute,
		CleanupEnabled:    true,
		CleanupRetention:  7 * 24 * time.Hour,
		CleanupInterval:   time.Hour,
	}
}

// DeliveryFailureRecorder counts failed deliveries per event type
type DeliveryFailureRecorder interface {
	RecordPublishFailure(ctx context.Context, eventType string)
}

// OutboxProcessor delivers outbox entries to the event bus.
//
// Delivery is at-least-once: an entry is marked sent only after every handler
// accepted it. Entries of the same aggregate are delivered in creation order;
// while one of them is failing or in flight, the later ones wait.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	failures   DeliveryFailureRecorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &OutboxProcessor{
		repo:       repo,
		bus:        bus,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
}

// SetFailureRecorder sets where failed deliveries are counted
func (p *OutboxProcessor) SetFailureRecorder(r DeliveryFailureRecorder) {
	p.failures = r
}

// Start starts the polling and cleanup loops
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("concurrency", p.config.Concurrency),
	)
	return nil
}

// Stop cancels the loops and waits for the current batch to finish
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce delivers one batch of due entries and returns how many were sent
func (p *OutboxProcessor) RunOnce(ctx context.Context) int {
	if p.config.ProcessingTimeout > 0 {
		released, err := p.repo.ReleaseStale(ctx, time.Now().Add(-p.config.ProcessingTimeout))
		if err != nil {
			p.logger.Error("failed to release stale outbox entries", zap.Error(err))
		} else if released > 0 {
			p.logger.Warn("released stale outbox entries", zap.Int64("count", released))
		}
	}

	candidates, err := p.findCandidates(ctx)
	if err != nil {
		p.logger.Error("failed to load outbox entries", zap.Error(err))
		return 0
	}
	if len(candidates) == 0 {
		return 0
	}

	chains, err := p.orderedChains(ctx, candidates)
	if err != nil {
		p.logger.Error("failed to resolve outbox ordering", zap.Error(err))
		return 0
	}

	var ids []uuid.UUID
	for _, chain := range chains {
		for _, e := range chain {
			ids = append(ids, e.ID)
		}
	}
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim outbox entries", zap.Error(err))
		return 0
	}
	claimedByID := make(map[uuid.UUID]*shared.OutboxEntry, len(claimed))
	for _, e := range claimed {
		claimedByID[e.ID] = e
	}

	var (
		mu   sync.Mutex
		sent int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, chain := range chains {
		g.Go(func() error {
			n := p.deliverChain(gctx, chain, claimedByID)
			mu.Lock()
			sent += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return sent
}

// findCandidates merges pending and due-for-retry entries, oldest first
func (p *OutboxProcessor) findCandidates(ctx context.Context) ([]*shared.OutboxEntry, error) {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		return nil, err
	}
	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(pending)+len(retryable))
	out := make([]*shared.OutboxEntry, 0, len(pending)+len(retryable))
	for _, e := range append(pending, retryable...) {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// orderedChains returns, per aggregate, the longest run of candidates that
// starts at the aggregate's oldest undelivered entry.
func (p *OutboxProcessor) orderedChains(ctx context.Context, candidates []*shared.OutboxEntry) ([][]*shared.OutboxEntry, error) {
	isCandidate := make(map[uuid.UUID]*shared.OutboxEntry, len(candidates))
	var aggIDs []uuid.UUID
	seenAgg := make(map[uuid.UUID]struct{})
	for _, e := range candidates {
		isCandidate[e.ID] = e
		if _, ok := seenAgg[e.AggregateID]; !ok {
			seenAgg[e.AggregateID] = struct{}{}
			aggIDs = append(aggIDs, e.AggregateID)
		}
	}

	unsettled, err := p.repo.FindUnsettled(ctx, aggIDs)
	if err != nil {
		return nil, err
	}
	sortEntries(unsettled)

	byAgg := make(map[uuid.UUID][]*shared.OutboxEntry, len(aggIDs))
	for _, e := range unsettled {
		byAgg[e.AggregateID] = append(byAgg[e.AggregateID], e)
	}

	chains := make([][]*shared.OutboxEntry, 0, len(aggIDs))
	for _, agg := range aggIDs {
		var chain []*shared.OutboxEntry
		for _, e := range byAgg[agg] {
			c, ok := isCandidate[e.ID]
			if !ok {
				if len(chain) == 0 {
					p.logger.Debug("aggregate blocked by earlier outbox entry",
						zap.String("aggregate_id", agg.String()),
						zap.String("blocking_entry", e.ID.String()),
						zap.String("status", string(e.Status)),
					)
				}
				break
			}
			chain = append(chain, c)
		}
		if len(chain) > 0 {
			chains = append(chains, chain)
		}
	}
	return chains, nil
}

// deliverChain delivers one aggregate's entries in order and stops at the
// first failure, handing the rest back to the queue untouched.
func (p *OutboxProcessor) deliverChain(ctx context.Context, chain []*shared.OutboxEntry, claimed map[uuid.UUID]*shared.OutboxEntry) int {
	sent := 0
	blocked := false
	for _, candidate := range chain {
		entry, ok := claimed[candidate.ID]
		if !ok {
			// claimed by another processor; everything after it must wait
			blocked = true
			continue
		}
		if blocked {
			entry.Requeue()
			if err := p.repo.Update(ctx, entry); err != nil {
				p.logger.Error("failed to requeue outbox entry", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			}
			continue
		}
		if p.deliver(ctx, entry) {
			sent++
		} else {
			blocked = true
		}
	}
	return sent
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) bool {
	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("topic", catalog.TopicFor(entry.EventType)),
		zap.String("aggregate_id", entry.AggregateID.String()),
	}

	ev, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.bus.Publish(ctx, ev)
	}

	if err != nil {
		if p.failures != nil {
			p.failures.RecordPublishFailure(ctx, entry.EventType)
		}
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			p.logger.Error("event moved to dead letter queue",
				append(fields, zap.Int("retry_count", entry.RetryCount), zap.String("last_error", entry.LastError))...)
		} else {
			p.logger.Warn("event delivery failed, will retry",
				append(fields, zap.Int("retry_count", entry.RetryCount), zap.Timep("next_retry_at", entry.NextRetryAt), zap.Error(shared.NewPublishError(entry.EventType, err)))...)
		}
		if updateErr := p.repo.Update(ctx, entry); updateErr != nil {
			p.logger.Error("failed to update outbox entry", append(fields, zap.Error(updateErr))...)
		}
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		// the entry is released after ProcessingTimeout and delivered again
		p.logger.Error("failed to mark outbox entry as sent", append(fields, zap.Error(err))...)
		return true
	}
	p.logger.Debug("event delivered", fields...)
	return true
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to clean up outbox entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up outbox entries", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}

func sortEntries(entries []*shared.OutboxEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}
