package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "catalog:product:invalidate"
	defaultCloseTimeout        = 5 * time.Second
)

// InvalidationAction identifies what a peer instance should drop
type InvalidationAction string

const (
	InvalidationActionEvict InvalidationAction = "evict"
	InvalidationActionPurge InvalidationAction = "purge"
)

// InvalidationMessage is broadcast on the invalidation channel.
// MinVersion is set when the evicted product got a version floor.
type InvalidationMessage struct {
	Action     InvalidationAction `json:"action"`
	ProductID  uuid.UUID          `json:"product_id,omitempty"`
	MinVersion int                `json:"min_version,omitempty"`
	Origin     string             `json:"origin"`
	Timestamp  int64              `json:"timestamp"`
}

// ProductCacheInvalidator broadcasts local evictions to other instances
// through Redis Pub/Sub. Messages published by this instance are skipped
// on receipt.
type ProductCacheInvalidator struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *zap.Logger

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	isRunning bool
	doneCh    chan struct{}
	doneOnce  sync.Once
}

// ProductCacheInvalidatorOption configures the invalidator
type ProductCacheInvalidatorOption func(*ProductCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) ProductCacheInvalidatorOption {
	return func(i *ProductCacheInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) ProductCacheInvalidatorOption {
	return func(i *ProductCacheInvalidator) {
		i.logger = logger
	}
}

// NewProductCacheInvalidator creates an invalidator on a shared client.
// The caller keeps ownership of the client.
func NewProductCacheInvalidator(client redis.UniversalClient, opts ...ProductCacheInvalidatorOption) *ProductCacheInvalidator {
	i := &ProductCacheInvalidator{
		client:  client,
		channel: defaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish sends msg to every subscriber
func (i *ProductCacheInvalidator) Publish(ctx context.Context, msg InvalidationMessage) error {
	msg.Origin = i.origin
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish cache invalidation",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation message: %w", err)
	}

	i.logger.Debug("Published cache invalidation",
		zap.String("action", string(msg.Action)),
		zap.String("product_id", msg.ProductID.String()))
	return nil
}

// PublishEvict asks peers to drop one product
func (i *ProductCacheInvalidator) PublishEvict(ctx context.Context, id uuid.UUID) error {
	return i.Publish(ctx, InvalidationMessage{Action: InvalidationActionEvict, ProductID: id})
}

// PublishInvalidate asks peers to drop one product and refuse versions below minVersion
func (i *ProductCacheInvalidator) PublishInvalidate(ctx context.Context, id uuid.UUID, minVersion int) error {
	return i.Publish(ctx, InvalidationMessage{Action: InvalidationActionEvict, ProductID: id, MinVersion: minVersion})
}

// PublishPurge asks peers to drop everything
func (i *ProductCacheInvalidator) PublishPurge(ctx context.Context) error {
	return i.Publish(ctx, InvalidationMessage{Action: InvalidationActionPurge})
}

// Subscribe blocks, invoking callback for every message from another instance,
// until ctx is cancelled or Close is called.
func (i *ProductCacheInvalidator) Subscribe(ctx context.Context, callback func(msg InvalidationMessage)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	subCtx, cancel := context.WithCancel(ctx)
	i.isRunning = true
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to cache invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Cache invalidation subscription stopped")
			return subCtx.Err()
		case raw, ok := <-ch:
			if !ok {
				i.logger.Warn("Cache invalidation channel closed")
				return nil
			}

			var msg InvalidationMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				i.logger.Error("Failed to unmarshal cache invalidation",
					zap.String("payload", raw.Payload),
					zap.Error(err))
				continue
			}
			if msg.Origin == i.origin {
				continue
			}
			i.dispatch(callback, msg)
		}
	}
}

func (i *ProductCacheInvalidator) dispatch(callback func(InvalidationMessage), msg InvalidationMessage) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in cache invalidation callback", zap.Any("panic", r))
		}
	}()
	callback(msg)
}

func (i *ProductCacheInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription. The client is left open.
func (i *ProductCacheInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for invalidation subscription to stop")
		}
	}
	return nil
}
