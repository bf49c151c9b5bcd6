package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/identity"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/infrastructure/logger"
	"github.com/mealtracker/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxCustomProducts is how many private products one user may own
	MaxCustomProducts = 100
	// SearchPageSize is the number of products per search page
	SearchPageSize = 50
)

// OperationRecorder receives service outcomes. telemetry.CatalogMetrics implements it.
type OperationRecorder interface {
	RecordOperation(ctx context.Context, operation, outcome string, elapsed time.Duration)
	RecordQuotaRejected(ctx context.Context)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(context.Context, string, string, time.Duration) {}
func (nopRecorder) RecordQuotaRejected(context.Context)                            {}

// ProductServiceOption configures a ProductService
type ProductServiceOption func(*ProductService)

// WithRecorder reports operation outcomes to r
func WithRecorder(r OperationRecorder) ProductServiceOption {
	return func(s *ProductService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLimits overrides the private product quota and the search page size.
// Non-positive values keep the defaults.
func WithLimits(maxCustomProducts, searchPageSize int) ProductServiceOption {
	return func(s *ProductService) {
		if maxCustomProducts > 0 {
			s.maxCustomProducts = maxCustomProducts
		}
		if searchPageSize > 0 {
			s.searchPageSize = searchPageSize
		}
	}
}

// ProductPage is one page of search results
type ProductPage struct {
	Items    []ProductResponse `json:"items"`
	PageNo   int               `json:"page_no"`
	PageSize int               `json:"page_size"`
}

// ProductService is the entry point for every catalog operation.
//
// Writes to one product are serialised by a per-id lock: the cache entry is
// evicted before the new state is persisted and invalidated after it, and the
// resulting events are committed to the outbox together with the row.
// Read-through population takes the same lock in shared mode, so a concurrent
// miss in this process can never put a pre-update value back into the cache.
// Across processes the post-commit invalidation records the committed version
// as a floor, and the cache refuses older versions until it expires.
type ProductService struct {
	repo     catalog.ProductRepository
	cache    catalog.ProductCache
	logger   *zap.Logger
	recorder OperationRecorder

	maxCustomProducts int
	searchPageSize    int

	locks *keyedRWMutex
	loads singleflight.Group
}

// NewProductService creates a new ProductService
func NewProductService(
	repo catalog.ProductRepository,
	cache catalog.ProductCache,
	logger *zap.Logger,
	opts ...ProductServiceOption,
) *ProductService {
	s := &ProductService{
		repo:              repo,
		cache:             cache,
		logger:            logger,
		recorder:          nopRecorder{},
		maxCustomProducts: MaxCustomProducts,
		searchPageSize:    SearchPageSize,
		locks:             newKeyedRWMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new product. Global products require ADMIN; private
// products require ADMIN or USER and count against the caller's quota.
func (s *ProductService) Create(ctx context.Context, req ProductRequest, principal *identity.Principal, asPrivate bool) (_ *ProductResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product", "create", telemetry.SpanAttrPrivate, asPrivate)
	defer s.observe(ctx, span, "create", time.Now(), &err)

	var owner *string
	if asPrivate {
		if !identity.CanCreatePrivate(principal) {
			return nil, shared.NewPermissionDeniedError("not allowed to create private products")
		}
		// quota check and insert must not interleave for one owner
		unlock := s.locks.Lock("owner:" + principal.Username)
		defer unlock()

		count, err := s.repo.CountByOwner(ctx, principal.Username)
		if err != nil {
			return nil, asStorageError("count products", err)
		}
		if count >= int64(s.maxCustomProducts) {
			s.recorder.RecordQuotaRejected(ctx)
			return nil, shared.NewQuotaExceededError("maximum number of custom products reached")
		}
		owner = principal.UsernameOrNil()
	} else if !identity.CanCreateGlobal(principal) {
		return nil, shared.NewPermissionDeniedError("only administrators can create global products")
	}

	product, err := catalog.NewProduct(req.Attributes(), owner)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrProductID, product.ID)

	events := takeEvents(product)
	if err := s.repo.Create(ctx, product, events...); err != nil {
		return nil, asStorageError("save product", err)
	}
	s.logQueued(ctx, product.ID, events)

	return ToProductResponse(product), nil
}

// Read returns a product the principal may see. Global products are served
// through the cache; private ones are never cached.
func (s *ProductService) Read(ctx context.Context, id uuid.UUID, principal *identity.Principal) (_ *ProductResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product", "read", telemetry.SpanAttrProductID, id)
	defer s.observe(ctx, span, "read", time.Now(), &err)

	product, hit, err := s.cache.Get(ctx, id)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Warn("product cache lookup failed", zap.String("product_id", id.String()), zap.Error(err))
		hit = false
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCacheHit, hit)

	if !hit {
		if product, err = s.load(ctx, id); err != nil {
			return nil, err
		}
	}
	if !identity.CanRead(principal, product) {
		return nil, shared.NewPermissionDeniedError("not allowed to read this product")
	}
	return ToProductResponse(product), nil
}

// load fetches a product from the repository and caches it when global.
// Concurrent misses for the same id share one fetch. The fetch outlives the
// caller that started it; a caller whose ctx ends stops waiting on its own.
func (s *ProductService) load(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	key := id.String()
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(key, func() (any, error) {
		unlock := s.locks.RLock(key)
		defer unlock()

		product, err := s.repo.FindByID(fetchCtx, id)
		if err != nil {
			return nil, asStorageError("find product", err)
		}
		if product.IsGlobal() {
			if err := s.cache.Put(fetchCtx, product); err != nil {
				logger.WithLogger(fetchCtx, s.logger).Warn("failed to populate product cache", zap.String("product_id", key), zap.Error(err))
			}
		}
		return product, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.Product).Clone(), nil
	case <-ctx.Done():
		return nil, shared.NewStorageError("find product", ctx.Err())
	}
}

// Search returns one page of products visible to the principal: every global
// product plus the principal's own. Anonymous callers only see global ones.
// An empty category or name matches everything. The cache is not consulted.
func (s *ProductService) Search(ctx context.Context, pageNo int, category, name string, principal *identity.Principal) (_ *ProductPage, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product", "search",
		telemetry.SpanAttrPage, pageNo,
		telemetry.SpanAttrCategory, category,
	)
	defer s.observe(ctx, span, "search", time.Now(), &err)

	if pageNo < 0 {
		return nil, shared.NewInvalidArgumentError("pageNo: must be greater than or equal to 0")
	}

	filter := catalog.ProductSearchFilter{
		Name:          name,
		OwnerUsername: principal.UsernameOrNil(),
	}
	if category != "" {
		c, err := catalog.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		filter.Category = &c
	}

	products, err := s.repo.Search(ctx, filter, pageNo, s.searchPageSize)
	if err != nil {
		return nil, asStorageError("search products", err)
	}
	return &ProductPage{
		Items:    ToProductResponses(products),
		PageNo:   pageNo,
		PageSize: s.searchPageSize,
	}, nil
}

// Update replaces the descriptive fields of a product. The owner never changes.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req ProductRequest, principal *identity.Principal) (_ *ProductResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product", "update", telemetry.SpanAttrProductID, id)
	defer s.observe(ctx, span, "update", time.Now(), &err)

	unlock := s.locks.Lock(id.String())
	defer unlock()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, asStorageError("find product", err)
	}
	if !identity.CanModify(principal, product) {
		return nil, shared.NewPermissionDeniedError("not allowed to modify this product")
	}

	if err := s.evict(ctx, id); err != nil {
		return nil, err
	}
	expected := product.Version
	if err := product.Update(req.Attributes()); err != nil {
		return nil, err
	}
	events := takeEvents(product)
	if err := s.repo.Update(ctx, product, expected, events...); err != nil {
		return nil, asStorageError("save product", err)
	}

	// committed: the caller can no longer cancel what follows
	committed := context.WithoutCancel(ctx)
	s.invalidate(committed, id, product.Version)
	s.logQueued(committed, id, events)

	return ToProductResponse(product), nil
}

// Delete removes a product for good
func (s *ProductService) Delete(ctx context.Context, id uuid.UUID, principal *identity.Principal) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product", "delete", telemetry.SpanAttrProductID, id)
	defer s.observe(ctx, span, "delete", time.Now(), &err)

	unlock := s.locks.Lock(id.String())
	defer unlock()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return asStorageError("find product", err)
	}
	if !identity.CanModify(principal, product) {
		return shared.NewPermissionDeniedError("not allowed to delete this product")
	}

	if err := s.evict(ctx, id); err != nil {
		return err
	}
	product.MarkDeleted()
	events := takeEvents(product)
	if err := s.repo.DeleteByID(ctx, id, events...); err != nil {
		return asStorageError("delete product", err)
	}

	committed := context.WithoutCancel(ctx)
	s.invalidate(committed, id, catalog.VersionDeleted)
	s.logQueued(committed, id, events)
	return nil
}

// evict runs before a write is persisted. A cache that cannot be cleared
// aborts the write, so no reader is left with the old value.
func (s *ProductService) evict(ctx context.Context, id uuid.UUID) error {
	if err := s.cache.Evict(ctx, id); err != nil {
		return shared.NewStorageError("evict cached product", err)
	}
	return nil
}

// invalidate runs after a write is committed. A failure is logged and the
// write stands.
func (s *ProductService) invalidate(ctx context.Context, id uuid.UUID, minVersion int) {
	if err := s.cache.Invalidate(ctx, id, minVersion); err != nil {
		logger.WithLogger(ctx, s.logger).Error("failed to invalidate product after write",
			zap.String("product_id", id.String()), zap.Int("min_version", minVersion), zap.Error(err))
	}
}

// takeEvents drains the product's pending events so they can be committed with it
func takeEvents(product *catalog.Product) []shared.DomainEvent {
	events := product.GetDomainEvents()
	product.ClearDomainEvents()
	return events
}

func (s *ProductService) logQueued(ctx context.Context, id uuid.UUID, events []shared.DomainEvent) {
	log := logger.WithLogger(ctx, s.logger)
	for _, ev := range events {
		log.Debug("product event queued",
			zap.String("product_id", id.String()),
			zap.String("event_id", ev.EventID().String()),
			zap.String("topic", catalog.TopicFor(ev.EventType())),
		)
	}
}

func (s *ProductService) observe(ctx context.Context, span trace.Span, operation string, start time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		outcome = shared.ErrorCode(err)
		telemetry.RecordError(span, err)
	}
	s.recorder.RecordOperation(ctx, operation, outcome, time.Since(start))
	span.End()
}

// asStorageError keeps domain errors as they are and wraps anything else
func asStorageError(op string, err error) error {
	if shared.ErrorCode(err) != "" {
		return err
	}
	return shared.NewStorageError(op, err)
}
