package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/identity"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

var (
	admin = identity.NewPrincipal("root", identity.RoleAdmin)
	alice = identity.NewPrincipal("alice", identity.RoleUser)
	bob   = identity.NewPrincipal("bob", identity.RoleUser)
	// anonymous callers are a nil principal
	anonymous *identity.Principal
)

func riceRequest() ProductRequest {
	return ProductRequest{Name: "Rice", Category: "CEREAL", Calories: 130, Protein: 3, Carbs: 28, Fat: 0}
}

func newGlobalProduct(name string) *catalog.Product {
	p, err := catalog.NewProduct(catalog.ProductAttributes{Name: name, Category: catalog.CategoryCereal, Calories: 100}, nil)
	if err != nil {
		panic(err)
	}
	p.ClearDomainEvents()
	return p
}

func newPrivateProduct(name, owner string) *catalog.Product {
	p, err := catalog.NewProduct(catalog.ProductAttributes{Name: name, Category: catalog.CategoryNuts, Calories: 600}, &owner)
	if err != nil {
		panic(err)
	}
	p.ClearDomainEvents()
	return p
}

// MockProductRepository is a mock implementation of catalog.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product *catalog.Product, events ...shared.DomainEvent) error {
	args := m.Called(ctx, product, events)
	return args.Error(0)
}

func (m *MockProductRepository) Update(ctx context.Context, product *catalog.Product, expectedVersion int, events ...shared.DomainEvent) error {
	args := m.Called(ctx, product, expectedVersion, events)
	return args.Error(0)
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Search(ctx context.Context, filter catalog.ProductSearchFilter, page, pageSize int) ([]catalog.Product, error) {
	args := m.Called(ctx, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) DeleteByID(ctx context.Context, id uuid.UUID, events ...shared.DomainEvent) error {
	args := m.Called(ctx, id, events)
	return args.Error(0)
}

func (m *MockProductRepository) CountByOwner(ctx context.Context, username string) (int64, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(int64), args.Error(1)
}

// MockProductCache is a mock implementation of catalog.ProductCache
type MockProductCache struct {
	mock.Mock
}

func (m *MockProductCache) Get(ctx context.Context, id uuid.UUID) (*catalog.Product, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*catalog.Product), args.Bool(1), args.Error(2)
}

func (m *MockProductCache) Put(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductCache) Evict(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProductCache) Invalidate(ctx context.Context, id uuid.UUID, minVersion int) error {
	args := m.Called(ctx, id, minVersion)
	return args.Error(0)
}

// memoryRepository stores clones, like a database would. Events are kept
// only when the write they came with succeeds.
type memoryRepository struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*catalog.Product
	outbox    []shared.DomainEvent
	outboxErr error
	finds     int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{products: make(map[uuid.UUID]*catalog.Product)}
}

func (r *memoryRepository) Create(_ context.Context, product *catalog.Product, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; ok {
		return shared.NewStorageError("create product", errors.New("duplicate key"))
	}
	if err := r.commitEvents(events); err != nil {
		return err
	}
	r.products[product.ID] = product.Clone()
	return nil
}

func (r *memoryRepository) Update(_ context.Context, product *catalog.Product, expectedVersion int, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.products[product.ID]
	if !ok {
		return shared.NewNotFoundError("Product", product.ID)
	}
	if stored.Version != expectedVersion {
		return shared.NewConcurrentModificationError("Product", product.ID)
	}
	if err := r.commitEvents(events); err != nil {
		return err
	}
	r.products[product.ID] = product.Clone()
	return nil
}

func (r *memoryRepository) commitEvents(events []shared.DomainEvent) error {
	if len(events) > 0 && r.outboxErr != nil {
		return shared.NewStorageError("save events", r.outboxErr)
	}
	r.outbox = append(r.outbox, events...)
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	p, ok := r.products[id]
	if !ok {
		return nil, shared.NewNotFoundError("Product", id)
	}
	return p.Clone(), nil
}

func (r *memoryRepository) Search(context.Context, catalog.ProductSearchFilter, int, int) ([]catalog.Product, error) {
	return nil, nil
}

func (r *memoryRepository) DeleteByID(_ context.Context, id uuid.UUID, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return shared.NewNotFoundError("Product", id)
	}
	if err := r.commitEvents(events); err != nil {
		return err
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepository) CountByOwner(_ context.Context, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.products {
		if p.Owner != nil && *p.Owner == username {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) findCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

// events returns the events committed so far
func (r *memoryRepository) events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.DomainEvent, len(r.outbox))
	copy(out, r.outbox)
	return out
}

// gatedRepository holds the first FindByID after the row was read until
// release is closed. A ctx that ended meanwhile fails the call, like a
// database driver would.
type gatedRepository struct {
	*memoryRepository
	fetched chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedRepository(inner *memoryRepository) *gatedRepository {
	return &gatedRepository{
		memoryRepository: inner,
		fetched:          make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (r *gatedRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	p, err := r.memoryRepository.FindByID(ctx, id)
	gated := false
	r.once.Do(func() {
		gated = true
		close(r.fetched)
		<-r.release
	})
	if gated && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return p, err
}

// countingRecorder implements OperationRecorder
type countingRecorder struct {
	mu              sync.Mutex
	outcomes        map[string][]string
	quotaRejections int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: make(map[string][]string)}
}

func (r *countingRecorder) RecordOperation(_ context.Context, operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[operation] = append(r.outcomes[operation], outcome)
}

func (r *countingRecorder) RecordQuotaRejected(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotaRejections++
}

