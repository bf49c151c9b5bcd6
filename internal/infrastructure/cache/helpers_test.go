package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/stretchr/testify/require"
)

func newGlobalProduct(t *testing.T, name string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(catalog.ProductAttributes{
		Name:     name,
		Category: catalog.CategoryCereal,
		Calories: 130,
		Protein:  3,
		Carbs:    28,
	}, nil)
	require.NoError(t, err)
	p.ClearDomainEvents()
	return p
}

func newPrivateProduct(t *testing.T, name, owner string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(catalog.ProductAttributes{
		Name:     name,
		Category: catalog.CategoryNuts,
		Calories: 600,
	}, &owner)
	require.NoError(t, err)
	p.ClearDomainEvents()
	return p
}

// mapCache is an unbounded ProductCache used as a stand-in for Redis.
// Its floors never expire.
type mapCache struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*catalog.Product
	floors   map[uuid.UUID]int
	getErr   error
	evictErr error
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[uuid.UUID]*catalog.Product), floors: make(map[uuid.UUID]int)}
}

func (m *mapCache) Get(_ context.Context, id uuid.UUID) (*catalog.Product, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	p, ok := m.items[id]
	return p.Clone(), ok, nil
}

func (m *mapCache) Put(_ context.Context, p *catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.IsGlobal() && p.Version >= m.floors[p.ID] {
		m.items[p.ID] = p.Clone()
	}
	return nil
}

func (m *mapCache) Evict(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evictErr != nil {
		return m.evictErr
	}
	delete(m.items, id)
	return nil
}

func (m *mapCache) Invalidate(_ context.Context, id uuid.UUID, minVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evictErr != nil {
		return m.evictErr
	}
	delete(m.items, id)
	m.floors[id] = max(m.floors[id], minVersion)
	return nil
}

func (m *mapCache) has(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok
}

var errBackend = errors.New("backend unavailable")
