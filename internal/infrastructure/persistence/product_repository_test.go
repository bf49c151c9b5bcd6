package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestProduct(t *testing.T, name string, category catalog.Category, owner *string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(catalog.ProductAttributes{
		Name: name, Category: category, Calories: 100, Protein: 5, Carbs: 10, Fat: 2,
	}, owner)
	require.NoError(t, err)
	return p
}

func strPtr(s string) *string { return &s }

// tableOutbox writes event types into a plain table through the caller's transaction
type tableOutbox struct {
	err error
}

func (o *tableOutbox) SaveEvents(_ context.Context, txProvider any, events ...shared.DomainEvent) error {
	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", txProvider)
	}
	for _, ev := range events {
		if err := tx.Exec("INSERT INTO recorded_events (aggregate_id, event_type) VALUES (?, ?)", ev.AggregateID().String(), ev.EventType()).Error; err != nil {
			return err
		}
	}
	return o.err
}

func newOutboxRepository(t *testing.T) (*GormProductRepository, *gorm.DB, *tableOutbox) {
	t.Helper()
	db := setupCatalogTestDB(t)
	require.NoError(t, db.Exec("CREATE TABLE recorded_events (aggregate_id TEXT NOT NULL, event_type TEXT NOT NULL)").Error)
	outbox := &tableOutbox{}
	repo := NewGormProductRepository(db)
	repo.SetOutboxEventSaver(outbox)
	return repo, db, outbox
}

func recordedEvents(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var types []string
	require.NoError(t, db.Raw("SELECT event_type FROM recorded_events").Scan(&types).Error)
	return types
}

// pendingEvents drains the events the product raised so far
func pendingEvents(p *catalog.Product) []shared.DomainEvent {
	events := p.GetDomainEvents()
	p.ClearDomainEvents()
	return events
}

func TestGormProductRepository_CreateUpdateAndFind(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	t.Run("round trips a global product", func(t *testing.T) {
		p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)
		require.NoError(t, repo.Create(ctx, p))

		found, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, found.ID)
		assert.Equal(t, p.ProductAttributes, found.ProductAttributes)
		assert.Nil(t, found.Owner)
		assert.Equal(t, 1, found.Version)
	})

	t.Run("updates an existing product in place", func(t *testing.T) {
		p := newTestProduct(t, "Salmon", catalog.CategoryFish, strPtr("alice"))
		require.NoError(t, repo.Create(ctx, p))

		attrs := p.ProductAttributes
		attrs.Calories = 208
		require.NoError(t, p.Update(attrs))
		require.NoError(t, repo.Update(ctx, p, 1))

		found, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 208, found.Calories)
		assert.Equal(t, 2, found.Version)
		require.NotNil(t, found.Owner)
		assert.Equal(t, "alice", *found.Owner)
	})

	t.Run("returns not found for unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("create rejects a duplicate id", func(t *testing.T) {
		p := newTestProduct(t, "Oats", catalog.CategoryCereal, nil)
		require.NoError(t, repo.Create(ctx, p))
		err := repo.Create(ctx, p)
		assert.True(t, shared.IsStorageError(err))
	})
}

func TestGormProductRepository_UpdateAfterDeleteDoesNotRecreate(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)
	require.NoError(t, repo.Create(ctx, p))

	// another writer loaded the product before it was deleted
	stale, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteByID(ctx, p.ID))

	attrs := stale.ProductAttributes
	attrs.Name = "Brown rice"
	require.NoError(t, stale.Update(attrs))
	err = repo.Update(ctx, stale, 1)
	assert.True(t, shared.IsNotFound(err), "got %v", err)

	_, err = repo.FindByID(ctx, p.ID)
	assert.True(t, shared.IsNotFound(err), "deleted product must stay deleted")
}

func TestGormProductRepository_UpdateRejectsStaleVersion(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)
	require.NoError(t, repo.Create(ctx, p))

	first, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)

	attrs := first.ProductAttributes
	attrs.Name = "Brown rice"
	require.NoError(t, first.Update(attrs))
	require.NoError(t, repo.Update(ctx, first, 1))

	attrs.Name = "White rice"
	require.NoError(t, second.Update(attrs))
	err = repo.Update(ctx, second, 1)
	assert.True(t, shared.IsConcurrentModification(err), "got %v", err)

	found, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Brown rice", found.Name)
	assert.Equal(t, 2, found.Version)
}

func TestGormProductRepository_EventsShareTheTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("row and events are committed together", func(t *testing.T) {
		repo, db, _ := newOutboxRepository(t)
		p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)
		require.NoError(t, repo.Create(ctx, p, pendingEvents(p)...))

		attrs := p.ProductAttributes
		attrs.Calories = 350
		require.NoError(t, p.Update(attrs))
		require.NoError(t, repo.Update(ctx, p, 1, pendingEvents(p)...))

		p.MarkDeleted()
		require.NoError(t, repo.DeleteByID(ctx, p.ID, pendingEvents(p)...))

		assert.Equal(t, []string{catalog.EventTypeProductCreated, catalog.EventTypeProductUpdated, catalog.EventTypeProductDeleted}, recordedEvents(t, db))
	})

	t.Run("an outbox failure rolls the row back", func(t *testing.T) {
		repo, db, outbox := newOutboxRepository(t)
		outbox.err = errors.New("outbox unavailable")

		p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)
		err := repo.Create(ctx, p, pendingEvents(p)...)
		assert.True(t, shared.IsStorageError(err))

		_, err = repo.FindByID(ctx, p.ID)
		assert.True(t, shared.IsNotFound(err))
		assert.Empty(t, recordedEvents(t, db))
	})

	t.Run("a failed version check stores no event", func(t *testing.T) {
		repo, db, _ := newOutboxRepository(t)
		p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)
		require.NoError(t, repo.Create(ctx, p))

		attrs := p.ProductAttributes
		attrs.Calories = 350
		require.NoError(t, p.Update(attrs))
		err := repo.Update(ctx, p, 7, pendingEvents(p)...)
		assert.True(t, shared.IsConcurrentModification(err))
		assert.Empty(t, recordedEvents(t, db))
	})

	t.Run("events without an outbox are refused", func(t *testing.T) {
		db := setupCatalogTestDB(t)
		repo := NewGormProductRepository(db)
		p := newTestProduct(t, "Rice", catalog.CategoryCereal, nil)

		err := repo.Create(ctx, p, pendingEvents(p)...)
		assert.ErrorIs(t, err, errNoOutbox)
		_, err = repo.FindByID(ctx, p.ID)
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestGormProductRepository_Search(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	fixtures := []*catalog.Product{
		newTestProduct(t, "Brown Rice", catalog.CategoryCereal, nil),
		newTestProduct(t, "rice cake", catalog.CategorySweets, nil),
		newTestProduct(t, "Apple", catalog.CategoryFruits, nil),
		newTestProduct(t, "Alice's Rice", catalog.CategoryCereal, strPtr("alice")),
		newTestProduct(t, "Bob's Rice", catalog.CategoryCereal, strPtr("bob")),
		newTestProduct(t, "100%_juice", catalog.CategoryFruits, nil),
	}
	for _, p := range fixtures {
		require.NoError(t, repo.Create(ctx, p))
	}

	names := func(ps []catalog.Product) []string {
		out := make([]string, len(ps))
		for i := range ps {
			out[i] = ps[i].Name
		}
		return out
	}

	t.Run("anonymous sees global products only, ordered by name", func(t *testing.T) {
		got, err := repo.Search(ctx, catalog.ProductSearchFilter{Name: "RICE"}, 0, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"Brown Rice", "rice cake"}, names(got))
	})

	t.Run("owner sees own private products too", func(t *testing.T) {
		got, err := repo.Search(ctx, catalog.ProductSearchFilter{Name: "rice", OwnerUsername: strPtr("alice")}, 0, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"Alice's Rice", "Brown Rice", "rice cake"}, names(got))
	})

	t.Run("category narrows results", func(t *testing.T) {
		cereal := catalog.CategoryCereal
		got, err := repo.Search(ctx, catalog.ProductSearchFilter{Category: &cereal, OwnerUsername: strPtr("bob")}, 0, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"Bob's Rice", "Brown Rice"}, names(got))
	})

	t.Run("LIKE metacharacters are matched literally", func(t *testing.T) {
		got, err := repo.Search(ctx, catalog.ProductSearchFilter{Name: "%_"}, 0, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"100%_juice"}, names(got))
	})

	t.Run("pages are zero based", func(t *testing.T) {
		first, err := repo.Search(ctx, catalog.ProductSearchFilter{}, 0, 2)
		require.NoError(t, err)
		second, err := repo.Search(ctx, catalog.ProductSearchFilter{}, 1, 2)
		require.NoError(t, err)
		beyond, err := repo.Search(ctx, catalog.ProductSearchFilter{}, 5, 2)
		require.NoError(t, err)

		assert.Equal(t, []string{"100%_juice", "Apple"}, names(first))
		assert.Equal(t, []string{"Brown Rice", "rice cake"}, names(second))
		assert.Empty(t, beyond)
	})
}

func TestGormProductRepository_DeleteAndCount(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormProductRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestProduct(t, fmt.Sprintf("Snack %d", i), catalog.CategorySweets, strPtr("alice"))))
	}
	global := newTestProduct(t, "Milk", catalog.CategoryDairy, nil)
	require.NoError(t, repo.Create(ctx, global))

	count, err := repo.CountByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.CountByOwner(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.DeleteByID(ctx, global.ID))
	_, err = repo.FindByID(ctx, global.ID)
	assert.True(t, shared.IsNotFound(err))

	err = repo.DeleteByID(ctx, global.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestGormProductRepository_StorageErrors(t *testing.T) {
	gormDB, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormProductRepository(gormDB)

	id := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id = \$1 ORDER BY .* LIMIT .*`).
		WithArgs(id, 1).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.FindByID(context.Background(), id)

	require.Error(t, err)
	assert.True(t, shared.IsStorageError(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_SearchSQL(t *testing.T) {
	gormDB, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormProductRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE category = \$1 AND LOWER\(name\) LIKE \$2 ESCAPE '\\' AND \(owner_username IS NULL OR owner_username = \$3\) ORDER BY name ASC,id ASC LIMIT \$4 OFFSET \$5`).
		WithArgs("CEREAL", "%rice%", "alice", 50, 50).
		WillReturnRows(mockProductRows())

	cereal := catalog.CategoryCereal
	_, err := repo.Search(context.Background(), catalog.ProductSearchFilter{
		Category:      &cereal,
		Name:          "Rice",
		OwnerUsername: strPtr("alice"),
	}, 1, 50)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func mockProductRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "category", "calories", "protein", "carbs", "fat", "owner_username", "version", "created_at", "updated_at"}).
		AddRow(uuid.New().String(), "Rice", "CEREAL", 130, 3, 28, 0, nil, 1, time.Now(), time.Now())
}
