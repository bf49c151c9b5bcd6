package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/infrastructure/persistence/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var errNoOutbox = errors.New("events given but no outbox event saver is configured")

// GormProductRepository implements catalog.ProductRepository using GORM.
// Every write commits the product row and its domain events together.
type GormProductRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// SetOutboxEventSaver sets where events passed to the write methods are stored
func (r *GormProductRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// Create inserts a new product. An existing row with the same id is an error.
func (r *GormProductRepository) Create(ctx context.Context, product *catalog.Product, events ...shared.DomainEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.ProductModelFromDomain(product)).Error; err != nil {
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
	return storageError("create product", err)
}

// Update writes the descriptive fields of product only if the stored row is
// still at expectedVersion. The owner column is never written.
func (r *GormProductRepository) Update(ctx context.Context, product *catalog.Product, expectedVersion int, events ...shared.DomainEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ProductModel{}).
			Where("id = ? AND version = ?", product.ID, expectedVersion).
			Updates(map[string]any{
				"name":       product.Name,
				"category":   string(product.Category),
				"calories":   product.Calories,
				"protein":    product.Protein,
				"carbs":      product.Carbs,
				"fat":        product.Fat,
				"version":    product.Version,
				"updated_at": product.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.ProductModel{}).Where("id = ?", product.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.NewNotFoundError("Product", product.ID)
			}
			return shared.NewConcurrentModificationError("Product", product.ID)
		}
		return r.saveEvents(ctx, tx, events)
	})
	return storageError("update product", err)
}

func (r *GormProductRepository) saveEvents(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if r.outboxSaver == nil {
		return errNoOutbox
	}
	return r.outboxSaver.SaveEvents(ctx, tx, events...)
}

// storageError keeps domain errors and wraps everything else
func storageError(op string, err error) error {
	if err == nil || shared.ErrorCode(err) != "" {
		return err
	}
	return shared.NewStorageError(op, err)
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Product", id)
		}
		return nil, shared.NewStorageError("find product", err)
	}
	return model.ToDomain(), nil
}

// Search applies the category, name and visibility predicates and returns
// one zero-based page ordered by name.
func (r *GormProductRepository) Search(ctx context.Context, filter catalog.ProductSearchFilter, page, pageSize int) ([]catalog.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.ProductModel{})

	if filter.Category != nil {
		query = query.Where("category = ?", string(*filter.Category))
	}
	if filter.Name != "" {
		pattern := "%" + likeEscaper.Replace(cases.Lower(language.Und).String(filter.Name)) + "%"
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern)
	}
	if filter.OwnerUsername == nil {
		query = query.Where("owner_username IS NULL")
	} else {
		query = query.Where("owner_username IS NULL OR owner_username = ?", *filter.OwnerUsername)
	}

	var rows []models.ProductModel
	err := query.
		Order("name ASC").
		Order("id ASC").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, shared.NewStorageError("search products", err)
	}

	products := make([]catalog.Product, len(rows))
	for i := range rows {
		products[i] = *rows[i].ToDomain()
	}
	return products, nil
}

// DeleteByID removes a product permanently
func (r *GormProductRepository) DeleteByID(ctx context.Context, id uuid.UUID, events ...shared.DomainEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.ProductModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("Product", id)
		}
		return r.saveEvents(ctx, tx, events)
	})
	return storageError("delete product", err)
}

// CountByOwner counts the private products of username
func (r *GormProductRepository) CountByOwner(ctx context.Context, username string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Where("owner_username = ?", username).
		Count(&count).Error
	if err != nil {
		return 0, shared.NewStorageError("count products", err)
	}
	return count, nil
}

var _ catalog.ProductRepository = (*GormProductRepository)(nil)
