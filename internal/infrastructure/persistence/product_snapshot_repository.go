package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/domain/snapshot"
	"github.com/mealtracker/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var snapshotColumns = []string{
	"name", "category", "calories", "protein", "carbs", "fat",
	"owner_username", "version", "updated_at",
}

// GormProductSnapshotRepository implements snapshot.ProductSnapshotRepository using GORM
type GormProductSnapshotRepository struct {
	db *gorm.DB
}

// NewGormProductSnapshotRepository creates a new GormProductSnapshotRepository
func NewGormProductSnapshotRepository(db *gorm.DB) *GormProductSnapshotRepository {
	return &GormProductSnapshotRepository{db: db}
}

// Upsert inserts the snapshot or overwrites a stored one whose version is not newer
func (r *GormProductSnapshotRepository) Upsert(ctx context.Context, s *snapshot.ProductSnapshot) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns(snapshotColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "product_snapshots.version <= excluded.version"},
			}},
		}).
		Create(models.ProductSnapshotModelFromDomain(s))
	if result.Error != nil {
		return false, shared.NewStorageError("upsert snapshot", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateIfExists overwrites the stored snapshot unless it is missing or newer
func (r *GormProductSnapshotRepository) UpdateIfExists(ctx context.Context, s *snapshot.ProductSnapshot) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ProductSnapshotModel{}).
		Where("product_id = ? AND version <= ?", s.ProductID, s.Version).
		Updates(map[string]any{
			"name":           s.Name,
			"category":       string(s.Category),
			"calories":       s.Calories,
			"protein":        s.Protein,
			"carbs":          s.Carbs,
			"fat":            s.Fat,
			"owner_username": s.Owner,
			"version":        s.Version,
			"updated_at":     s.UpdatedAt,
		})
	if result.Error != nil {
		return false, shared.NewStorageError("update snapshot", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the snapshot if present
func (r *GormProductSnapshotRepository) Delete(ctx context.Context, productID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.ProductSnapshotModel{}, "product_id = ?", productID)
	if result.Error != nil {
		return false, shared.NewStorageError("delete snapshot", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FindByID finds a snapshot by product ID
func (r *GormProductSnapshotRepository) FindByID(ctx context.Context, productID uuid.UUID) (*snapshot.ProductSnapshot, error) {
	var model models.ProductSnapshotModel
	if err := r.db.WithContext(ctx).First(&model, "product_id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("ProductSnapshot", productID)
		}
		return nil, shared.NewStorageError("find snapshot", err)
	}
	return model.ToDomain(), nil
}

var _ snapshot.ProductSnapshotRepository = (*GormProductSnapshotRepository)(nil)
