package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/snapshot"
)

// ProductSnapshotModel is the persistence model for replicated product snapshots
type ProductSnapshotModel struct {
	ProductID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name          string    `gorm:"type:varchar(64);not null"`
	Category      string    `gorm:"type:varchar(20);not null"`
	Calories      int       `gorm:"not null"`
	Protein       int       `gorm:"not null"`
	Carbs         int       `gorm:"not null"`
	Fat           int       `gorm:"not null"`
	OwnerUsername *string   `gorm:"type:varchar(255)"`
	Version       int       `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductSnapshotModel) TableName() string {
	return "product_snapshots"
}

// ToDomain converts the persistence model to a domain ProductSnapshot
func (m *ProductSnapshotModel) ToDomain() *snapshot.ProductSnapshot {
	return &snapshot.ProductSnapshot{
		ProductID: m.ProductID,
		Name:      m.Name,
		Category:  catalog.Category(m.Category),
		Calories:  m.Calories,
		Protein:   m.Protein,
		Carbs:     m.Carbs,
		Fat:       m.Fat,
		Owner:     m.OwnerUsername,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}

// ProductSnapshotModelFromDomain creates a new persistence model from a domain ProductSnapshot
func ProductSnapshotModelFromDomain(s *snapshot.ProductSnapshot) *ProductSnapshotModel {
	return &ProductSnapshotModel{
		ProductID:     s.ProductID,
		Name:          s.Name,
		Category:      string(s.Category),
		Calories:      s.Calories,
		Protein:       s.Protein,
		Carbs:         s.Carbs,
		Fat:           s.Fat,
		OwnerUsername: s.Owner,
		Version:       s.Version,
		UpdatedAt:     s.UpdatedAt,
	}
}
