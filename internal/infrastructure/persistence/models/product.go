package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for catalog products.
// OwnerUsername is NULL for global products.
type ProductModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name          string    `gorm:"type:varchar(64);not null;index:idx_products_name"`
	Category      string    `gorm:"type:varchar(20);not null;index:idx_products_category"`
	Calories      int       `gorm:"not null"`
	Protein       int       `gorm:"not null"`
	Carbs         int       `gorm:"not null"`
	Fat           int       `gorm:"not null"`
	OwnerUsername *string   `gorm:"type:varchar(255);index:idx_products_owner"`
	Version       int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *catalog.Product {
	return catalog.RestoreProduct(
		m.ID,
		catalog.ProductAttributes{
			Name:     m.Name,
			Category: catalog.Category(m.Category),
			Calories: m.Calories,
			Protein:  m.Protein,
			Carbs:    m.Carbs,
			Fat:      m.Fat,
		},
		m.OwnerUsername,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

// ProductModelFromDomain creates a new persistence model from a domain Product
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	var owner *string
	if p.Owner != nil {
		o := *p.Owner
		owner = &o
	}
	return &ProductModel{
		ID:            p.ID,
		Name:          p.Name,
		Category:      string(p.Category),
		Calories:      p.Calories,
		Protein:       p.Protein,
		Carbs:         p.Carbs,
		Fat:           p.Fat,
		OwnerUsername: owner,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
