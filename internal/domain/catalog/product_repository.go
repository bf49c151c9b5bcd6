package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/shared"
)

// ProductSearchFilter narrows a product search.
// All set fields are ANDed together.
type ProductSearchFilter struct {
	// Category limits results to one category; nil matches every category
	Category *Category
	// Name is matched case-insensitively anywhere in the product name
	Name string
	// OwnerUsername adds that user's private products to the global ones.
	// Nil restricts the search to global products.
	OwnerUsername *string
}

// ProductRepository defines the interface for product persistence.
// Implementations report I/O failures as shared storage errors.
//
// The write methods take the domain events raised by the change and commit
// them to the outbox in the same transaction as the row: either both are
// stored or neither is.
type ProductRepository interface {
	// Create inserts a new product
	Create(ctx context.Context, product *Product, events ...shared.DomainEvent) error

	// Update stores the new state of product if the stored row is still at
	// expectedVersion. A missing row is NOT_FOUND; a row at any other version
	// is CONCURRENT_MODIFICATION. Nothing is written in either case.
	Update(ctx context.Context, product *Product, expectedVersion int, events ...shared.DomainEvent) error

	// FindByID returns a NOT_FOUND domain error when the product does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// Search returns one page of matches ordered by name ascending. page is zero-based.
	Search(ctx context.Context, filter ProductSearchFilter, page, pageSize int) ([]Product, error)

	// DeleteByID returns a NOT_FOUND domain error when nothing was deleted
	DeleteByID(ctx context.Context, id uuid.UUID, events ...shared.DomainEvent) error

	// CountByOwner counts the private products owned by username
	CountByOwner(ctx context.Context, username string) (int64, error)
}
