package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
)

// ProductSnapshot is the replicated, eventually consistent copy of a catalog
// product kept by consumers of product events.
type ProductSnapshot struct {
	ProductID uuid.UUID
	Name      string
	Category  catalog.Category
	Calories  int
	Protein   int
	Carbs     int
	Fat       int
	Owner     *string
	// Version is the product version of the last applied event
	Version   int
	UpdatedAt time.Time
}

// FromPayload builds a snapshot from an event payload
func FromPayload(p catalog.ProductPayload) *ProductSnapshot {
	var owner *string
	if p.Owner != nil {
		o := *p.Owner
		owner = &o
	}
	return &ProductSnapshot{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Calories:  p.Calories,
		Protein:   p.Protein,
		Carbs:     p.Carbs,
		Fat:       p.Fat,
		Owner:     owner,
		Version:   p.Version,
		UpdatedAt: time.Now(),
	}
}

// ProductSnapshotRepository persists snapshots.
// Writes never move a snapshot to a lower Version than the one stored.
type ProductSnapshotRepository interface {
	// Upsert inserts the snapshot or overwrites the stored one.
	// Returns false when the stored snapshot has a higher version and was kept.
	Upsert(ctx context.Context, s *ProductSnapshot) (bool, error)

	// UpdateIfExists overwrites an existing snapshot and reports whether a row changed.
	// A missing snapshot, or a stored one with a higher version, yields false.
	UpdateIfExists(ctx context.Context, s *ProductSnapshot) (bool, error)

	// Delete removes the snapshot and reports whether one existed
	Delete(ctx context.Context, productID uuid.UUID) (bool, error)

	// FindByID returns a NOT_FOUND domain error when absent
	FindByID(ctx context.Context, productID uuid.UUID) (*ProductSnapshot, error)
}

// Reconciler rebuilds snapshots that drifted because an event was lost for good.
// No implementation ships with the service; an Updated event for an unknown
// product is dropped and counted instead.
type Reconciler interface {
	Reconcile(ctx context.Context, productID uuid.UUID) error
}
