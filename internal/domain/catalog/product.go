package catalog

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/shared"
)

const (
	// MaxNameLength is the longest product name accepted, in characters
	MaxNameLength = 64
)

// ProductAttributes are the caller-editable fields of a product
type ProductAttributes struct {
	Name     string
	Category Category
	Calories int
	Protein  int
	Carbs    int
	Fat      int
}

// Validate checks the name, category and nutrition values
func (a ProductAttributes) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return shared.NewInvalidArgumentError("name: must not be blank")
	}
	if utf8.RuneCountInString(a.Name) > MaxNameLength {
		return shared.NewInvalidArgumentError("name: must be at most 64 characters")
	}
	if !a.Category.IsValid() {
		return shared.NewInvalidArgumentError("category: unknown category " + string(a.Category))
	}
	for _, f := range []struct {
		field string
		value int
	}{{"calories", a.Calories}, {"protein", a.Protein}, {"carbs", a.Carbs}, {"fat", a.Fat}} {
		if f.value < 0 {
			return shared.NewInvalidArgumentError(f.field + ": must be greater than or equal to 0")
		}
	}
	return nil
}

// Product is a catalog entry with its nutrition facts per serving.
// Products without an owner are global; owned products are private to that user.
type Product struct {
	shared.BaseAggregateRoot
	ProductAttributes
	Owner *string
}

// NewProduct creates a global product (owner == nil) or a private one.
// A ProductCreated event is queued on success.
func NewProduct(attrs ProductAttributes, owner *string) (*Product, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	if owner != nil && *owner == "" {
		return nil, shared.NewInvalidArgumentError("owner: must not be empty")
	}

	p := &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductAttributes: attrs,
		Owner:             cloneString(owner),
	}
	p.AddDomainEvent(NewProductCreatedEvent(p))
	return p, nil
}

// RestoreProduct rebuilds a product from persisted state without raising events.
func RestoreProduct(id uuid.UUID, attrs ProductAttributes, owner *string, version int, createdAt, updatedAt time.Time) *Product {
	return &Product{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			ID:        id,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
			Version:   version,
		},
		ProductAttributes: attrs,
		Owner:             cloneString(owner),
	}
}

// Update replaces the descriptive fields. Ownership never changes.
func (p *Product) Update(attrs ProductAttributes) error {
	if err := attrs.Validate(); err != nil {
		return err
	}
	p.ProductAttributes = attrs
	p.Touch()
	p.AddDomainEvent(NewProductUpdatedEvent(p))
	return nil
}

// MarkDeleted queues a ProductDeleted event. Deletion itself is done by the repository.
func (p *Product) MarkDeleted() {
	p.AddDomainEvent(NewProductDeletedEvent(p.ID))
}

// IsGlobal reports whether the product has no owner
func (p *Product) IsGlobal() bool {
	return p.Owner == nil
}

// OwnerUsername implements identity.Owned
func (p *Product) OwnerUsername() (string, bool) {
	if p.Owner == nil {
		return "", false
	}
	return *p.Owner, true
}

// Clone returns a deep copy without pending events, safe to hand to another goroutine.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	return RestoreProduct(p.ID, p.ProductAttributes, p.Owner, p.Version, p.CreatedAt, p.UpdatedAt)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
