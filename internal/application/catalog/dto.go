package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
)

// ProductRequest carries the descriptive fields for create and update
type ProductRequest struct {
	Name     string `json:"name" binding:"required,max=64" example:"Rice"`
	Category string `json:"category" binding:"required,product_category" example:"CEREAL"`
	Calories int    `json:"calories" binding:"min=0" example:"130"`
	Protein  int    `json:"protein" binding:"min=0" example:"3"`
	Carbs    int    `json:"carbs" binding:"min=0" example:"28"`
	Fat      int    `json:"fat" binding:"min=0" example:"0"`
}

// Attributes converts the request into domain attributes.
// The category is normalised; validation happens in the domain.
func (r ProductRequest) Attributes() catalog.ProductAttributes {
	category, err := catalog.ParseCategory(r.Category)
	if err != nil {
		category = catalog.Category(r.Category)
	}
	return catalog.ProductAttributes{
		Name:     r.Name,
		Category: category,
		Calories: r.Calories,
		Protein:  r.Protein,
		Carbs:    r.Carbs,
		Fat:      r.Fat,
	}
}

// ProductResponse is the public representation of a product
type ProductResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Calories  int       `json:"calories"`
	Protein   int       `json:"protein"`
	Carbs     int       `json:"carbs"`
	Fat       int       `json:"fat"`
	Owner     *string   `json:"owner,omitempty"`
	Private   bool      `json:"private"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToProductResponse converts a domain product to a response
func ToProductResponse(p *catalog.Product) *ProductResponse {
	var owner *string
	if p.Owner != nil {
		o := *p.Owner
		owner = &o
	}
	return &ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Category:  string(p.Category),
		Calories:  p.Calories,
		Protein:   p.Protein,
		Carbs:     p.Carbs,
		Fat:       p.Fat,
		Owner:     owner,
		Private:   !p.IsGlobal(),
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ToProductResponses converts a page of products
func ToProductResponses(products []catalog.Product) []ProductResponse {
	out := make([]ProductResponse, len(products))
	for i := range products {
		out[i] = *ToProductResponse(&products[i])
	}
	return out
}
