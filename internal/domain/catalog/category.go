package catalog

import (
	"fmt"
	"strings"

	"github.com/mealtracker/backend/internal/domain/shared"
)

// Category is the closed set of food categories a product belongs to
type Category string

const (
	CategoryMeat       Category = "MEAT"
	CategoryVegetables Category = "VEGETABLES"
	CategoryFruits     Category = "FRUITS"
	CategoryDairy      Category = "DAIRY"
	CategoryCereal     Category = "CEREAL"
	CategoryFish       Category = "FISH"
	CategoryNuts       Category = "NUTS"
	CategorySweets     Category = "SWEETS"
	CategoryOther      Category = "OTHER"
)

var allCategories = []Category{
	CategoryMeat, CategoryVegetables, CategoryFruits, CategoryDairy, CategoryCereal,
	CategoryFish, CategoryNuts, CategorySweets, CategoryOther,
}

// Categories returns every valid category in declaration order
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// IsValid reports whether c is one of the declared categories
func (c Category) IsValid() bool {
	for _, v := range allCategories {
		if v == c {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory accepts any letter case and surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.NewInvalidArgumentError(fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}
