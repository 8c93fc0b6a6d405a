package menuitem

import (
	"time"

	"github.com/campusmess/messhall/internal/app/domain/stats"
)

// Category groups dishes on the menu.
type Category string

const (
	CategoryMainCourse Category = "main_course"
	CategorySideDish   Category = "side_dish"
	CategoryDessert    Category = "dessert"
	CategoryBeverage   Category = "beverage"
	CategorySnack      Category = "snack"
	CategoryBread      Category = "bread"
	CategoryRice       Category = "rice"
	CategorySalad      Category = "salad"
	CategorySoup       Category = "soup"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMainCourse, CategorySideDish, CategoryDessert, CategoryBeverage,
		CategorySnack, CategoryBread, CategoryRice, CategorySalad, CategorySoup:
		return true
	}
	return false
}

// Nutrition is per-serving nutritional information.
type Nutrition struct {
	Calories float64 `json:"calories,omitempty" bson:"calories,omitempty"`
	Protein  float64 `json:"protein,omitempty" bson:"protein,omitempty"`
	Carbs    float64 `json:"carbs,omitempty" bson:"carbs,omitempty"`
	Fat      float64 `json:"fat,omitempty" bson:"fat,omitempty"`
}

// Image references an object held by the upload service.
type Image struct {
	URL string `json:"url" bson:"url"`
	ID  string `json:"id" bson:"id"`
}

// Item is a reusable dish definition scoped to one mess.
type Item struct {
	ID          string            `json:"id" bson:"_id"`
	FacilityID  string            `json:"facilityId" bson:"facilityId"`
	MessID      string            `json:"messId" bson:"messId"`
	Name        string            `json:"name" bson:"name"`
	Description string            `json:"description,omitempty" bson:"description,omitempty"`
	Category    Category          `json:"category" bson:"category"`
	IsVeg       bool              `json:"isVeg" bson:"isVeg"`
	Allergens   []string          `json:"allergens,omitempty" bson:"allergens,omitempty"`
	Nutrition   Nutrition         `json:"nutrition" bson:"nutrition"`
	Image       *Image            `json:"image,omitempty" bson:"image,omitempty"`
	IsActive    bool              `json:"isActive" bson:"isActive"`
	CreatedBy   string            `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	RatingStats stats.RatingStats `json:"ratingStats" bson:"ratingStats"`
	Version     int64             `json:"version" bson:"version"`
	CreatedAt   time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// Filter narrows item listings. Empty fields match everything.
type Filter struct {
	FacilityID      string
	MessID          string
	Category        Category
	VegOnly         bool
	IncludeInactive bool
}

// Matches reports whether it satisfies the filter.
func (f Filter) Matches(it Item) bool {
	if f.FacilityID != "" && it.FacilityID != f.FacilityID {
		return false
	}
	if f.MessID != "" && it.MessID != f.MessID {
		return false
	}
	if f.Category != "" && it.Category != f.Category {
		return false
	}
	if f.VegOnly && !it.IsVeg {
		return false
	}
	if !f.IncludeInactive && !it.IsActive {
		return false
	}
	return true
}

// Patch overwrites every non-nil field.
type Patch struct {
	Name        *string
	Description *string
	Category    *Category
	IsVeg       *bool
	Allergens   *[]string
	Nutrition   *Nutrition
	Image       *Image
}

// Apply copies the patch onto the item.
func (it *Item) Apply(p Patch) {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.IsVeg != nil {
		it.IsVeg = *p.IsVeg
	}
	if p.Allergens != nil {
		it.Allergens = append([]string(nil), (*p.Allergens)...)
	}
	if p.Nutrition != nil {
		it.Nutrition = *p.Nutrition
	}
	if p.Image != nil {
		img := *p.Image
		it.Image = &img
	}
}

// Clone deep-copies slices and pointers.
func Clone(it Item) Item {
	it.Allergens = append([]string(nil), it.Allergens...)
	if it.Image != nil {
		img := *it.Image
		it.Image = &img
	}
	return it
}
