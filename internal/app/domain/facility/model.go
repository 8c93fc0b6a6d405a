package facility

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/campusmess/messhall/internal/app/domain/meal"
)

// Type classifies a facility.
type Type string

const (
	TypeCollege Type = "college"
	TypeHostel  Type = "hostel"
)

// Valid reports whether t is a known facility type.
func (t Type) Valid() bool {
	return t == TypeCollege || t == TypeHostel
}

// Hours is one meal's operating window, in "HH:MM" local time.
type Hours struct {
	MealType meal.Type `json:"mealType" bson:"mealType"`
	Open     string    `json:"open" bson:"open"`
	Close    string    `json:"close" bson:"close"`
}

// Mess is a dining hall embedded in its facility document. It is never
// addressed by storage on its own.
type Mess struct {
	MessID         string    `json:"messId" bson:"messId"`
	Name           string    `json:"name" bson:"name"`
	Description    string    `json:"description,omitempty" bson:"description,omitempty"`
	Capacity       int       `json:"capacity,omitempty" bson:"capacity,omitempty"`
	IsActive       bool      `json:"isActive" bson:"isActive"`
	OperatingHours []Hours   `json:"operatingHours,omitempty" bson:"operatingHours,omitempty"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Facility owns an ordered collection of messes.
type Facility struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Type      Type      `json:"type" bson:"type"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty"`
	IsActive  bool      `json:"isActive" bson:"isActive"`
	CreatedBy string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	Messes    []Mess    `json:"messes" bson:"messes"`
	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// MessPatch overwrites every non-nil field.
type MessPatch struct {
	Name           *string
	Description    *string
	Capacity       *int
	IsActive       *bool
	OperatingHours *[]Hours
}

// FindMess returns the index of the mess with the given id, or -1.
func (f *Facility) FindMess(messID string) int {
	for i := range f.Messes {
		if f.Messes[i].MessID == messID {
			return i
		}
	}
	return -1
}

// MessNameTaken reports whether an active mess other than excludeMessID
// already uses name, compared case-insensitively.
func (f *Facility) MessNameTaken(name, excludeMessID string) bool {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, m := range f.Messes {
		if !m.IsActive || m.MessID == excludeMessID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(m.Name)) == want {
			return true
		}
	}
	return false
}

// Apply overwrites the mess fields present in the patch.
func (m *Mess) Apply(p MessPatch) {
	if p.Name != nil {
		m.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Capacity != nil {
		m.Capacity = *p.Capacity
	}
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}
	if p.OperatingHours != nil {
		m.OperatingHours = append([]Hours(nil), (*p.OperatingHours)...)
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases s and collapses every run of other characters into "-".
func Slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// MessID builds a mess identifier from the owning facility and mess names.
func MessID(facilityName, messName, suffix string) string {
	return fmt.Sprintf("%s_%s_%s", Slug(facilityName), Slug(messName), suffix)
}

// Clone deep-copies the embedded collections.
func Clone(f Facility) Facility {
	messes := make([]Mess, len(f.Messes))
	for i, m := range f.Messes {
		m.OperatingHours = append([]Hours(nil), m.OperatingHours...)
		messes[i] = m
	}
	f.Messes = messes
	return f
}
