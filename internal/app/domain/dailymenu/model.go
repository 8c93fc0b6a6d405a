package dailymenu

import (
	"time"

	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/stats"
)

// Status is the lifecycle state of a daily menu.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed target states for each source state.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPublished, StatusCancelled},
	StatusPublished: {StatusActive, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// PrepStatus tracks kitchen progress for one item.
type PrepStatus string

const (
	PrepNotStarted PrepStatus = "not_started"
	PrepInProgress PrepStatus = "in_progress"
	PrepReady      PrepStatus = "ready"
	PrepServedOut  PrepStatus = "served_out"
)

// Valid reports whether p is a known preparation status.
func (p PrepStatus) Valid() bool {
	switch p {
	case PrepNotStarted, PrepInProgress, PrepReady, PrepServedOut:
		return true
	}
	return false
}

// Entry is one dish served in a daily menu.
type Entry struct {
	MenuItemID        string     `json:"menuItemId" bson:"menuItemId"`
	PreparationStatus PrepStatus `json:"preparationStatus" bson:"preparationStatus"`
	PlannedQuantity   int        `json:"plannedQuantity" bson:"plannedQuantity"`
	PreparedQuantity  int        `json:"preparedQuantity" bson:"preparedQuantity"`
	CostPerServing    float64    `json:"costPerServing" bson:"costPerServing"`
	ActualReadyAt     *time.Time `json:"actualReadyAt,omitempty" bson:"actualReadyAt,omitempty"`
}

// Key is the compound uniqueness key of a daily menu.
type Key struct {
	Date       string
	MealType   meal.Type
	FacilityID string
	MessID     string
}

// Menu is one meal service instance.
type Menu struct {
	ID                string            `json:"id" bson:"_id"`
	Date              string            `json:"date" bson:"date"`
	MealType          meal.Type         `json:"mealType" bson:"mealType"`
	FacilityID        string            `json:"facilityId" bson:"facilityId"`
	MessID            string            `json:"messId" bson:"messId"`
	Items             []Entry           `json:"items" bson:"items"`
	Status            Status            `json:"status" bson:"status"`
	ExpectedStudents  int               `json:"expectedStudents" bson:"expectedStudents"`
	Notes             string            `json:"notes,omitempty" bson:"notes,omitempty"`
	PublishedAt       *time.Time        `json:"publishedAt,omitempty" bson:"publishedAt,omitempty"`
	RatingStats       stats.RatingStats `json:"ratingStats" bson:"ratingStats"`
	ParticipationRate float64           `json:"participationRate" bson:"participationRate"`
	CreatedBy         string            `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	Version           int64             `json:"version" bson:"version"`
	CreatedAt         time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// Key returns the menu's uniqueness key.
func (m Menu) Key() Key {
	return Key{Date: m.Date, MealType: m.MealType, FacilityID: m.FacilityID, MessID: m.MessID}
}

// FindItem returns the index of the entry for menuItemID, or -1.
func (m *Menu) FindItem(menuItemID string) int {
	for i := range m.Items {
		if m.Items[i].MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}

// RefreshParticipation recomputes participationRate from the rating count.
func (m *Menu) RefreshParticipation() {
	if m.ExpectedStudents <= 0 {
		m.ParticipationRate = 0
		return
	}
	m.ParticipationRate = float64(m.RatingStats.TotalRatings) / float64(m.ExpectedStudents)
}

// PlannedCost sums planned quantity times cost per serving.
func (m Menu) PlannedCost() float64 {
	var total float64
	for _, e := range m.Items {
		total += float64(e.PlannedQuantity) * e.CostPerServing
	}
	return total
}

// Filter narrows menu listings. Empty fields match everything.
type Filter struct {
	FacilityID string
	MessID     string
	From       string
	To         string
	MealType   meal.Type
	Statuses   []Status
}

// Matches reports whether m satisfies the filter.
func (f Filter) Matches(m Menu) bool {
	if f.FacilityID != "" && m.FacilityID != f.FacilityID {
		return false
	}
	if f.MessID != "" && m.MessID != f.MessID {
		return false
	}
	if f.From != "" && m.Date < f.From {
		return false
	}
	if f.To != "" && m.Date > f.To {
		return false
	}
	if f.MealType != "" && m.MealType != f.MealType {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if m.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// Clone deep-copies the entry list.
func Clone(m Menu) Menu {
	items := make([]Entry, len(m.Items))
	for i, e := range m.Items {
		if e.ActualReadyAt != nil {
			t := *e.ActualReadyAt
			e.ActualReadyAt = &t
		}
		items[i] = e
	}
	m.Items = items
	if m.PublishedAt != nil {
		t := *m.PublishedAt
		m.PublishedAt = &t
	}
	return m
}
