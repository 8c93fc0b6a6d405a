package feedback

import (
	"time"

	"github.com/campusmess/messhall/internal/app/domain/meal"
)

// EventType names a rating change.
type EventType string

const (
	EventSubmitted EventType = "rating.submitted"
	EventUpdated   EventType = "rating.updated"
	EventDeleted   EventType = "rating.deleted"
)

// Event is published after a rating change has been applied. It never carries
// the author's identity.
type Event struct {
	Type          EventType `json:"type"`
	RatingID      string    `json:"ratingId"`
	FacilityID    string    `json:"facilityId"`
	MessID        string    `json:"messId"`
	MenuItemID    string    `json:"menuItemId"`
	DailyMenuID   string    `json:"dailyMenuId"`
	MealDate      string    `json:"mealDate"`
	MealType      meal.Type `json:"mealType"`
	OverallRating int       `json:"overallRating"`
	At            time.Time `json:"at"`
}

// Notifier receives rating events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(Event) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }
