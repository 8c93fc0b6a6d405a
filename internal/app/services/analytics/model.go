package analytics

import (
	"time"

	"github.com/campusmess/messhall/internal/app/domain/meal"
)

// Dashboard is the admin overview of one mess over a date range.
// Distribution[i] counts ratings with overall score i+1.
type Dashboard struct {
	FacilityID           string                    `json:"facilityId"`
	MessID               string                    `json:"messId"`
	From                 string                    `json:"from"`
	To                   string                    `json:"to"`
	TotalRatings         int                       `json:"totalRatings"`
	AverageRating        float64                   `json:"averageRating"`
	MenusServed          int                       `json:"menusServed"`
	AverageParticipation float64                   `json:"averageParticipation"`
	ByMealType           map[meal.Type]MealSummary `json:"byMealType"`
	Distribution         [5]int                    `json:"distribution"`
	TopItems             []ItemSummary             `json:"topItems"`
	BottomItems          []ItemSummary             `json:"bottomItems"`
	RecentReviews        []Review                  `json:"recentReviews"`
	GeneratedAt          time.Time                 `json:"generatedAt"`
}

// MealSummary aggregates one meal type.
type MealSummary struct {
	Ratings int     `json:"ratings"`
	Average float64 `json:"average"`
}

// ItemSummary ranks one item within the range.
type ItemSummary struct {
	MenuItemID string  `json:"menuItemId"`
	Name       string  `json:"name"`
	Ratings    int     `json:"ratings"`
	Average    float64 `json:"average"`
}

// Review is a written review surfaced on the dashboard. StudentID is empty
// for anonymous reviews.
type Review struct {
	RatingID      string    `json:"ratingId"`
	MenuItemID    string    `json:"menuItemId"`
	ItemName      string    `json:"itemName"`
	StudentID     string    `json:"studentId,omitempty"`
	OverallRating int       `json:"overallRating"`
	Review        string    `json:"review"`
	MealDate      string    `json:"mealDate"`
	MealType      meal.Type `json:"mealType"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Trend is a daily series for one item.
type Trend struct {
	MenuItemID string       `json:"menuItemId"`
	Name       string       `json:"name"`
	Points     []TrendPoint `json:"points"`
}

// TrendPoint is one day of a Trend.
type TrendPoint struct {
	Date    string  `json:"date"`
	Ratings int     `json:"ratings"`
	Average float64 `json:"average"`
}
