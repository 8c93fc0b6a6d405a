package rating

import (
	"math"
	"time"

	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/internal/app/domain/stats"
)

// Windows after creation during which the owner may change a rating.
const (
	EditWindow   = 24 * time.Hour
	DeleteWindow = time.Hour
)

// VoteType is a helpfulness vote direction.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Valid reports whether v is a known vote type.
func (v VoteType) Valid() bool { return v == VoteUp || v == VoteDown }

// Vote is one user's helpfulness vote.
type Vote struct {
	UserID  string    `json:"userId" bson:"userId"`
	Type    VoteType  `json:"type" bson:"type"`
	VotedAt time.Time `json:"votedAt" bson:"votedAt"`
}

// Photo references an uploaded image.
type Photo struct {
	URL string `json:"url" bson:"url"`
	ID  string `json:"id" bson:"id"`
}

// Key is the compound uniqueness key of a rating.
type Key struct {
	StudentID  string
	MenuItemID string
	MealDate   string
	MealType   meal.Type
}

// Rating is one student's feedback on one item for one meal instance.
type Rating struct {
	ID               string           `json:"id" bson:"_id"`
	StudentID        string           `json:"studentId" bson:"studentId"`
	MenuItemID       string           `json:"menuItemId" bson:"menuItemId"`
	DailyMenuID      string           `json:"dailyMenuId" bson:"dailyMenuId"`
	FacilityID       string           `json:"facilityId" bson:"facilityId"`
	MessID           string           `json:"messId" bson:"messId"`
	MealDate         string           `json:"mealDate" bson:"mealDate"`
	MealType         meal.Type        `json:"mealType" bson:"mealType"`
	OverallRating    int              `json:"overallRating" bson:"overallRating"`
	Categories       stats.Categories `json:"categories" bson:"categories"`
	Review           string           `json:"review,omitempty" bson:"review,omitempty"`
	Photos           []Photo          `json:"photos,omitempty" bson:"photos,omitempty"`
	Emoji            string           `json:"emoji,omitempty" bson:"emoji,omitempty"`
	IsAnonymous      bool             `json:"isAnonymous" bson:"isAnonymous"`
	Votes            []Vote           `json:"-" bson:"votes"`
	Upvotes          int              `json:"upvotes" bson:"upvotes"`
	Downvotes        int              `json:"downvotes" bson:"downvotes"`
	HelpfulnessScore float64          `json:"helpfulnessScore" bson:"helpfulnessScore"`
	IsActive         bool             `json:"isActive" bson:"isActive"`
	EditedAt         *time.Time       `json:"editedAt,omitempty" bson:"editedAt,omitempty"`
	Version          int64            `json:"version" bson:"version"`
	CreatedAt        time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// Key returns the rating's uniqueness key.
func (r Rating) Key() Key {
	return Key{StudentID: r.StudentID, MenuItemID: r.MenuItemID, MealDate: r.MealDate, MealType: r.MealType}
}

// DeriveOverall returns round(mean) of the rated aspects, or 0 when none are
// rated.
func DeriveOverall(c stats.Categories) int {
	sum, n := 0, 0
	for _, v := range c.Values() {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// CanEdit reports whether now is inside the edit window.
func (r Rating) CanEdit(now time.Time) bool {
	return now.Sub(r.CreatedAt) <= EditWindow
}

// CanDelete reports whether now is inside the delete window.
func (r Rating) CanDelete(now time.Time) bool {
	return now.Sub(r.CreatedAt) <= DeleteWindow
}

// RecordVote replaces any prior vote by userID and recounts the tallies from
// the ledger.
func (r *Rating) RecordVote(userID string, vt VoteType, at time.Time) {
	kept := r.Votes[:0:0]
	for _, v := range r.Votes {
		if v.UserID != userID {
			kept = append(kept, v)
		}
	}
	r.Votes = append(kept, Vote{UserID: userID, Type: vt, VotedAt: at})
	r.Recount()
}

// Recount derives upvotes, downvotes and the helpfulness score from the
// ledger. Tallies are never adjusted independently.
func (r *Rating) Recount() {
	up, down := 0, 0
	for _, v := range r.Votes {
		switch v.Type {
		case VoteUp:
			up++
		case VoteDown:
			down++
		}
	}
	r.Upvotes, r.Downvotes = up, down
	if up+down == 0 {
		r.HelpfulnessScore = 0
		return
	}
	r.HelpfulnessScore = float64(up) / float64(up+down) * 100
}

// Filter narrows rating listings. Empty fields match everything.
type Filter struct {
	FacilityID  string
	MessID      string
	MenuItemID  string
	DailyMenuID string
	StudentID   string
	From        string
	To          string
	ActiveOnly  bool
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r Rating) bool {
	switch {
	case f.FacilityID != "" && r.FacilityID != f.FacilityID,
		f.MessID != "" && r.MessID != f.MessID,
		f.MenuItemID != "" && r.MenuItemID != f.MenuItemID,
		f.DailyMenuID != "" && r.DailyMenuID != f.DailyMenuID,
		f.StudentID != "" && r.StudentID != f.StudentID,
		f.From != "" && r.MealDate < f.From,
		f.To != "" && r.MealDate > f.To,
		f.ActiveOnly && !r.IsActive:
		return false
	}
	return true
}

// Clone deep-copies slices and pointers.
func Clone(r Rating) Rating {
	r.Photos = append([]Photo(nil), r.Photos...)
	r.Votes = append([]Vote(nil), r.Votes...)
	if r.EditedAt != nil {
		t := *r.EditedAt
		r.EditedAt = &t
	}
	return r
}
