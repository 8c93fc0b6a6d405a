package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campusmess/messhall/internal/app/domain/stats"
)

func TestDeriveOverall(t *testing.T) {
	cases := []struct {
		name string
		cats stats.Categories
		want int
	}{
		{"all four", stats.Categories{Taste: 4, Quantity: 5, Freshness: 3, Value: 4}, 4},
		{"rounds half up", stats.Categories{Taste: 3, Quantity: 4}, 4},
		{"rounds down", stats.Categories{Taste: 2, Quantity: 2, Freshness: 3}, 2},
		{"none", stats.Categories{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveOverall(tc.cats))
		})
	}
}

func TestRecordVoteKeepsOneVotePerUser(t *testing.T) {
	now := time.Now()
	r := Rating{}
	r.RecordVote("u1", VoteUp, now)
	r.RecordVote("u2", VoteDown, now)
	r.RecordVote("u1", VoteDown, now.Add(time.Minute))

	assert.Len(t, r.Votes, 2)
	assert.Equal(t, 0, r.Upvotes)
	assert.Equal(t, 2, r.Downvotes)
	assert.Equal(t, 0.0, r.HelpfulnessScore)

	r.RecordVote("u2", VoteUp, now)
	assert.Equal(t, 1, r.Upvotes)
	assert.Equal(t, 1, r.Downvotes)
	assert.Equal(t, 50.0, r.HelpfulnessScore)
}

func TestRecordVoteDoesNotAliasClone(t *testing.T) {
	r := Rating{Votes: []Vote{{UserID: "u1", Type: VoteUp}}}
	c := Clone(r)
	c.RecordVote("u2", VoteUp, time.Now())
	assert.Len(t, r.Votes, 1)
	assert.Len(t, c.Votes, 2)
}

func TestWindows(t *testing.T) {
	created := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	r := Rating{CreatedAt: created}

	assert.True(t, r.CanDelete(created.Add(59*time.Minute)))
	assert.False(t, r.CanDelete(created.Add(61*time.Minute)))
	assert.True(t, r.CanEdit(created.Add(23*time.Hour)))
	assert.False(t, r.CanEdit(created.Add(25*time.Hour)))
}

func TestFilterMatches(t *testing.T) {
	r := Rating{MenuItemID: "i1", MealDate: "2024-01-10", IsActive: false}
	assert.True(t, Filter{MenuItemID: "i1"}.Matches(r))
	assert.False(t, Filter{MenuItemID: "i1", ActiveOnly: true}.Matches(r))
	assert.False(t, Filter{From: "2024-01-11"}.Matches(r))
}
