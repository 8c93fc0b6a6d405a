package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func TestRunningMatchesArithmeticMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var r Running
	var values []int
	for i := 0; i < 500; i++ {
		v := rng.Intn(5) + 1
		values = append(values, v)
		r.Add(float64(v))
		require.Equal(t, len(values), r.Count)
		require.InDelta(t, mean(values), r.Average, 1e-9)
	}
}

func TestRunningReplaceAndRemove(t *testing.T) {
	var r Running
	for _, v := range []float64{4, 2, 5} {
		r.Add(v)
	}
	r.Replace(2, 3)
	assert.Equal(t, 3, r.Count)
	assert.InDelta(t, 4.0, r.Average, 1e-9)

	r.Remove(5)
	assert.Equal(t, 2, r.Count)
	assert.InDelta(t, 3.5, r.Average, 1e-9)

	r.Remove(4)
	r.Remove(3)
	assert.Equal(t, Running{}, r)

	r.Remove(1)
	assert.Equal(t, Running{}, r, "removing from empty stays empty")
	r.Replace(1, 2)
	assert.Equal(t, Running{}, r, "replacing in empty is a no-op")
}

func TestRatingStatsExample(t *testing.T) {
	var s RatingStats
	s.Add(4, Categories{Taste: 4, Quantity: 5, Freshness: 3, Value: 4})
	assert.Equal(t, 1, s.TotalRatings)
	assert.InDelta(t, 4.0, s.AverageRating, 1e-9)

	s.Add(2, Categories{Taste: 2, Quantity: 2, Freshness: 2, Value: 2})
	assert.Equal(t, 2, s.TotalRatings)
	assert.InDelta(t, 3.0, s.AverageRating, 1e-9)
	assert.InDelta(t, 3.5, s.CategoryRatings.Quantity.Average, 1e-9)
	assert.Equal(t, 2, s.CategoryRatings.Taste.Count)
}

func TestRatingStatsReplaceHandlesAspectPresence(t *testing.T) {
	var s RatingStats
	s.Add(4, Categories{Taste: 4, Quantity: 4})
	s.Add(2, Categories{Taste: 2})

	s.Replace(2, Categories{Taste: 2}, 3, Categories{Quantity: 3, Value: 3})

	assert.Equal(t, 2, s.TotalRatings)
	assert.InDelta(t, 3.5, s.AverageRating, 1e-9)
	assert.Equal(t, Running{Average: 4, Count: 1}, s.CategoryRatings.Taste)
	assert.Equal(t, 2, s.CategoryRatings.Quantity.Count)
	assert.InDelta(t, 3.5, s.CategoryRatings.Quantity.Average, 1e-9)
	assert.Equal(t, Running{Average: 3, Count: 1}, s.CategoryRatings.Value)
	assert.Equal(t, Running{}, s.CategoryRatings.Freshness)
}

func TestRatingStatsRemove(t *testing.T) {
	var s RatingStats
	s.Add(5, Categories{Taste: 5})
	s.Add(1, Categories{Taste: 1})
	s.Remove(1, Categories{Taste: 1})

	assert.Equal(t, 1, s.TotalRatings)
	assert.InDelta(t, 5.0, s.AverageRating, 1e-9)
	assert.Equal(t, Running{Average: 5, Count: 1}, s.CategoryRatings.Taste)
}
