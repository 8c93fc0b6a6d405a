// Package stats maintains running rating aggregates without rescanning the
// underlying ratings.
//
// Insert:  avg' = (avg*n + x) / (n+1)
// Replace: avg' = (avg*n - a + b) / n
// Remove:  avg' = (avg*n - x) / (n-1)
package stats

// Running is an incrementally maintained mean.
type Running struct {
	Average float64 `json:"average" bson:"average"`
	Count   int     `json:"count" bson:"count"`
}

// Add folds a new value into the mean.
func (r *Running) Add(x float64) {
	n := float64(r.Count)
	r.Average = (r.Average*n + x) / (n + 1)
	r.Count++
}

// Replace swaps one previously added value for another. Count is unchanged.
func (r *Running) Replace(old, updated float64) {
	if r.Count == 0 {
		return
	}
	n := float64(r.Count)
	r.Average = (r.Average*n - old + updated) / n
}

// Remove takes a previously added value back out of the mean.
func (r *Running) Remove(x float64) {
	if r.Count <= 1 {
		*r = Running{}
		return
	}
	n := float64(r.Count)
	r.Average = (r.Average*n - x) / (n - 1)
	r.Count--
}

// Categories holds the four per-aspect scores of a rating. Zero means the
// aspect was not rated.
type Categories struct {
	Taste     int `json:"taste" bson:"taste"`
	Quantity  int `json:"quantity" bson:"quantity"`
	Freshness int `json:"freshness" bson:"freshness"`
	Value     int `json:"value" bson:"value"`
}

// Values returns the scores in a fixed order.
func (c Categories) Values() [4]int {
	return [4]int{c.Taste, c.Quantity, c.Freshness, c.Value}
}

// Empty reports whether no aspect was rated.
func (c Categories) Empty() bool {
	return c == Categories{}
}

// CategoryStats aggregates each aspect independently.
type CategoryStats struct {
	Taste     Running `json:"taste" bson:"taste"`
	Quantity  Running `json:"quantity" bson:"quantity"`
	Freshness Running `json:"freshness" bson:"freshness"`
	Value     Running `json:"value" bson:"value"`
}

func (s *CategoryStats) slots() [4]*Running {
	return [4]*Running{&s.Taste, &s.Quantity, &s.Freshness, &s.Value}
}

// RatingStats is the denormalised aggregate kept on menu items and daily
// menus.
type RatingStats struct {
	AverageRating   float64       `json:"averageRating" bson:"averageRating"`
	TotalRatings    int           `json:"totalRatings" bson:"totalRatings"`
	CategoryRatings CategoryStats `json:"categoryRatings" bson:"categoryRatings"`
}

func (s *RatingStats) overall() Running {
	return Running{Average: s.AverageRating, Count: s.TotalRatings}
}

func (s *RatingStats) setOverall(r Running) {
	s.AverageRating = r.Average
	s.TotalRatings = r.Count
}

// Add records a new rating.
func (s *RatingStats) Add(overall int, cats Categories) {
	o := s.overall()
	o.Add(float64(overall))
	s.setOverall(o)

	vals := cats.Values()
	for i, slot := range s.CategoryRatings.slots() {
		if vals[i] > 0 {
			slot.Add(float64(vals[i]))
		}
	}
}

// Replace swaps an edited rating's old contribution for its new one. An
// aspect that appears or disappears in the edit is added or removed.
func (s *RatingStats) Replace(oldOverall int, oldCats Categories, newOverall int, newCats Categories) {
	o := s.overall()
	o.Replace(float64(oldOverall), float64(newOverall))
	s.setOverall(o)

	before, after := oldCats.Values(), newCats.Values()
	for i, slot := range s.CategoryRatings.slots() {
		switch {
		case before[i] > 0 && after[i] > 0:
			slot.Replace(float64(before[i]), float64(after[i]))
		case before[i] > 0:
			slot.Remove(float64(before[i]))
		case after[i] > 0:
			slot.Add(float64(after[i]))
		}
	}
}

// Remove takes a deleted rating back out.
func (s *RatingStats) Remove(overall int, cats Categories) {
	o := s.overall()
	o.Remove(float64(overall))
	s.setOverall(o)

	vals := cats.Values()
	for i, slot := range s.CategoryRatings.slots() {
		if vals[i] > 0 {
			slot.Remove(float64(vals[i]))
		}
	}
}
