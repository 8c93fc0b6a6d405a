package meal

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies a meal service within a day.
type Type string

const (
	Breakfast Type = "breakfast"
	Lunch     Type = "lunch"
	Dinner    Type = "dinner"
)

// Types lists every meal type in serving order.
var Types = []Type{Breakfast, Lunch, Dinner}

// DateLayout is the canonical calendar-date encoding for meal dates.
const DateLayout = "2006-01-02"

// ParseType normalises and validates a meal type.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unsupported meal type %q", raw)
	}
	return t, nil
}

// Valid reports whether t is a known meal type.
func (t Type) Valid() bool {
	switch t {
	case Breakfast, Lunch, Dinner:
		return true
	}
	return false
}

// ParseDate validates a YYYY-MM-DD date and returns it in canonical form.
func ParseDate(raw string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return d.Format(DateLayout), nil
}

// Order returns the serving position of t within a day.
func (t Type) Order() int {
	for i, candidate := range Types {
		if candidate == t {
			return i
		}
	}
	return len(Types)
}
