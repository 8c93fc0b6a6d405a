// Package mealtime decides whether a rating may be submitted for a meal at a
// given moment.
package mealtime

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/campusmess/messhall/internal/app/domain/meal"
)

// Window is a daily [Open, Close) interval in "HH:MM" local time.
type Window struct {
	Open  string `yaml:"open" json:"open"`
	Close string `yaml:"close" json:"close"`
}

func (w Window) minutes() (int, int, error) {
	open, err := parseClock(w.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("open: %w", err)
	}
	closing, err := parseClock(w.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("close: %w", err)
	}
	if closing <= open {
		return 0, 0, fmt.Errorf("close %s must be after open %s", w.Close, w.Open)
	}
	return open, closing, nil
}

// DefaultWindows are the submission windows used when nothing is configured.
var DefaultWindows = map[meal.Type]Window{
	meal.Breakfast: {Open: "08:00", Close: "11:00"},
	meal.Lunch:     {Open: "12:00", Close: "16:00"},
	meal.Dinner:    {Open: "19:00", Close: "23:00"},
}

type span struct{ open, close int }

// Windows holds the active submission windows. It is safe for concurrent use
// and may be replaced while serving.
type Windows struct {
	mu    sync.RWMutex
	loc   *time.Location
	spans map[meal.Type]span
	raw   map[meal.Type]Window
}

// New validates windows and binds them to loc. Meal types missing from
// windows fall back to DefaultWindows.
func New(loc *time.Location, windows map[meal.Type]Window) (*Windows, error) {
	w := &Windows{}
	if err := w.set(loc, windows); err != nil {
		return nil, err
	}
	return w, nil
}

// Default returns the default windows in loc.
func Default(loc *time.Location) *Windows {
	w, _ := New(loc, nil)
	return w
}

// Allowed reports whether at falls inside the window of mealType.
func (w *Windows) Allowed(mealType meal.Type, at time.Time) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.spans[mealType]
	if !ok {
		return false
	}
	local := at.In(w.loc)
	m := local.Hour()*60 + local.Minute()
	return m >= s.open && m < s.close
}

// Today returns the calendar date of at in the windows' time zone.
func (w *Windows) Today(at time.Time) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return at.In(w.loc).Format(meal.DateLayout)
}

// Snapshot returns the configured windows.
func (w *Windows) Snapshot() map[meal.Type]Window {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[meal.Type]Window, len(w.raw))
	for k, v := range w.raw {
		out[k] = v
	}
	return out
}

// Replace swaps in new windows atomically. On error the old ones stay.
func (w *Windows) Replace(loc *time.Location, windows map[meal.Type]Window) error {
	return w.set(loc, windows)
}

func (w *Windows) set(loc *time.Location, windows map[meal.Type]Window) error {
	if loc == nil {
		loc = time.UTC
	}
	spans := make(map[meal.Type]span, len(meal.Types))
	raw := make(map[meal.Type]Window, len(meal.Types))
	for _, t := range meal.Types {
		win, ok := windows[t]
		if !ok {
			win = DefaultWindows[t]
		}
		open, closing, err := win.minutes()
		if err != nil {
			return fmt.Errorf("%s window: %w", t, err)
		}
		spans[t] = span{open: open, close: closing}
		raw[t] = win
	}
	for t := range windows {
		if !t.Valid() {
			return fmt.Errorf("unknown meal type %q", t)
		}
	}

	w.mu.Lock()
	w.loc, w.spans, w.raw = loc, spans, raw
	w.mu.Unlock()
	return nil
}

// File is the YAML layout of a windows file.
type File struct {
	Timezone string               `yaml:"timezone"`
	Windows  map[meal.Type]Window `yaml:"windows"`
}

// LoadFile parses a windows file. An empty timezone yields fallback.
func LoadFile(path string, fallback *time.Location) (*time.Location, map[meal.Type]Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	loc := fallback
	if tz := strings.TrimSpace(f.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	return loc, f.Windows, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
