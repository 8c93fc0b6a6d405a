package mealtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmess/messhall/internal/app/domain/meal"
	"github.com/campusmess/messhall/pkg/logger"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 10, hh, mm, 0, 0, time.UTC)
}

func TestDefaultWindows(t *testing.T) {
	w := Default(time.UTC)
	cases := []struct {
		meal meal.Type
		at   time.Time
		want bool
	}{
		{meal.Breakfast, at(7, 59), false},
		{meal.Breakfast, at(8, 0), true},
		{meal.Breakfast, at(10, 59), true},
		{meal.Breakfast, at(11, 0), false},
		{meal.Lunch, at(12, 30), true},
		{meal.Lunch, at(16, 0), false},
		{meal.Dinner, at(19, 0), true},
		{meal.Dinner, at(22, 59), true},
		{meal.Dinner, at(12, 0), false},
		{"brunch", at(9, 0), false},
	}
	for _, tc := range cases {
		if got := w.Allowed(tc.meal, tc.at); got != tc.want {
			t.Fatalf("Allowed(%s, %s) = %v, want %v", tc.meal, tc.at.Format("15:04"), got, tc.want)
		}
	}
}

func TestWindowsUseConfiguredZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	w := Default(ist)
	// 07:00 UTC is 12:30 IST.
	assert.True(t, w.Allowed(meal.Lunch, at(7, 0)))
	assert.False(t, w.Allowed(meal.Lunch, at(12, 30)))
	assert.Equal(t, "2024-01-11", w.Today(time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)))
}

func TestNewRejectsBadWindows(t *testing.T) {
	_, err := New(time.UTC, map[meal.Type]Window{meal.Lunch: {Open: "16:00", Close: "12:00"}})
	require.Error(t, err)
	_, err = New(time.UTC, map[meal.Type]Window{meal.Lunch: {Open: "noon", Close: "16:00"}})
	require.Error(t, err)
	_, err = New(time.UTC, map[meal.Type]Window{"supper": {Open: "20:00", Close: "21:00"}})
	require.Error(t, err)
}

func TestReplaceKeepsOldOnError(t *testing.T) {
	w := Default(time.UTC)
	require.Error(t, w.Replace(time.UTC, map[meal.Type]Window{meal.Dinner: {Open: "x", Close: "y"}}))
	assert.Equal(t, DefaultWindows[meal.Dinner], w.Snapshot()[meal.Dinner])

	require.NoError(t, w.Replace(time.UTC, map[meal.Type]Window{meal.Dinner: {Open: "18:00", Close: "21:00"}}))
	assert.True(t, w.Allowed(meal.Dinner, at(18, 15)))
	assert.True(t, w.Allowed(meal.Lunch, at(12, 15)), "unset meals keep defaults")
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meals.yaml")
	writeFile(t, path, "timezone: UTC\nwindows:\n  breakfast:\n    open: \"07:00\"\n    close: \"10:00\"\n")

	loc, windows, err := LoadFile(path, time.Local)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
	assert.Equal(t, Window{Open: "07:00", Close: "10:00"}, windows[meal.Breakfast])

	writeFile(t, path, "timezone: Mars/Olympus\n")
	_, _, err = LoadFile(path, time.UTC)
	require.Error(t, err)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meals.yaml")
	writeFile(t, path, "windows:\n  lunch:\n    open: \"12:00\"\n    close: \"13:00\"\n")

	w := Default(time.UTC)
	watcher, err := NewWatcher(path, time.UTC, w, logger.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()
	assert.False(t, w.Allowed(meal.Lunch, at(14, 0)), "initial load applies the file")

	done := make(chan error, 4)
	watcher.debounce = 20 * time.Millisecond
	watcher.reloaded = func(err error) { done <- err }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	writeFile(t, path, "windows:\n  lunch:\n    open: \"12:00\"\n    close: \"15:00\"\n")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
	assert.True(t, w.Allowed(meal.Lunch, at(14, 0)))
}
