package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/campusmess/messhall/internal/app/core"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPassesThroughOtherErrors(t *testing.T) {
	want := core.NewNotFoundError("menu item", "x")
	calls := 0
	err := Retry(context.Background(), "op", 5, func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, core.ErrNotFound) || calls != 1 {
		t.Fatalf("expected single not-found call, got %v after %d calls", err, calls)
	}
}

func TestRetryExhaustionIsUnavailable(t *testing.T) {
	var observed int
	prev := RetryObserver
	RetryObserver = func(string) { observed++ }
	defer func() { RetryObserver = prev }()

	err := Retry(context.Background(), "op", 3, func(context.Context) error { return ErrVersionConflict })
	if !core.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if observed != 3 {
		t.Fatalf("expected 3 observed retries, got %d", observed)
	}
}
