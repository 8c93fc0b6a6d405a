package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("menu item", "abc123")

	expected := `menu item "abc123" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to wrap ErrNotFound")
	}
	if !IsNotFound(fmt.Errorf("load: %w", err)) {
		t.Error("IsNotFound should see through wrapping")
	}
}

func TestNotFoundError_NoID(t *testing.T) {
	err := NewNotFoundError("facility", "")
	if err.Error() != "facility not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	verr := &ValidationError{}
	if verr.OrNil() != nil {
		t.Fatal("empty validation error should collapse to nil")
	}
	verr.Add("name", "is required").Add("type", "must be college or hostel")

	err := verr.OrNil()
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "name: is required; type: must be college or hostel" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError should return true")
	}
}

func TestAccessDeniedError(t *testing.T) {
	err := NewAccessDeniedError("rating", "r1", "u2", "not the owner")
	if !IsForbidden(err) {
		t.Error("IsForbidden should return true")
	}
	if err.Error() != `access denied to rating "r1" for user u2: not the owner` {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestConflictAndInvalidState(t *testing.T) {
	if !IsConflict(NewConflictError("facility", "SJ Hall", "")) {
		t.Error("expected conflict")
	}
	if !IsInvalidState(NewInvalidStateError("daily menu", "no items")) {
		t.Error("expected invalid state")
	}
}

func TestUnavailableKeepsCauseAndClassification(t *testing.T) {
	err := Unavailable("get rating", context.DeadlineExceeded)
	if !IsUnavailable(err) {
		t.Fatal("expected unavailable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected cause to be preserved")
	}

	nf := NewNotFoundError("rating", "x")
	if got := Unavailable("get rating", nf); got != error(nf) {
		t.Fatalf("classified errors must pass through, got %v", got)
	}
	if Unavailable("noop", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestUnauthorized(t *testing.T) {
	if !IsUnauthorized(Unauthorized("token expired")) {
		t.Fatal("expected unauthorized")
	}
}
