// Package core holds the error taxonomy shared by domain services, stores and
// the HTTP boundary.
package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to exactly one of these so callers
// can classify failures with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidState     = errors.New("invalid state")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidationFailed = errors.New("validation failed")
	ErrUnavailable      = errors.New("service unavailable")
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

func NewConflictError(resource, key, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key, Reason: reason}
}

func (e *ConflictError) Error() string {
	msg := e.Resource
	if e.Key != "" {
		msg = fmt.Sprintf("%s %q", e.Resource, e.Key)
	}
	if e.Reason != "" {
		return msg + ": " + e.Reason
	}
	return msg + " already exists"
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidStateError reports an operation attempted at the wrong time or in the
// wrong lifecycle state.
type InvalidStateError struct {
	Resource string
	Reason   string
}

func NewInvalidStateError(resource, reason string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, Reason: reason}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Reason)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// AccessDeniedError reports an action on a resource the principal does not own.
type AccessDeniedError struct {
	Resource string
	ID       string
	UserID   string
	Reason   string
}

func NewAccessDeniedError(resource, id, userID, reason string) *AccessDeniedError {
	return &AccessDeniedError{Resource: resource, ID: id, UserID: userID, Reason: reason}
}

func (e *AccessDeniedError) Error() string {
	msg := fmt.Sprintf("access denied to %s", e.Resource)
	if e.ID != "" {
		msg = fmt.Sprintf("%s %q", msg, e.ID)
	}
	if e.UserID != "" {
		msg += " for user " + e.UserID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *AccessDeniedError) Unwrap() error { return ErrForbidden }

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// RequiredError is shorthand for a missing field.
func RequiredError(field string) *ValidationError {
	return NewValidationError(field, "is required")
}

// Add records another field message and returns the receiver.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

// OrNil returns nil when no field failed, so callers can accumulate.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// UnavailableError wraps a backing-service failure. The cause is kept for logs
// but never rendered to API callers.
type UnavailableError struct {
	Op    string
	Cause error
}

// Unavailable wraps err as a retryable backing-service failure. Nil stays nil
// and already-classified errors pass through untouched.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &UnavailableError{Op: op, Cause: err}
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Cause} }

// Unauthorized reports missing or rejected credentials.
func Unauthorized(reason string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
}

// Helpers ---------------------------------------------------------------------

func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool        { return errors.Is(err, ErrConflict) }
func IsInvalidState(err error) bool    { return errors.Is(err, ErrInvalidState) }
func IsForbidden(err error) bool       { return errors.Is(err, ErrForbidden) }
func IsUnauthorized(err error) bool    { return errors.Is(err, ErrUnauthorized) }
func IsValidationError(err error) bool { return errors.Is(err, ErrValidationFailed) }
func IsUnavailable(err error) bool     { return errors.Is(err, ErrUnavailable) }

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	for _, target := range []error{ErrNotFound, ErrConflict, ErrInvalidState, ErrForbidden, ErrUnauthorized, ErrValidationFailed, ErrUnavailable} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
