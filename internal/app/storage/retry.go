package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/campusmess/messhall/internal/app/core"
)

// ErrVersionConflict is returned by Update* when the stored version moved on
// since the document was read.
var ErrVersionConflict = errors.New("storage: version conflict")

// DefaultAttempts bounds read-modify-write retries.
const DefaultAttempts = 5

const maxBackoff = 50 * time.Millisecond

// RetryObserver is notified of every conflict-driven retry. Metrics hook in
// here.
var RetryObserver = func(op string) {}

// Retry runs fn until it succeeds, fails with something other than a version
// conflict, or attempts are exhausted. fn must re-read the document it
// modifies on every call. Exhaustion is surfaced as core.ErrUnavailable so the
// caller may retry the whole request.
func Retry(ctx context.Context, op string, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	backoff := 2 * time.Millisecond
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		RetryObserver(op)
		select {
		case <-ctx.Done():
			return core.Unavailable(op, ctx.Err())
		case <-time.After(backoff/2 + rand.N(backoff/2+1)):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return core.Unavailable(op, fmt.Errorf("gave up after %d concurrent modifications: %w", attempts, ErrVersionConflict))
}
