package research

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a provider failure worth one retry (rate limit, timeout, 5xx).
	ErrTransient = errors.New("transient provider error")

	// ErrUnavailable marks a capability that cannot be used at all (bad credentials,
	// missing configuration). It is fatal for the whole research tree.
	ErrUnavailable = errors.New("capability unavailable")

	// ErrEmptyResult is returned when the model answered but nothing usable could be parsed.
	ErrEmptyResult = errors.New("empty result")
)

// Transient wraps err so that IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Unavailable wraps err so that IsUnavailable reports true.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// IsTransient reports whether err is worth retrying. A per-call deadline counts as
// transient; cancellation of the caller does not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// IsUnavailable reports whether err must abort the whole research run.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// isFatal reports whether err must propagate instead of collapsing into an empty
// contribution: either the capability is gone or the caller cancelled.
func isFatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return IsUnavailable(err) || ctx.Err() != nil
}
