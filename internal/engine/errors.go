package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/replica/internal/entity"
)

var (
	// ErrNetwork marks a failed remote call. The cycle aborts with nothing
	// applied and is safe to retry immediately.
	ErrNetwork = errors.New("network error")

	// ErrAuth marks a remote call rejected for lack of credentials. It is
	// reported with the NetworkError outcome.
	ErrAuth = errors.New("authentication error")

	// ErrStore marks a local persistence failure on a single operation.
	// Such failures are absorbed into failure records.
	ErrStore = errors.New("store error")
)

// CycleError describes a cycle-level failure.
type CycleError struct {
	// EntityType identifies the collection being synced.
	EntityType entity.Type

	// CycleID identifies the cycle.
	CycleID string

	// Phase is the phase the cycle was in when it failed.
	Phase Phase

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("sync %s (cycle=%s, phase=%s): %v", e.EntityType, e.CycleID, e.Phase, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CycleError) Unwrap() error {
	return e.Err
}

// IsNetworkError returns true if err comes from a failed remote call,
// including authentication failures.
// Uses errors.Is to handle wrapped errors.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrAuth)
}

// IsAuthError returns true if err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsCycleError returns true if err carries a CycleError.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// asNetworkError makes sure a remote failure matches ErrNetwork or ErrAuth.
func asNetworkError(err error) error {
	if IsNetworkError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
