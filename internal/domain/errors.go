package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared across the pipeline. Wrap with Errorf so callers can
// branch with errors.Is regardless of the message.
var (
	// ErrTransient marks network or upstream failures that a retry may clear.
	ErrTransient = errors.New("transient failure")
	// ErrCorruptPayload marks exchange responses that fail shape validation.
	ErrCorruptPayload = errors.New("corrupt payload")
	// ErrStorageBusy marks writes rejected while the store is contended.
	ErrStorageBusy = errors.New("storage busy")
	// ErrBudgetExhausted marks work skipped because no rate budget was granted.
	ErrBudgetExhausted = errors.New("rate budget exhausted")
	// ErrNotAvailable marks reads for data that has not been computed yet.
	ErrNotAvailable = errors.New("not available")
)

// Errorf wraps kind with a formatted message. errors.Is(result, kind)
// holds for the returned error.
func Errorf(kind error, format string, args ...interface{}) error {
	args = append(args, kind)
	return fmt.Errorf(format+": %w", args...)
}
