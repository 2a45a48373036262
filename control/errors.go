package control

import "errors"

var (
	// ErrInsufficientHistory means a controller was asked to run before the
	// ledger held its minimum sample size. The cycle is skipped.
	ErrInsufficientHistory = errors.New("control: insufficient history")

	// ErrNotDue means the controller interval has not elapsed.
	ErrNotDue = errors.New("control: not due")

	// ErrUnknownParameter is returned for override keys outside the registry.
	ErrUnknownParameter = errors.New("control: unknown parameter")

	// ErrInvalidValue is returned for non-finite override values.
	ErrInvalidValue = errors.New("control: invalid value")
)

// Deferred reports whether err only postpones a controller to a later cycle.
func Deferred(err error) bool {
	return errors.Is(err, ErrNotDue) || errors.Is(err, ErrInsufficientHistory)
}
