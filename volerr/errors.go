// Package volerr defines the error kinds shared by the volatility packages.
//
// Every error returned by this module wraps exactly one of the sentinels
// below, so callers can branch with errors.Is while the message keeps the
// "Func: reason" context of the failing call.
package volerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConstruction reports invalid parameters at construction time.
	ErrConstruction = errors.New("construction error")
	// ErrDomain reports a query that cannot be answered, such as a root
	// that cannot be bracketed or a missing real solution.
	ErrDomain = errors.New("domain error")
	// ErrConvergence reports an iterative solver that hit its limit.
	ErrConvergence = errors.New("convergence error")
	// ErrNumeric reports a non-finite intermediate or result.
	ErrNumeric = errors.New("numeric error")
)

// Construction wraps ErrConstruction with a formatted message.
func Construction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConstruction, fmt.Sprintf(format, args...))
}

// Domain wraps ErrDomain with a formatted message.
func Domain(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDomain, fmt.Sprintf(format, args...))
}

// Convergence wraps ErrConvergence with a formatted message.
func Convergence(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConvergence, fmt.Sprintf(format, args...))
}

// Numeric wraps ErrNumeric with a formatted message.
func Numeric(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNumeric, fmt.Sprintf(format, args...))
}
