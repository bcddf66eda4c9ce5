package cdpr

import (
	"errors"
	"fmt"
)

// Domain errors for kinematics and statics queries.
var (
	// ErrInvalidGeometry indicates malformed input dimensions or non-physical parameters.
	ErrInvalidGeometry = errors.New("cdpr: invalid geometry")

	// ErrInfeasible indicates no force distribution exists within the cable limits.
	ErrInfeasible = errors.New("cdpr: no feasible force distribution")

	// ErrConvergence indicates the nonlinear solver did not meet its tolerances.
	ErrConvergence = errors.New("cdpr: solver did not converge")

	// ErrSingularForce indicates a near-zero horizontal cable force under asinh.
	ErrSingularForce = errors.New("cdpr: singular cable force state")

	// ErrCanceled indicates the query was interrupted by its context.
	ErrCanceled = errors.New("cdpr: query canceled by context")
)

// GeometryError wraps ErrInvalidGeometry with the offending cable and field.
// Cable is -1 when the problem is not tied to a single cable.
type GeometryError struct {
	Cable  int
	Field  string
	Reason string
}

func (e *GeometryError) Error() string {
	if e.Cable < 0 {
		return fmt.Sprintf("cdpr: invalid geometry: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("cdpr: invalid geometry: cable %d: %s: %s", e.Cable, e.Field, e.Reason)
}

func (e *GeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

// Geometryf builds a GeometryError with a formatted reason.
func Geometryf(cable int, field, format string, args ...any) error {
	return &GeometryError{Cable: cable, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InfeasibleError reports how far the repair loop got before giving up.
type InfeasibleError struct {
	Active  int   // cables still free when the loop stopped
	Rows    int   // rows of the structure matrix
	Clamped []int // cables clamped to a bound, in clamp order
	Reason  string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("cdpr: no feasible force distribution: %s (active %d, rows %d, clamped %v)",
		e.Reason, e.Active, e.Rows, e.Clamped)
}

func (e *InfeasibleError) Unwrap() error {
	return ErrInfeasible
}

// ConvergenceError carries the last iterate of a failed nonlinear solve so
// callers can decide whether it is good enough.
type ConvergenceError struct {
	Status     string
	Iterations int
	Residual   float64
	Last       []float64
	Cause      error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("cdpr: solver did not converge: status %s after %d iterations (residual %.3g)",
		e.Status, e.Iterations, e.Residual)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConvergence}
	}
	return []error{ErrConvergence, e.Cause}
}
