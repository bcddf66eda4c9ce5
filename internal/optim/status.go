package optim

import (
	"context"
	"fmt"
	"time"
)

// Status is the exit state of a solve.
type Status int

const (
	StatusFailed Status = iota
	// StatusConverged: constraints and stationarity met.
	StatusConverged
	// StatusFeasible: budget exhausted while the constraints were satisfied.
	StatusFeasible
	StatusIterationLimit
	StatusCanceled
	// StatusSingular: the problem functions produced non-finite values.
	StatusSingular
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusFeasible:
		return "feasible"
	case StatusIterationLimit:
		return "iteration-limit"
	case StatusCanceled:
		return "canceled"
	case StatusSingular:
		return "singular"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Success reports whether the result may be used as exact.
func (s Status) Success() bool {
	return s == StatusConverged
}

type Diagnostics struct {
	Status          Status
	Method          string
	Iterations      int
	InnerIterations int
	FuncEvaluations int
	Residual        float64 // largest constraint violation at X
	Objective       float64
	Step            float64 // last outer step, infinity norm
	Penalty         float64
	Runtime         time.Duration
}

type Result struct {
	X               []float64
	EqMultipliers   []float64
	IneqMultipliers []float64
	Diagnostics     Diagnostics
}

// Solver is a constrained nonlinear programming method.
type Solver interface {
	Solve(ctx context.Context, p *Problem, x0 []float64) (*Result, error)
}
