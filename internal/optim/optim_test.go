package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/cablekin/internal/cdpr"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

func halfNormSquared() (func([]float64) float64, func(grad, x []float64), func(*mat.SymDense, []float64)) {
	f := func(x []float64) float64 {
		s := 0.0
		for _, v := range x {
			s += v * v
		}
		return s / 2
	}
	grad := func(g, x []float64) {
		copy(g, x)
	}
	hess := func(h *mat.SymDense, x []float64) {
		h.Zero()
		for i := range x {
			h.SetSym(i, i, 1)
		}
	}
	return f, grad, hess
}

func sumToOne() *Problem {
	f, grad, hess := halfNormSquared()
	return &Problem{
		Dim:           2,
		Objective:     f,
		ObjectiveGrad: grad,
		ObjectiveHess: hess,
		LinearEq:      mat.NewDense(1, 2, []float64{1, 1}),
		LinearRHS:     []float64{1},
	}
}

func TestLinearEquality(t *testing.T) {
	s, err := NewAugLag(DefaultOptions(), "", zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Solve(context.Background(), sumToOne(), []float64{3, -1})
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(res.X[0]-0.5) > 1e-6 || math.Abs(res.X[1]-0.5) > 1e-6 {
		t.Errorf("x = %v, want [0.5 0.5]", res.X)
	}
	if res.Diagnostics.Status != StatusConverged || res.Diagnostics.Residual > 1e-8 {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}
	// KKT: x + λ·[1 1] = 0
	if math.Abs(res.EqMultipliers[0]+0.5) > 1e-5 {
		t.Errorf("multiplier = %v, want -0.5", res.EqMultipliers[0])
	}
}

func TestActiveBound(t *testing.T) {
	p := sumToOne()
	p.Lower = []float64{0.8, math.Inf(-1)}

	s := &AugLag{Options: DefaultOptions()}
	res, err := s.Solve(context.Background(), p, []float64{0, 0})
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(res.X[0]-0.8) > 1e-6 || math.Abs(res.X[1]-0.2) > 1e-6 {
		t.Errorf("x = %v, want [0.8 0.2]", res.X)
	}
}

func TestNonlinearEqualityFiniteDifferences(t *testing.T) {
	p := &Problem{
		Dim: 2,
		Objective: func(x []float64) float64 {
			return (x[0]-2)*(x[0]-2) + x[1]*x[1]
		},
		NumEq: 1,
		Eq: func(c, x []float64) {
			c[0] = x[0]*x[0] + x[1]*x[1] - 1
		},
	}

	s := &AugLag{Options: DefaultOptions()}
	res, err := s.Solve(context.Background(), p, []float64{0.5, 0.5})
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	if math.Abs(res.X[0]-1) > 1e-5 || math.Abs(res.X[1]) > 1e-5 {
		t.Errorf("x = %v, want [1 0]", res.X)
	}
}

func TestNonlinearInequality(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			p := &Problem{
				Dim: 2,
				Objective: func(x []float64) float64 {
					return (x[0]-2)*(x[0]-2) + (x[1]-2)*(x[1]-2)
				},
				ObjectiveGrad: func(g, x []float64) {
					g[0] = 2 * (x[0] - 2)
					g[1] = 2 * (x[1] - 2)
				},
				NumIneq: 1,
				Ineq: func(g, x []float64) {
					g[0] = 1 - x[0]*x[0] - x[1]*x[1]
				},
				IneqJac: func(j *mat.Dense, x []float64) {
					j.Set(0, 0, -2*x[0])
					j.Set(0, 1, -2*x[1])
				},
			}
			s, err := NewAugLag(DefaultOptions(), method, nil)
			if err != nil {
				t.Fatal(err)
			}
			res, err := s.Solve(context.Background(), p, []float64{0, 0})
			if err != nil {
				t.Fatalf("solve failed: %v", err)
			}
			want := 1 / math.Sqrt2
			if math.Abs(res.X[0]-want) > 1e-5 || math.Abs(res.X[1]-want) > 1e-5 {
				t.Errorf("x = %v, want [%v %v]", res.X, want, want)
			}
		})
	}
}

func TestIterationLimitReturnsLastIterate(t *testing.T) {
	o := DefaultOptions()
	o.MaxIterations = 1
	s := &AugLag{Options: o}

	res, err := s.Solve(context.Background(), sumToOne(), []float64{0, 0})
	var ce *cdpr.ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConvergenceError, got %v", err)
	}
	if !errors.Is(err, cdpr.ErrConvergence) {
		t.Error("error should unwrap to ErrConvergence")
	}
	if ce.Status != StatusIterationLimit.String() || ce.Iterations != 1 {
		t.Errorf("status %q after %d iterations", ce.Status, ce.Iterations)
	}
	if res == nil || len(ce.Last) != 2 || res.X[0] != ce.Last[0] {
		t.Errorf("last iterate missing: res %+v last %v", res, ce.Last)
	}
	if ce.Residual <= 1e-8 {
		t.Errorf("residual %v should still be above tolerance", ce.Residual)
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &AugLag{Options: DefaultOptions()}
	res, err := s.Solve(ctx, sumToOne(), []float64{0.2, 0.3})
	if !errors.Is(err, cdpr.ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if res.Diagnostics.Status != StatusCanceled || res.X[0] != 0.2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestInvalidProblem(t *testing.T) {
	s := &AugLag{}
	if _, err := s.Solve(context.Background(), &Problem{}, nil); !errors.Is(err, cdpr.ErrInvalidGeometry) {
		t.Errorf("zero dim: expected ErrInvalidGeometry, got %v", err)
	}
	if _, err := s.Solve(context.Background(), sumToOne(), []float64{1}); !errors.Is(err, cdpr.ErrInvalidGeometry) {
		t.Errorf("short x0: expected ErrInvalidGeometry, got %v", err)
	}
	if _, err := NewAugLag(DefaultOptions(), "simplex", nil); !errors.Is(err, cdpr.ErrInvalidGeometry) {
		t.Errorf("unknown method: expected ErrInvalidGeometry, got %v", err)
	}
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions(map[string]float64{
		"constraint_tolerance": 1e-6,
		"max_iterations":       20,
		"max_runtime":          1.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.ConstraintTolerance != 1e-6 || o.MaxIterations != 20 || o.MaxRuntime.Seconds() != 1.5 {
		t.Errorf("unexpected options %+v", o)
	}
	if o.PenaltyInitial != DefaultOptions().PenaltyInitial {
		t.Errorf("unset keys should keep defaults")
	}
	if m := o.Map(); m["max_iterations"] != 20 || len(m) != len(OptionKeys()) {
		t.Errorf("map = %v", m)
	}

	_, err = ParseOptions(map[string]float64{
		"tolerance":      1,
		"max_iterations": 2.5,
		"penalty_growth": 1,
	})
	if !errors.Is(err, cdpr.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("expected 3 errors, got %d: %v", n, err)
	}
}

func TestVector(t *testing.T) {
	tests := []struct {
		name  string
		v     Vector
		valid bool
		norm  float64
	}{
		{"empty", Vector{}, true, 0},
		{"normal", Vector{3, 4}, true, 5},
		{"nan", Vector{1, math.NaN()}, false, math.NaN()},
		{"inf", Vector{math.Inf(-1)}, false, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
			if tt.valid && math.Abs(tt.v.Norm()-tt.norm) > 1e-12 {
				t.Errorf("Norm() = %v, want %v", tt.v.Norm(), tt.norm)
			}
		})
	}

	a := Vector{1, -5, 2}
	if d := a.Sub(Vector{1, 1, 1}); d[1] != -6 || d.MaxAbs() != 6 {
		t.Errorf("Sub/MaxAbs = %v", d)
	}
	if n := (Vector{1, -0.5, -2}).NegPart(); n != 2 {
		t.Errorf("NegPart = %v, want 2", n)
	}
	c := a.Clone()
	c[0] = 9
	if a[0] != 1 {
		t.Error("Clone shares storage")
	}
}
