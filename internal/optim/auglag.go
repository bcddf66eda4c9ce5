// Package optim solves smooth constrained nonlinear programs.
//
// AugLag is a Powell-Hestenes-Rockafellar augmented Lagrangian method. Each
// outer iteration minimizes the augmented Lagrangian with gonum/optimize and
// then updates the multipliers and the penalty.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/san-kum/cablekin/internal/cdpr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// DefaultMethod is the inner minimizer used when none is named.
const DefaultMethod = "newton"

var methods = map[string]func() optimize.Method{
	"newton": func() optimize.Method { return &optimize.Newton{} },
	"bfgs":   func() optimize.Method { return &optimize.BFGS{} },
	"lbfgs":  func() optimize.Method { return &optimize.LBFGS{} },
}

// Methods lists the registered inner minimizers.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for k := range methods {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// violationDecrease is the factor the constraint violation must shrink by
// per outer iteration before the penalty is left alone.
const violationDecrease = 0.25

type AugLag struct {
	Options Options
	Method  string
	Logger  *zap.Logger
}

// NewAugLag returns a solver using the named inner method ("" for the default).
func NewAugLag(o Options, method string, logger *zap.Logger) (*AugLag, error) {
	if method == "" {
		method = DefaultMethod
	}
	if _, ok := methods[method]; !ok {
		return nil, cdpr.Geometryf(-1, "solver.method", "unknown method %q (have %v)", method, Methods())
	}
	return &AugLag{Options: o, Method: method, Logger: logger}, nil
}

func (s *AugLag) Solve(ctx context.Context, p *Problem, x0 []float64) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != p.Dim {
		return nil, cdpr.Geometryf(-1, "x0", "length %d, want %d", len(x0), p.Dim)
	}
	if !Vector(x0).IsValid() {
		return nil, cdpr.Geometryf(-1, "x0", "non-finite initial guess")
	}

	name := s.Method
	if name == "" {
		name = DefaultMethod
	}
	newMethod, ok := methods[name]
	if !ok {
		return nil, cdpr.Geometryf(-1, "solver.method", "unknown method %q (have %v)", name, Methods())
	}
	o := s.Options
	if o.MaxIterations == 0 {
		o = DefaultOptions()
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	start := time.Now()
	c := compile(p)
	l := &lagrangian{
		c:      c,
		lambda: make([]float64, c.nEq),
		nu:     make([]float64, c.nIneq),
		mu:     o.PenaltyInitial,
		weight: o.ObjectiveWeight,
	}
	if c.nEq > 0 {
		l.coefEq = make([]float64, c.nEq)
	}
	if c.nIneq > 0 {
		l.coefIneq = make([]float64, c.nIneq)
	}

	x := Vector(x0).Clone()
	diag := Diagnostics{Method: name, Penalty: l.mu}
	prevViol := c.violation(x)
	prevObj := c.objective(x)
	diag.Residual = prevViol
	diag.Objective = prevObj

	finish := func(cause error) (*Result, error) {
		diag.Runtime = time.Since(start)
		res := &Result{
			X:               x.Clone(),
			EqMultipliers:   append([]float64(nil), l.lambda...),
			IneqMultipliers: append([]float64(nil), l.nu...),
			Diagnostics:     diag,
		}
		log.Debug("augmented lagrangian finished",
			zap.Stringer("status", diag.Status),
			zap.Int("iterations", diag.Iterations),
			zap.Float64("residual", diag.Residual),
			zap.Duration("runtime", diag.Runtime))
		if diag.Status.Success() {
			return res, nil
		}
		return res, &cdpr.ConvergenceError{
			Status:     diag.Status.String(),
			Iterations: diag.Iterations,
			Residual:   diag.Residual,
			Last:       x.Clone(),
			Cause:      cause,
		}
	}

	for k := 1; k <= o.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			diag.Status = StatusCanceled
			return finish(fmt.Errorf("%w: %w", cdpr.ErrCanceled, err))
		}
		elapsed := time.Since(start)
		if o.MaxRuntime > 0 && elapsed >= o.MaxRuntime {
			break
		}

		settings := &optimize.Settings{
			GradientThreshold: o.GradientTolerance,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-15,
				Relative:   1e-14,
				Iterations: 5,
			},
			MajorIterations: o.MaxInnerIterations,
		}
		if o.MaxRuntime > 0 {
			settings.Runtime = o.MaxRuntime - elapsed
		}

		res, err := optimize.Minimize(l.problem(name == "newton"), x, settings, newMethod())
		if res == nil {
			diag.Status = StatusFailed
			return finish(err)
		}
		diag.InnerIterations += res.MajorIterations
		diag.FuncEvaluations += res.FuncEvaluations
		if err != nil {
			log.Debug("inner solve stopped early", zap.Int("iteration", k), zap.Error(err))
		}

		next := Vector(res.X).Clone()
		if !next.IsValid() {
			diag.Status = StatusSingular
			return finish(nil)
		}
		if l.value(next) > l.value(x) {
			next = x.Clone()
		}

		h := make([]float64, c.nEq)
		g := make([]float64, c.nIneq)
		c.eq(h, next)
		c.ineq(g, next)
		obj := c.objective(next)
		if !Vector(h).IsValid() || !Vector(g).IsValid() || math.IsNaN(obj) || math.IsInf(obj, 0) {
			diag.Status = StatusSingular
			return finish(nil)
		}
		viol := math.Max(Vector(h).MaxAbs(), Vector(g).NegPart())
		step := next.Sub(x).MaxAbs()
		l.update(h, g)

		x = next
		diag.Iterations = k
		diag.Residual = viol
		diag.Objective = obj
		diag.Step = step
		diag.Penalty = l.mu

		log.Debug("augmented lagrangian iteration",
			zap.Int("iteration", k),
			zap.Float64("residual", viol),
			zap.Float64("objective", obj),
			zap.Float64("step", step),
			zap.Float64("penalty", l.mu),
			zap.Int("inner", res.MajorIterations),
			zap.Stringer("inner_status", res.Status))

		small := step <= o.StepTolerance*(1+x.MaxAbs()) ||
			math.Abs(obj-prevObj) <= o.ObjectiveTolerance*(1+math.Abs(obj))
		if viol <= o.ConstraintTolerance && small {
			diag.Status = StatusConverged
			return finish(nil)
		}

		if viol > violationDecrease*prevViol {
			l.mu = math.Min(l.mu*o.PenaltyGrowth, o.PenaltyMax)
		}
		prevViol = viol
		prevObj = obj
	}

	if diag.Residual <= o.ConstraintTolerance {
		diag.Status = StatusFeasible
	} else {
		diag.Status = StatusIterationLimit
	}
	return finish(nil)
}

// lagrangian evaluates
//
//	φ(x) = w f(x) + λᵀh + μ/2 |h|² + 1/(2μ) Σ (max(0, ν - μ g)² - ν²).
type lagrangian struct {
	c      *compiled
	lambda []float64
	nu     []float64
	mu     float64
	weight float64

	coefEq   []float64
	coefIneq []float64
}

func (l *lagrangian) problem(withHess bool) optimize.Problem {
	p := optimize.Problem{
		Func: l.value,
		Grad: l.grad,
	}
	if withHess {
		p.Hess = l.hess
	}
	return p
}

func (l *lagrangian) value(x []float64) float64 {
	c := l.c
	f := l.weight * c.objective(x)
	if c.nEq > 0 {
		c.eq(c.eqBuf, x)
		for i, h := range c.eqBuf {
			f += l.lambda[i]*h + 0.5*l.mu*h*h
		}
	}
	if c.nIneq > 0 {
		c.ineq(c.ineqBuf, x)
		for j, g := range c.ineqBuf {
			s := math.Max(0, l.nu[j]-l.mu*g)
			f += (s*s - l.nu[j]*l.nu[j]) / (2 * l.mu)
		}
	}
	if math.IsNaN(f) {
		return math.Inf(1)
	}
	return f
}

func (l *lagrangian) grad(grad, x []float64) {
	c := l.c
	c.objectiveGrad(grad, x)
	out := mat.NewVecDense(len(grad), grad)
	out.ScaleVec(l.weight, out)

	var tmp mat.VecDense
	if c.nEq > 0 {
		c.eq(c.eqBuf, x)
		c.eqJacobian(c.eqJac, x)
		for i, h := range c.eqBuf {
			l.coefEq[i] = l.lambda[i] + l.mu*h
		}
		tmp.MulVec(c.eqJac.T(), mat.NewVecDense(c.nEq, l.coefEq))
		out.AddVec(out, &tmp)
	}
	if c.nIneq > 0 {
		c.ineq(c.ineqBuf, x)
		c.ineqJacobian(c.ineqJac, x)
		for j, g := range c.ineqBuf {
			l.coefIneq[j] = -math.Max(0, l.nu[j]-l.mu*g)
		}
		tmp.MulVec(c.ineqJac.T(), mat.NewVecDense(c.nIneq, l.coefIneq))
		out.AddVec(out, &tmp)
	}
	for i, v := range grad {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			grad[i] = 0
		}
	}
}

// hess is the Gauss-Newton approximation: constraint curvature is dropped.
func (l *lagrangian) hess(hess *mat.SymDense, x []float64) {
	c := l.c
	c.objectiveHess(hess, x)
	hess.ScaleSym(l.weight, hess)
	if c.nEq > 0 {
		c.eqJacobian(c.eqJac, x)
		hess.SymRankK(hess, l.mu, c.eqJac.T())
	}
	if c.nIneq > 0 {
		c.ineq(c.ineqBuf, x)
		c.ineqJacobian(c.ineqJac, x)
		for j, g := range c.ineqBuf {
			if l.nu[j]-l.mu*g > 0 {
				hess.SymRankOne(hess, l.mu, c.ineqJac.RowView(j))
			}
		}
	}
}

func (l *lagrangian) update(h, g []float64) {
	for i := range l.lambda {
		l.lambda[i] += l.mu * h[i]
	}
	for j := range l.nu {
		l.nu[j] = math.Max(0, l.nu[j]-l.mu*g[j])
	}
}
