package optim

import (
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Problem is a smooth nonlinear program
//
//	minimize   f(x)
//	subject to A x = b, c(x) = 0, g(x) >= 0, lower <= x <= upper.
//
// Missing derivatives are approximated by finite differences.
type Problem struct {
	Dim int

	// Objective may be nil for a pure feasibility problem.
	Objective     func(x []float64) float64
	ObjectiveGrad func(grad, x []float64)
	ObjectiveHess func(hess *mat.SymDense, x []float64)

	LinearEq  *mat.Dense
	LinearRHS []float64

	NumEq int
	Eq    func(c, x []float64)
	EqJac func(jac *mat.Dense, x []float64)

	NumIneq int
	Ineq    func(g, x []float64)
	IneqJac func(jac *mat.Dense, x []float64)

	// Lower and Upper may be nil; infinite entries are ignored.
	Lower []float64
	Upper []float64
}

func (p *Problem) Validate() error {
	var err error
	if p.Dim <= 0 {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "problem.dim", "must be > 0, got %d", p.Dim))
	}
	if p.LinearEq != nil {
		r, c := p.LinearEq.Dims()
		if c != p.Dim || r != len(p.LinearRHS) {
			multierr.AppendInto(&err, cdpr.Geometryf(-1, "problem.linear", "%dx%d matrix with %d right-hand sides for dim %d", r, c, len(p.LinearRHS), p.Dim))
		}
	}
	if p.NumEq > 0 && p.Eq == nil {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "problem.eq", "%d equalities without a function", p.NumEq))
	}
	if p.NumIneq > 0 && p.Ineq == nil {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "problem.ineq", "%d inequalities without a function", p.NumIneq))
	}
	if p.Lower != nil && len(p.Lower) != p.Dim {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "problem.lower", "length %d, want %d", len(p.Lower), p.Dim))
	}
	if p.Upper != nil && len(p.Upper) != p.Dim {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "problem.upper", "length %d, want %d", len(p.Upper), p.Dim))
	}
	return err
}

// compiled stacks every constraint into h(x) = 0 and g(x) >= 0.
type compiled struct {
	p      *Problem
	linear int
	lower  []int
	upper  []int

	nEq, nIneq int

	gradBuf []float64
	eqBuf   []float64
	ineqBuf []float64
	eqJac   *mat.Dense
	ineqJac *mat.Dense
}

func compile(p *Problem) *compiled {
	c := &compiled{p: p}
	if p.LinearEq != nil {
		c.linear, _ = p.LinearEq.Dims()
	}
	for i := 0; i < p.Dim; i++ {
		if p.Lower != nil && !math.IsInf(p.Lower[i], -1) {
			c.lower = append(c.lower, i)
		}
		if p.Upper != nil && !math.IsInf(p.Upper[i], 1) {
			c.upper = append(c.upper, i)
		}
	}
	c.nEq = c.linear + p.NumEq
	c.nIneq = p.NumIneq + len(c.lower) + len(c.upper)

	c.gradBuf = make([]float64, p.Dim)
	c.eqBuf = make([]float64, c.nEq)
	c.ineqBuf = make([]float64, c.nIneq)
	if c.nEq > 0 {
		c.eqJac = mat.NewDense(c.nEq, p.Dim, nil)
	}
	if c.nIneq > 0 {
		c.ineqJac = mat.NewDense(c.nIneq, p.Dim, nil)
	}
	return c
}

func (c *compiled) objective(x []float64) float64 {
	if c.p.Objective == nil {
		return 0
	}
	return c.p.Objective(x)
}

func (c *compiled) objectiveGrad(grad, x []float64) {
	switch {
	case c.p.Objective == nil:
		for i := range grad {
			grad[i] = 0
		}
	case c.p.ObjectiveGrad != nil:
		c.p.ObjectiveGrad(grad, x)
	default:
		fd.Gradient(grad, c.p.Objective, x, &fd.Settings{Formula: fd.Central})
	}
}

func (c *compiled) objectiveHess(hess *mat.SymDense, x []float64) {
	switch {
	case c.p.Objective == nil:
		hess.Zero()
	case c.p.ObjectiveHess != nil:
		c.p.ObjectiveHess(hess, x)
	default:
		fd.Hessian(hess, c.p.Objective, x, &fd.Settings{Formula: fd.Central})
	}
}

func (c *compiled) eq(h, x []float64) {
	if c.linear > 0 {
		lin := mat.NewVecDense(c.linear, h[:c.linear])
		lin.MulVec(c.p.LinearEq, mat.NewVecDense(len(x), x))
		for i, b := range c.p.LinearRHS {
			h[i] -= b
		}
	}
	if c.p.NumEq > 0 {
		c.p.Eq(h[c.linear:], x)
	}
}

func (c *compiled) eqJacobian(jac *mat.Dense, x []float64) {
	if c.linear > 0 {
		jac.Slice(0, c.linear, 0, c.p.Dim).(*mat.Dense).Copy(c.p.LinearEq)
	}
	if c.p.NumEq == 0 {
		return
	}
	sub := jac.Slice(c.linear, c.nEq, 0, c.p.Dim).(*mat.Dense)
	if c.p.EqJac != nil {
		c.p.EqJac(sub, x)
		return
	}
	fd.Jacobian(sub, c.p.Eq, x, &fd.JacobianSettings{Formula: fd.Central})
}

func (c *compiled) ineq(g, x []float64) {
	n := c.p.NumIneq
	if n > 0 {
		c.p.Ineq(g[:n], x)
	}
	for k, i := range c.lower {
		g[n+k] = x[i] - c.p.Lower[i]
	}
	n += len(c.lower)
	for k, i := range c.upper {
		g[n+k] = c.p.Upper[i] - x[i]
	}
}

func (c *compiled) ineqJacobian(jac *mat.Dense, x []float64) {
	jac.Zero()
	n := c.p.NumIneq
	if n > 0 {
		sub := jac.Slice(0, n, 0, c.p.Dim).(*mat.Dense)
		if c.p.IneqJac != nil {
			c.p.IneqJac(sub, x)
		} else {
			fd.Jacobian(sub, c.p.Ineq, x, &fd.JacobianSettings{Formula: fd.Central})
		}
	}
	for k, i := range c.lower {
		jac.Set(n+k, i, 1)
	}
	n += len(c.lower)
	for k, i := range c.upper {
		jac.Set(n+k, i, -1)
	}
}

// violation returns the largest equality residual or inequality shortfall.
func (c *compiled) violation(x []float64) float64 {
	c.eq(c.eqBuf, x)
	c.ineq(c.ineqBuf, x)
	return math.Max(Vector(c.eqBuf).MaxAbs(), Vector(c.ineqBuf).NegPart())
}
