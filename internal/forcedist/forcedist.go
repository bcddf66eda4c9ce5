// Package forcedist computes a cable force distribution that balances an
// external wrench while keeping every cable inside its force limits.
//
// The solution starts from the closed form f = f_mean - A⁺(w + A·f_mean) and
// repairs bound violations by clamping the worst offender and solving again
// for the remaining cables.
package forcedist

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/cablekin/internal/cdpr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// boundTolerance is the relative slack accepted on a cable limit.
const boundTolerance = 1e-9

// tieTolerance groups violations that differ by less than this (relative) and
// resolves them toward the lowest cable index.
const tieTolerance = 1e-12

// Bounds holds per-cable force limits.
type Bounds struct {
	Min []float64
	Max []float64
}

// UniformBounds returns the same [min, max] for m cables.
func UniformBounds(m int, min, max float64) Bounds {
	b := Bounds{Min: make([]float64, m), Max: make([]float64, m)}
	for i := range m {
		b.Min[i] = min
		b.Max[i] = max
	}
	return b
}

// Validate checks b against m cables.
func (b Bounds) Validate(m int) error {
	if len(b.Min) != m || len(b.Max) != m {
		return cdpr.Geometryf(-1, "bounds", "need %d limits, got min %d max %d", m, len(b.Min), len(b.Max))
	}
	for i := range m {
		lo, hi := b.Min[i], b.Max[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo > hi {
			return cdpr.Geometryf(i, "bounds", "invalid limits [%g, %g]", lo, hi)
		}
	}
	return nil
}

func (b Bounds) scale() float64 {
	s := 1.0
	for i := range b.Min {
		s = math.Max(s, math.Max(math.Abs(b.Min[i]), math.Abs(b.Max[i])))
	}
	return s
}

// Distribution is a feasible set of cable tensions.
type Distribution struct {
	Forces []float64
	// Clamped lists the cables the repair loop pinned to a limit, in order.
	Clamped    []int
	Iterations int
}

// Residual returns the largest component of A·f + w.
func (d *Distribution) Residual(a mat.Matrix, w []float64) float64 {
	r, _ := a.Dims()
	res := mat.NewVecDense(r, nil)
	res.MulVec(a, mat.NewVecDense(len(d.Forces), append([]float64(nil), d.Forces...)))
	res.AddVec(res, mat.NewVecDense(len(w), append([]float64(nil), w...)))
	return mat.Norm(res, math.Inf(1))
}

type options struct {
	fixed map[int]float64
}

// Option adjusts a Distribute call.
type Option func(*options)

// WithFixed pins the given cables to the given tensions before solving.
func WithFixed(fixed map[int]float64) Option {
	return func(o *options) {
		o.fixed = fixed
	}
}

// Distribute solves A·f = -w for f within b. A is rows×M with M >= rows.
// Infeasible problems return a *cdpr.InfeasibleError.
func Distribute(w []float64, a mat.Matrix, b Bounds, opts ...Option) (*Distribution, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rows, m := a.Dims()
	if len(w) != rows {
		return nil, cdpr.Geometryf(-1, "wrench", "expected %d components, got %d", rows, len(w))
	}
	if err := b.Validate(m); err != nil {
		return nil, err
	}
	for _, x := range w {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, cdpr.Geometryf(-1, "wrench", "non-finite component in %v", w)
		}
	}
	if m < rows {
		return nil, &cdpr.InfeasibleError{Active: m, Rows: rows, Reason: "fewer cables than controlled degrees of freedom"}
	}

	s := newState(w, a, b)
	fixed := make([]int, 0, len(o.fixed))
	for i := range o.fixed {
		fixed = append(fixed, i)
	}
	sort.Ints(fixed)
	for _, i := range fixed {
		v := o.fixed[i]
		if i < 0 || i >= m {
			return nil, cdpr.Geometryf(i, "fixed", "cable index out of range [0, %d)", m)
		}
		if v < b.Min[i]-s.tol || v > b.Max[i]+s.tol {
			return nil, cdpr.Geometryf(i, "fixed", "tension %g outside [%g, %g]", v, b.Min[i], b.Max[i])
		}
		s.fix(i, v)
	}

	if len(fixed) == 0 && m == rows {
		return s.square()
	}
	return s.repair()
}

// state is the single working copy the repair loop mutates: clamped columns
// are zeroed in place and their contribution folded into the reduced wrench.
type state struct {
	a       mat.Matrix
	work    *mat.Dense
	active  []bool
	forces  []float64
	wrench  []float64
	bounds  Bounds
	clamped []int
	tol     float64
	tie     float64
}

func newState(w []float64, a mat.Matrix, b Bounds) *state {
	_, m := a.Dims()
	active := make([]bool, m)
	for i := range active {
		active[i] = true
	}
	scale := b.scale()
	return &state{
		a:      a,
		work:   mat.DenseCopyOf(a),
		active: active,
		forces: make([]float64, m),
		wrench: append([]float64(nil), w...),
		bounds: b,
		tol:    boundTolerance * scale,
		tie:    tieTolerance * scale,
	}
}

func (s *state) numActive() int {
	n := 0
	for _, ok := range s.active {
		if ok {
			n++
		}
	}
	return n
}

// fix pins cable i at v.
func (s *state) fix(i int, v float64) {
	rows, _ := s.work.Dims()
	s.forces[i] = v
	s.active[i] = false
	for r := range rows {
		s.wrench[r] += s.a.At(r, i) * v
		s.work.Set(r, i, 0)
	}
}

func (s *state) infeasible(reason string) error {
	rows, _ := s.work.Dims()
	return &cdpr.InfeasibleError{
		Active:  s.numActive(),
		Rows:    rows,
		Clamped: append([]int(nil), s.clamped...),
		Reason:  reason,
	}
}

// square handles M == rows: the tensions are fully determined.
func (s *state) square() (*Distribution, error) {
	rows, _ := s.work.Dims()
	rhs := mat.NewVecDense(rows, nil)
	for r := range rows {
		rhs.SetVec(r, -s.wrench[r])
	}
	var f mat.VecDense
	if err := f.SolveVec(s.work, rhs); err != nil {
		return nil, s.infeasible(fmt.Sprintf("singular structure matrix: %v", err))
	}
	if i, _ := s.worst(f.RawVector().Data); i >= 0 {
		return nil, s.infeasible(fmt.Sprintf("cable %d tension %g outside [%g, %g]",
			i, f.AtVec(i), s.bounds.Min[i], s.bounds.Max[i]))
	}
	return &Distribution{Forces: append([]float64(nil), f.RawVector().Data...), Iterations: 1}, nil
}

// repair runs the clamp-and-resolve loop. Each pass either succeeds or clamps
// one more cable, so it ends after at most M passes.
func (s *state) repair() (*Distribution, error) {
	rows, m := s.work.Dims()
	mean := mat.NewVecDense(m, nil)
	rhs := mat.NewVecDense(rows, nil)
	var gram mat.SymDense
	var chol mat.Cholesky
	var y, corr mat.VecDense
	trial := make([]float64, m)

	for iter := 1; iter <= m+1; iter++ {
		if s.numActive() < rows {
			return nil, s.infeasible("too few free cables remain")
		}

		for i := range m {
			v := 0.0
			if s.active[i] {
				v = (s.bounds.Min[i] + s.bounds.Max[i]) / 2
			}
			mean.SetVec(i, v)
		}
		rhs.MulVec(s.work, mean)
		for r := range rows {
			rhs.SetVec(r, rhs.AtVec(r)+s.wrench[r])
		}

		gram.SymOuterK(1, s.work)
		if ok := chol.Factorize(&gram); !ok {
			return nil, s.infeasible("free cables cannot span the wrench space")
		}
		if err := chol.SolveVecTo(&y, rhs); err != nil {
			return nil, s.infeasible(fmt.Sprintf("ill-conditioned system: %v", err))
		}
		corr.MulVec(s.work.T(), &y)

		for i := range m {
			if s.active[i] {
				trial[i] = mean.AtVec(i) - corr.AtVec(i)
			} else {
				trial[i] = s.forces[i]
			}
		}
		if floats.HasNaN(trial) {
			return nil, s.infeasible("non-finite tensions")
		}

		k, bound := s.worst(trial)
		if k < 0 {
			copy(s.forces, trial)
			return &Distribution{
				Forces:     append([]float64(nil), s.forces...),
				Clamped:    append([]int(nil), s.clamped...),
				Iterations: iter,
			}, nil
		}
		s.fix(k, bound)
		s.clamped = append(s.clamped, k)
	}
	return nil, s.infeasible("repair loop did not terminate")
}

// worst returns the active cable with the largest bound violation and the
// bound it should be clamped to, or -1 when every tension is within limits.
func (s *state) worst(f []float64) (int, float64) {
	best, bound, most := -1, 0.0, 0.0
	for i, v := range f {
		if !s.active[i] {
			continue
		}
		lo, hi := s.bounds.Min[i], s.bounds.Max[i]
		var viol, clamp float64
		switch {
		case v < lo-s.tol:
			viol, clamp = lo-v, lo
		case v > hi+s.tol:
			viol, clamp = v-hi, hi
		default:
			continue
		}
		if best < 0 || viol > most+s.tie {
			best, bound, most = i, clamp, viol
		}
	}
	return best, bound
}
