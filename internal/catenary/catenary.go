// Package catenary solves the inverse kinematics and statics of a cable robot
// whose cables sag under their own weight and may stretch elastically.
//
// The unknowns are, per cable, the force the cable exerts on the platform
// (horizontal and vertical components in the cable's vertical plane) and its
// unstrained length. They are found by a constrained nonlinear solve: platform
// equilibrium is linear in the forces, each cable's end point must land on its
// pulley exit point, and tensions stay within the cable limits.
package catenary

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/optim"
	"github.com/san-kum/cablekin/internal/pulley"
	"github.com/san-kum/cablekin/internal/robot"
	"github.com/san-kum/cablekin/internal/structure"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// minSeparation is the smallest horizontal anchor-to-exit distance for which
// the cable plane is defined.
const minSeparation = 1e-9

// wrapTolerance stops the wrap refinement once no angle moves by more.
const wrapTolerance = 1e-9

var up = r3.Vec{Z: 1}

type Options struct {
	Solver optim.Options
	Method string
	// Elastic adds axial strain; the objective then stays close to the seed.
	Elastic bool
	// WrapIterations bounds the number of solves used to align the wrap angle
	// with the sagging cable. 1 keeps the straight-line wrap angle.
	WrapIterations int
	// SingularForce is the smallest accepted horizontal force.
	SingularForce float64
	// Optimizer replaces the built-in augmented Lagrangian when set.
	Optimizer optim.Solver
	Logger    *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Solver:         optim.DefaultOptions(),
		Method:         optim.DefaultMethod,
		WrapIterations: 3,
		SingularForce:  1e-6,
	}
}

// Cable is the solved state of one cable.
type Cable struct {
	Index      int
	Fx         float64 // horizontal force on the platform, toward the pulley
	Fz         float64 // vertical force on the platform, up
	Unstrained float64 // in-air unstrained length
	Length     float64 // Unstrained plus the arc on the pulley
	Tension    float64 // at the anchor
	TopTension float64 // at the pulley exit
	Swivel     float64
	Wrap       float64
	Anchor     r3.Vec // world
	Exit       r3.Vec // world
	Horizontal r3.Vec // unit, from anchor toward exit in the ground plane
	Direction  r3.Vec // unit force direction at the anchor
	Pulley     robot.Pulley
}

type Diagnostics struct {
	optim.Diagnostics
	WrapIterations int
	WrapChange     float64 // largest wrap update left after the last solve
}

type Result struct {
	Pose        geom.Pose
	Wrench      []float64 // the pattern's components
	Model       Model
	Cables      []Cable
	Diagnostics Diagnostics
}

// Lengths returns L0 + r·β per cable.
func (r *Result) Lengths() []float64 {
	out := make([]float64, len(r.Cables))
	for i, c := range r.Cables {
		out[i] = c.Length
	}
	return out
}

// Tensions returns the tension at each anchor.
func (r *Result) Tensions() []float64 {
	out := make([]float64, len(r.Cables))
	for i, c := range r.Cables {
		out[i] = c.Tension
	}
	return out
}

// UnitVectors returns the 3×M force directions at the anchors.
func (r *Result) UnitVectors() *mat.Dense {
	u := mat.NewDense(3, len(r.Cables), nil)
	for i, c := range r.Cables {
		u.Set(0, i, c.Direction.X)
		u.Set(1, i, c.Direction.Y)
		u.Set(2, i, c.Direction.Z)
	}
	return u
}

// Angles returns the 2×M swivel (row 0) and wrap (row 1) angles in radians.
func (r *Result) Angles() *mat.Dense {
	a := mat.NewDense(2, len(r.Cables), nil)
	for i, c := range r.Cables {
		a.Set(0, i, c.Swivel)
		a.Set(1, i, c.Wrap)
	}
	return a
}

// Equilibrium returns A·t + w, the net wrench left on the platform.
func (r *Result) Equilibrium(rb *robot.Robot) ([]float64, error) {
	dirs := make([]r3.Vec, len(r.Cables))
	for i, c := range r.Cables {
		dirs[i] = c.Direction
	}
	a, err := structure.Build(rb.Pattern, rb.Anchors(), dirs, r.Pose.R)
	if err != nil {
		return nil, err
	}
	out := structure.Wrench(a, r.Tensions())
	floats.Add(out, r.Wrench)
	return out, nil
}

// query is the per-call state shared by the problem callbacks.
type query struct {
	robot  *robot.Robot
	pose   geom.Pose
	wrench []float64
	model  Model

	anchors []r3.Vec // world
	swivel  []float64
	wrap    []float64

	exits      []r3.Vec
	horizontal []r3.Vec
	spanX      []float64
	spanZ      []float64

	forceScale  float64
	lengthScale float64
	reference   []float64 // scaled objective centre
}

// Solve computes cable lengths, force directions and pulley angles for the
// platform at pose carrying wrench (6 or pattern.Rows() components).
func Solve(ctx context.Context, r *robot.Robot, pose geom.Pose, wrench []float64, opts Options) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Material == nil {
		return nil, cdpr.Geometryf(-1, "material", "the catenary model needs a cable material")
	}
	w, err := r.Pattern.Project(wrench)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	solver := opts.Optimizer
	if solver == nil {
		s, err := optim.NewAugLag(opts.Solver, opts.Method, log)
		if err != nil {
			return nil, err
		}
		solver = s
	}
	iterations := opts.WrapIterations
	if iterations < 1 {
		iterations = 1
	}

	model := Model{Weight: r.Material.Weight(r.G())}
	if opts.Elastic {
		model.Stiffness = r.Material.Stiffness()
	}

	q, x, err := seed(r, pose, w, model, log)
	if err != nil {
		return nil, err
	}
	if !opts.Elastic {
		q.reference = make([]float64, len(x))
	}

	var diag Diagnostics
	for it := 1; ; it++ {
		if err := q.place(); err != nil {
			return nil, err
		}
		p, err := q.problem()
		if err != nil {
			return nil, err
		}

		res, err := solver.Solve(ctx, p, x)
		if res != nil {
			diag.Diagnostics = res.Diagnostics
		}
		diag.WrapIterations = it
		if err != nil {
			return q.failed(res, err, diag)
		}
		x = res.X

		if i, fx := q.weakest(x); fx < opts.SingularForce {
			log.Debug("horizontal force below threshold", zap.Int("cable", i), zap.Float64("fx", fx))
			return q.failed(res, &cdpr.ConvergenceError{
				Status:     optim.StatusSingular.String(),
				Iterations: res.Diagnostics.Iterations,
				Residual:   res.Diagnostics.Residual,
				Last:       x,
				Cause:      cdpr.ErrSingularForce,
			}, diag)
		}

		next := q.departureWraps(x)
		change := 0.0
		for i := range next {
			change = math.Max(change, math.Abs(next[i]-q.wrap[i]))
		}
		diag.WrapChange = change
		log.Debug("catenary solve",
			zap.Int("wrap_iteration", it),
			zap.Stringer("status", res.Diagnostics.Status),
			zap.Float64("residual", res.Diagnostics.Residual),
			zap.Float64("wrap_change", change))

		if change < wrapTolerance || it >= iterations {
			return q.result(x, diag), nil
		}
		q.wrap = next
	}
}

// seed solves the pulley kinematics and a force distribution, then projects
// the tensions into each cable plane. The returned state is scaled.
func seed(r *robot.Robot, pose geom.Pose, w []float64, model Model, log *zap.Logger) (*query, []float64, error) {
	kin, dist, err := kinematics.Distribute(r, pose, w)
	if kin == nil {
		return nil, nil, err
	}
	m := r.NumCables()
	tension := make([]float64, m)
	if err != nil {
		if !errors.Is(err, cdpr.ErrInfeasible) {
			return nil, nil, err
		}
		log.Warn("force distribution infeasible, seeding with mid-range tensions", zap.Error(err))
		for i, c := range r.Cables {
			tension[i] = (c.MinForce + c.MaxForce) / 2
		}
	} else {
		copy(tension, dist.Forces)
	}

	q := &query{
		robot:      r,
		pose:       pose,
		wrench:     w,
		model:      model,
		anchors:    make([]r3.Vec, m),
		swivel:     make([]float64, m),
		wrap:       make([]float64, m),
		exits:      make([]r3.Vec, m),
		horizontal: make([]r3.Vec, m),
		spanX:      make([]float64, m),
		spanZ:      make([]float64, m),
	}
	free := make([]float64, m)
	for i, c := range kin.Cables {
		q.anchors[i] = c.Anchor
		q.swivel[i] = c.Wrap.Swivel
		q.wrap[i] = c.Wrap.Wrap
		free[i] = c.Wrap.Free
	}
	if err := q.place(); err != nil {
		return nil, nil, err
	}

	q.forceScale = floats.Sum(tension) / float64(m)
	if q.forceScale <= 0 {
		q.forceScale = 1
	}
	q.lengthScale = math.Max(floats.Sum(free)/float64(m), minSeparation)

	x := make([]float64, 3*m)
	for i, c := range kin.Cables {
		u := c.Wrap.Direction
		t := tension[i]
		l0 := free[i]
		if model.elastic() {
			l0 /= 1 + t/model.Stiffness
		}
		x[3*i] = t * r3.Dot(u, q.horizontal[i]) / q.forceScale
		x[3*i+1] = t * r3.Dot(u, up) / q.forceScale
		x[3*i+2] = l0 / q.lengthScale
	}
	q.reference = append([]float64(nil), x...)
	return q, x, nil
}

// place updates exit points and spans for the current wrap angles.
func (q *query) place() error {
	for i, c := range q.robot.Cables {
		exit := c.Pulley.Position
		if c.Pulley.Radius > 0 {
			exit = pulley.ExitPoint(c.Pulley, q.swivel[i], q.wrap[i])
		}
		d := r3.Sub(exit, q.anchors[i])
		h := r3.Vec{X: d.X, Y: d.Y}
		n := r3.Norm(h)
		if n < minSeparation {
			return &cdpr.ConvergenceError{
				Status: optim.StatusSingular.String(),
				Cause:  fmt.Errorf("cable %d: no horizontal span: %w", i, cdpr.ErrSingularForce),
			}
		}
		q.exits[i] = exit
		q.horizontal[i] = r3.Scale(1/n, h)
		q.spanX[i] = n
		q.spanZ[i] = d.Z
	}
	return nil
}

func (q *query) state(x []float64, i int) (fx, fz, l0 float64) {
	return x[3*i] * q.forceScale, x[3*i+1] * q.forceScale, x[3*i+2] * q.lengthScale
}

func (q *query) unscale(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := 0; i+2 < len(x); i += 3 {
		out[i] = x[i] * q.forceScale
		out[i+1] = x[i+1] * q.forceScale
		out[i+2] = x[i+2] * q.lengthScale
	}
	return out
}

// weakest returns the cable with the smallest horizontal force.
func (q *query) weakest(x []float64) (int, float64) {
	idx, lowest := -1, math.Inf(1)
	for i := range q.robot.Cables {
		if fx, _, _ := q.state(x, i); fx < lowest {
			idx, lowest = i, fx
		}
	}
	return idx, lowest
}

// problem builds the scaled nonlinear program for the current exit points.
func (q *query) problem() (*optim.Problem, error) {
	rb := q.robot
	m := rb.NumCables()
	dim := 3 * m
	fs, ls := q.forceScale, q.lengthScale

	vertical := make([]r3.Vec, m)
	for i := range vertical {
		vertical[i] = up
	}
	ax, err := structure.Build(rb.Pattern, rb.Anchors(), q.horizontal, q.pose.R)
	if err != nil {
		return nil, err
	}
	az, err := structure.Build(rb.Pattern, rb.Anchors(), vertical, q.pose.R)
	if err != nil {
		return nil, err
	}
	rows := rb.Pattern.Rows()
	lin := mat.NewDense(rows, dim, nil)
	rhs := make([]float64, rows)
	for k := range rows {
		for i := range m {
			lin.Set(k, 3*i, ax.At(k, i))
			lin.Set(k, 3*i+1, az.At(k, i))
		}
		rhs[k] = -q.wrench[k] / fs
	}

	lower := make([]float64, dim)
	for i := range m {
		lower[3*i+1] = math.Inf(-1)
	}

	ref := q.reference
	return &optim.Problem{
		Dim: dim,
		Objective: func(x []float64) float64 {
			s := 0.0
			for i, v := range x {
				d := v - ref[i]
				s += d * d
			}
			return s / 2
		},
		ObjectiveGrad: func(grad, x []float64) {
			for i, v := range x {
				grad[i] = v - ref[i]
			}
		},
		ObjectiveHess: func(hess *mat.SymDense, _ []float64) {
			hess.Zero()
			for i := range dim {
				hess.SetSym(i, i, 1)
			}
		},
		LinearEq:  lin,
		LinearRHS: rhs,
		NumEq:     2 * m,
		Eq: func(c, x []float64) {
			for i := range m {
				fx, fz, l0 := q.state(x, i)
				sx, sz := q.model.Span(fx, fz, l0)
				c[2*i] = (sx - q.spanX[i]) / ls
				c[2*i+1] = (sz - q.spanZ[i]) / ls
			}
		},
		EqJac: func(jac *mat.Dense, x []float64) {
			jac.Zero()
			for i := range m {
				fx, fz, l0 := q.state(x, i)
				j := q.model.Jacobian(fx, fz, l0)
				for k := range 2 {
					jac.Set(2*i+k, 3*i, j[k][0]*fs/ls)
					jac.Set(2*i+k, 3*i+1, j[k][1]*fs/ls)
					jac.Set(2*i+k, 3*i+2, j[k][2])
				}
			}
		},
		// both ends within the limits: a cable running down to its pulley
		// is tightest at the anchor, one running up is tightest at the exit
		NumIneq: 4 * m,
		Ineq: func(g, x []float64) {
			for i, c := range rb.Cables {
				fx, fz, l0 := q.state(x, i)
				t0, t1 := q.model.Tensions(fx, fz, l0)
				g[4*i] = (t0 - c.MinForce) / fs
				g[4*i+1] = (c.MaxForce - t0) / fs
				g[4*i+2] = (t1 - c.MinForce) / fs
				g[4*i+3] = (c.MaxForce - t1) / fs
			}
		},
		IneqJac: func(jac *mat.Dense, x []float64) {
			jac.Zero()
			for i := range m {
				fx, fz, l0 := q.state(x, i)
				fx = math.Max(fx, minHorizontal)
				t0, t1 := q.model.Tensions(fx, fz, l0)
				top := fz + q.model.Weight*l0
				dl := q.model.Weight * top / t1 * ls / fs
				jac.Set(4*i, 3*i, fx/t0)
				jac.Set(4*i, 3*i+1, fz/t0)
				jac.Set(4*i+1, 3*i, -fx/t0)
				jac.Set(4*i+1, 3*i+1, -fz/t0)
				jac.Set(4*i+2, 3*i, fx/t1)
				jac.Set(4*i+2, 3*i+1, top/t1)
				jac.Set(4*i+2, 3*i+2, dl)
				jac.Set(4*i+3, 3*i, -fx/t1)
				jac.Set(4*i+3, 3*i+1, -top/t1)
				jac.Set(4*i+3, 3*i+2, -dl)
			}
		},
		Lower: lower,
	}, nil
}

// departureWraps returns, per cable, the wrap angle whose tangent matches the
// catenary leaving the pulley.
func (q *query) departureWraps(x []float64) []float64 {
	out := append([]float64(nil), q.wrap...)
	for i, c := range q.robot.Cables {
		if c.Pulley.Radius == 0 {
			continue
		}
		fx, fz, l0 := q.state(x, i)
		tx, tz := q.model.Tangent(fx, fz, l0)
		// the cable travels from the pulley toward the anchor
		d := r3.Scale(-1, r3.Add(r3.Scale(tx, q.horizontal[i]), r3.Scale(tz, up)))
		out[i] = pulley.WrapFromDeparture(c.Pulley, q.swivel[i], d)
	}
	return out
}

func (q *query) result(x []float64, diag Diagnostics) *Result {
	res := &Result{
		Pose:        q.pose,
		Wrench:      append([]float64(nil), q.wrench...),
		Model:       q.model,
		Cables:      make([]Cable, len(q.robot.Cables)),
		Diagnostics: diag,
	}
	for i, c := range q.robot.Cables {
		fx, fz, l0 := q.state(x, i)
		t0, t1 := q.model.Tensions(fx, fz, l0)
		force := r3.Add(r3.Scale(fx, q.horizontal[i]), r3.Scale(fz, up))
		dir, _ := geom.UnitOrZero(force)
		res.Cables[i] = Cable{
			Index:      i,
			Fx:         fx,
			Fz:         fz,
			Unstrained: l0,
			Length:     l0 + c.Pulley.Radius*q.wrap[i],
			Tension:    t0,
			TopTension: t1,
			Swivel:     q.swivel[i],
			Wrap:       q.wrap[i],
			Anchor:     q.anchors[i],
			Exit:       q.exits[i],
			Horizontal: q.horizontal[i],
			Direction:  dir,
			Pulley:     c.Pulley,
		}
	}
	return res
}

// failed attaches the last iterate to a solver error. The partial result is
// returned alongside so callers can inspect it.
func (q *query) failed(res *optim.Result, err error, diag Diagnostics) (*Result, error) {
	var ce *cdpr.ConvergenceError
	if !errors.As(err, &ce) {
		return nil, err
	}
	if res != nil && res.Diagnostics.Status == optim.StatusSingular && ce.Cause == nil {
		ce.Cause = cdpr.ErrSingularForce
	}
	if res == nil || len(res.X) != 3*len(q.robot.Cables) {
		return nil, err
	}
	if len(ce.Last) == len(res.X) {
		ce.Last = q.unscale(ce.Last)
	}
	return q.result(res.X, diag), err
}
