// Package kinematics solves the inverse kinematics of a cable robot with
// massless, inextensible cables: straight lines from the platform anchors to
// the pulleys, optionally wrapping around pulleys of finite radius.
package kinematics

import (
	"errors"

	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/forcedist"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/pulley"
	"github.com/san-kum/cablekin/internal/robot"
	"github.com/san-kum/cablekin/internal/structure"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cable is the solved geometry of one cable.
type Cable struct {
	Index  int
	Anchor r3.Vec // world frame
	Pulley robot.Pulley
	Wrap   pulley.Wrap
}

type Result struct {
	Pose   geom.Pose
	Cables []Cable
}

// Straight ignores pulley radii: every cable runs from its anchor straight to
// the pulley reference point. It is used to seed the catenary solver.
func Straight(r *robot.Robot, pose geom.Pose) (*Result, error) {
	return solve(r, pose, true)
}

// Pulleys solves swivel, wrap and length for every cable.
func Pulleys(r *robot.Robot, pose geom.Pose) (*Result, error) {
	return solve(r, pose, false)
}

func solve(r *robot.Robot, pose geom.Pose, straight bool) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !pose.R.IsRotation(1e-6) {
		return nil, cdpr.Geometryf(-1, "orientation", "platform rotation is not orthonormal")
	}

	res := &Result{Pose: pose, Cables: make([]Cable, r.NumCables())}
	err := cdpr.ForEachCable(r.NumCables(), func(i int) error {
		c := r.Cables[i]
		p := c.Pulley
		if straight {
			p.Radius = 0
		}
		anchor := pose.Transform(c.Anchor)
		w, err := pulley.Solve(p, anchor)
		if err != nil {
			return withCable(err, i)
		}
		res.Cables[i] = Cable{Index: i, Anchor: anchor, Pulley: c.Pulley, Wrap: w}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// withCable tags a geometry error with the cable it came from.
func withCable(err error, i int) error {
	var ge *cdpr.GeometryError
	if errors.As(err, &ge) && ge.Cable < 0 {
		ge.Cable = i
	}
	return err
}

// Lengths returns the total cable lengths, arc included.
func (r *Result) Lengths() []float64 {
	out := make([]float64, len(r.Cables))
	for i, c := range r.Cables {
		out[i] = c.Wrap.Length
	}
	return out
}

// UnitVectors returns the 3×M matrix of unit vectors from each anchor toward
// its pulley exit point.
func (r *Result) UnitVectors() *mat.Dense {
	u := mat.NewDense(3, len(r.Cables), nil)
	for i, c := range r.Cables {
		d := c.Wrap.Direction
		u.Set(0, i, d.X)
		u.Set(1, i, d.Y)
		u.Set(2, i, d.Z)
	}
	return u
}

// Angles returns the 2×M matrix of swivel (row 0) and wrap (row 1) angles in
// radians.
func (r *Result) Angles() *mat.Dense {
	a := mat.NewDense(2, len(r.Cables), nil)
	for i, c := range r.Cables {
		a.Set(0, i, c.Wrap.Swivel)
		a.Set(1, i, c.Wrap.Wrap)
	}
	return a
}

// Structure builds the structure matrix of this solution.
func (r *Result) Structure(rb *robot.Robot) (*mat.Dense, error) {
	dirs := make([]r3.Vec, len(r.Cables))
	for i, c := range r.Cables {
		dirs[i] = c.Wrap.Direction
	}
	return structure.Build(rb.Pattern, rb.Anchors(), dirs, r.Pose.R)
}

// Distribute solves the pulley kinematics and a force distribution that
// balances wrench, given with 6 or pattern.Rows() components.
func Distribute(r *robot.Robot, pose geom.Pose, wrench []float64) (*Result, *forcedist.Distribution, error) {
	res, err := Pulleys(r, pose)
	if err != nil {
		return nil, nil, err
	}
	a, err := res.Structure(r)
	if err != nil {
		return nil, nil, err
	}
	w, err := r.Pattern.Project(wrench)
	if err != nil {
		return nil, nil, err
	}
	min, max := r.Bounds()
	d, err := forcedist.Distribute(w, a, forcedist.Bounds{Min: min, Max: max})
	if err != nil {
		return res, nil, err
	}
	return res, d, nil
}
