// Package robot describes a cable-driven parallel robot: its pulleys, cables,
// cable material and force limits.
package robot

import (
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r3"
)

// StandardGravity is used when a robot leaves Gravity unset.
const StandardGravity = 9.81

// Pulley is a swiveling pulley fixed to the frame. The cable enters at
// Position along the local z-axis; Radius 0 is an ideal point pulley.
type Pulley struct {
	Position    r3.Vec
	Orientation geom.Mat3
	Radius      float64
}

// Cable joins one pulley to one platform anchor given in the platform frame.
type Cable struct {
	Pulley   Pulley
	Anchor   r3.Vec
	MinForce float64
	MaxForce float64
}

// Material holds the properties used by the catenary model.
type Material struct {
	Density      float64 // kg/m
	CrossSection float64 // m²
	Young        float64 // Pa
}

// Weight returns the cable weight per unit length.
func (m Material) Weight(g float64) float64 {
	return m.Density * g
}

// Stiffness returns the axial stiffness EA.
func (m Material) Stiffness() float64 {
	return m.Young * m.CrossSection
}

func (m Material) Validate() error {
	var err error
	check := func(field string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			multierr.AppendInto(&err, cdpr.Geometryf(-1, "material."+field, "must be finite and > 0, got %g", v))
		}
	}
	check("density", m.Density)
	check("cross_section", m.CrossSection)
	check("young", m.Young)
	return err
}

type Robot struct {
	Name     string
	Pattern  cdpr.MotionPattern
	Cables   []Cable
	Material *Material
	Gravity  float64
}

// NumCables returns M.
func (r *Robot) NumCables() int {
	return len(r.Cables)
}

// G returns the gravitational acceleration, defaulting to StandardGravity.
func (r *Robot) G() float64 {
	if r.Gravity == 0 {
		return StandardGravity
	}
	return r.Gravity
}

// Anchors returns the platform-frame attachment points in cable order.
func (r *Robot) Anchors() []r3.Vec {
	out := make([]r3.Vec, len(r.Cables))
	for i, c := range r.Cables {
		out[i] = c.Anchor
	}
	return out
}

// Bounds returns the per-cable force limits.
func (r *Robot) Bounds() (min, max []float64) {
	min = make([]float64, len(r.Cables))
	max = make([]float64, len(r.Cables))
	for i, c := range r.Cables {
		min[i] = c.MinForce
		max[i] = c.MaxForce
	}
	return min, max
}

// Validate reports every geometry problem at once. The returned error
// unwraps to cdpr.ErrInvalidGeometry.
func (r *Robot) Validate() error {
	var err error
	if len(r.Cables) == 0 {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "cables", "robot has no cables"))
	}
	if r.Pattern.Rows() == 0 {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "pattern", "unknown motion pattern %d", int(r.Pattern)))
	}
	if g := r.G(); g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
		multierr.AppendInto(&err, cdpr.Geometryf(-1, "gravity", "must be finite and >= 0, got %g", g))
	}
	for i, c := range r.Cables {
		multierr.AppendInto(&err, c.validate(i))
	}
	if r.Material != nil {
		multierr.AppendInto(&err, r.Material.Validate())
	}
	return err
}

func (c Cable) validate(i int) error {
	var err error
	p := c.Pulley
	if !finiteVec(p.Position) {
		multierr.AppendInto(&err, cdpr.Geometryf(i, "pulley.position", "non-finite %v", p.Position))
	}
	if !finiteVec(c.Anchor) {
		multierr.AppendInto(&err, cdpr.Geometryf(i, "anchor", "non-finite %v", c.Anchor))
	}
	if math.IsNaN(p.Radius) || math.IsInf(p.Radius, 0) || p.Radius < 0 {
		multierr.AppendInto(&err, cdpr.Geometryf(i, "pulley.radius", "must be finite and >= 0, got %g", p.Radius))
	}
	if !p.Orientation.IsRotation(1e-6) {
		multierr.AppendInto(&err, cdpr.Geometryf(i, "pulley.orientation", "not a rotation matrix"))
	}
	if c.MinForce < 0 || c.MaxForce < c.MinForce || math.IsNaN(c.MinForce) || math.IsNaN(c.MaxForce) {
		multierr.AppendInto(&err, cdpr.Geometryf(i, "force_limits", "need 0 <= min <= max, got [%g, %g]", c.MinForce, c.MaxForce))
	}
	return err
}

func finiteVec(v r3.Vec) bool {
	for _, x := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
