// Package pulley solves the closed-form geometry of a cable wrapping around a
// swiveling pulley of finite radius.
//
// The pulley frame has its swivel axis along local z. The cable reaches the
// pulley reference point travelling along -z, wraps around a circle of radius r
// whose centre sits at distance r along the swiveled x-axis, and leaves it on
// the tangent that passes through the platform anchor.
package pulley

import (
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/robot"
	"gonum.org/v1/gonum/spatial/r3"
)

// Wrap is the solved geometry of one cable at one pulley. Angles are radians.
type Wrap struct {
	Swivel    float64 // γ in [0, 2π)
	Wrap      float64 // β in [0, 2π)
	Exit      r3.Vec  // world point where the cable leaves the pulley
	Free      float64 // straight length from Exit to the anchor
	Length    float64 // Free + r·β
	Direction r3.Vec  // unit vector from the anchor toward Exit
	Plane     geom.Mat3
	Center    r3.Vec
}

// Solve computes swivel, wrap, exit point and free length for the platform
// anchor given in world coordinates.
func Solve(p robot.Pulley, anchor r3.Vec) (Wrap, error) {
	v := p.Orientation.ApplyT(r3.Sub(anchor, p.Position))
	swivel := geom.WrapAngle(math.Atan2(v.Y, v.X))
	plane := Plane(p, swivel)

	if p.Radius == 0 {
		free := r3.Norm(v)
		dir, ok := geom.UnitOrZero(r3.Sub(p.Position, anchor))
		if !ok {
			return Wrap{}, cdpr.Geometryf(-1, "anchor", "coincides with the pulley at %v", p.Position)
		}
		return Wrap{
			Swivel:    swivel,
			Exit:      p.Position,
			Free:      free,
			Length:    free,
			Direction: dir,
			Plane:     plane,
			Center:    p.Position,
		}, nil
	}
	if p.Radius < 0 || math.IsNaN(p.Radius) {
		return Wrap{}, cdpr.Geometryf(-1, "pulley.radius", "must be >= 0, got %g", p.Radius)
	}

	// anchor relative to the circle centre, in the cable plane
	r := p.Radius
	dx := math.Hypot(v.X, v.Y) - r
	dz := v.Z
	d := math.Hypot(dx, dz)
	if d <= r {
		return Wrap{}, cdpr.Geometryf(-1, "anchor", "inside pulley circle (distance %g, radius %g)", d, r)
	}
	free := math.Sqrt((d - r) * (d + r))
	beta := geom.WrapAngle(math.Atan2(dz, dx) + math.Atan2(free, -r))

	exit := ExitPoint(p, swivel, beta)
	dir, ok := geom.UnitOrZero(r3.Sub(exit, anchor))
	if !ok {
		return Wrap{}, cdpr.Geometryf(-1, "anchor", "coincides with the exit point %v", exit)
	}

	return Wrap{
		Swivel:    swivel,
		Wrap:      beta,
		Exit:      exit,
		Free:      free,
		Length:    free + r*beta,
		Direction: dir,
		Plane:     plane,
		Center:    r3.Add(p.Position, plane.Apply(r3.Vec{X: r})),
	}, nil
}

// Plane returns the world rotation of the cable-plane frame for a swivel angle:
// x toward the anchor, z along the swivel axis.
func Plane(p robot.Pulley, swivel float64) geom.Mat3 {
	return p.Orientation.Mul(geom.Rz(swivel)).Clean()
}

// ExitPoint returns the world point reached after wrapping beta radians.
func ExitPoint(p robot.Pulley, swivel, beta float64) r3.Vec {
	s, c := math.Sincos(beta)
	local := r3.Vec{X: p.Radius * (1 - c), Z: -p.Radius * s}
	return r3.Add(p.Position, Plane(p, swivel).Apply(local))
}

// ArcPoint returns the world point after wrapping t radians, 0 <= t <= beta.
func ArcPoint(p robot.Pulley, plane geom.Mat3, t float64) r3.Vec {
	s, c := math.Sincos(t)
	return r3.Add(p.Position, plane.Apply(r3.Vec{X: p.Radius * (1 - c), Z: -p.Radius * s}))
}

// WrapFromDeparture returns the wrap angle at which the circle's tangent
// matches d, the world direction the cable travels after leaving the pulley.
// Only the in-plane components of d are used.
func WrapFromDeparture(p robot.Pulley, swivel float64, d r3.Vec) float64 {
	local := Plane(p, swivel).ApplyT(d)
	return geom.WrapAngle(math.Atan2(local.X, -local.Z))
}
