// Package shape samples solved cables as world-frame polylines for plotting
// and export.
package shape

import (
	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/pulley"
	"github.com/san-kum/cablekin/internal/robot"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sample returns the cable from the pulley reference point to the platform
// anchor: n points on the pulley arc followed by n points on the catenary.
// The arc is skipped for point pulleys.
func Sample(c catenary.Cable, m catenary.Model, n int) ([]r3.Vec, error) {
	if n < 2 {
		return nil, cdpr.Geometryf(c.Index, "samples", "need at least 2 samples, got %d", n)
	}
	pts := arc(c.Pulley, pulley.Plane(c.Pulley, c.Swivel), c.Wrap, n)

	// the catenary is parameterised from the anchor; walk it backwards
	span := make([]r3.Vec, n)
	for i := range n {
		s := c.Unstrained * float64(i) / float64(n-1)
		x, z := m.Point(c.Fx, c.Fz, s)
		span[n-1-i] = r3.Add(c.Anchor, r3.Add(r3.Scale(x, c.Horizontal), r3.Vec{Z: z}))
	}
	// end points are the solved ones, not the re-integrated ones
	span[0] = c.Exit
	span[n-1] = c.Anchor
	if len(pts) > 0 {
		span = span[1:]
	}
	return append(pts, span...), nil
}

// Straight samples a massless cable: the pulley arc, then the straight
// segment to the anchor.
func Straight(c kinematics.Cable, n int) ([]r3.Vec, error) {
	if n < 2 {
		return nil, cdpr.Geometryf(c.Index, "samples", "need at least 2 samples, got %d", n)
	}
	w := c.Wrap
	pts := arc(c.Pulley, w.Plane, w.Wrap, n)
	if len(pts) == 0 {
		pts = append(pts, w.Exit)
	}
	return append(pts, c.Anchor), nil
}

func arc(p robot.Pulley, plane geom.Mat3, beta float64, n int) []r3.Vec {
	if p.Radius == 0 {
		return nil
	}
	pts := make([]r3.Vec, n)
	for i := range n {
		pts[i] = pulley.ArcPoint(p, plane, beta*float64(i)/float64(n-1))
	}
	return pts
}

// Length returns the polyline length.
func Length(pts []r3.Vec) float64 {
	l := 0.0
	for i := 1; i < len(pts); i++ {
		l += r3.Norm(r3.Sub(pts[i], pts[i-1]))
	}
	return l
}

// Bounds returns the axis-aligned box around all polylines.
func Bounds(lines ...[]r3.Vec) (lo, hi r3.Vec) {
	first := true
	for _, l := range lines {
		for _, p := range l {
			if first {
				lo, hi = p, p
				first = false
				continue
			}
			lo = r3.Vec{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
			hi = r3.Vec{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
		}
	}
	return lo, hi
}
