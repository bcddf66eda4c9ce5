package catenary

import (
	"math"
)

// minHorizontal floors the horizontal force inside the shape equations so
// asinh arguments stay finite; states this small are rejected after solving.
const minHorizontal = 1e-12

// Model is the elastic catenary of a single cable in its vertical plane.
// Forces are those the cable exerts on the platform at the anchor: Fx is
// horizontal toward the pulley, Fz vertical and positive upward.
type Model struct {
	Weight    float64 // q = ρg, N/m; 0 means weightless
	Stiffness float64 // EA in N; 0 means inextensible
}

func (m Model) elastic() bool {
	return m.Stiffness > 0
}

// asinhDiff returns asinh(a+d) - asinh(a) without cancellation.
func asinhDiff(a, d float64) float64 {
	if d < 0 {
		return -asinhDiff(a+d, -d)
	}
	b := a + d
	switch {
	case a >= 0:
		sa, sb := math.Hypot(1, a), math.Hypot(1, b)
		return math.Log1p(d * (1 + (a+b)/(sa+sb)) / (a + sa))
	case b <= 0:
		return asinhDiff(-b, d)
	default:
		return math.Asinh(b) + math.Asinh(-a)
	}
}

// Point returns the position (x horizontal, z vertical) of the material point
// at unstrained arc length s from the anchor.
func (m Model) Point(fx, fz, s float64) (x, z float64) {
	fx = math.Max(fx, minHorizontal)
	q := m.Weight
	w := q * s
	t0 := math.Hypot(fx, fz)
	ts := math.Hypot(fx, fz+w)

	if q == 0 {
		x = fx * s / t0
	} else {
		x = fx / q * asinhDiff(fz/fx, w/fx)
	}
	z = s * (2*fz + w) / (t0 + ts)

	if m.elastic() {
		x += fx * s / m.Stiffness
		z += (fz*s + q*s*s/2) / m.Stiffness
	}
	return x, z
}

// Span returns the displacement from the anchor to the far end of a cable of
// unstrained length l0.
func (m Model) Span(fx, fz, l0 float64) (x, z float64) {
	return m.Point(fx, fz, l0)
}

// Tensions returns the tension at the anchor and at the far end.
func (m Model) Tensions(fx, fz, l0 float64) (t0, t1 float64) {
	fx = math.Max(fx, minHorizontal)
	return math.Hypot(fx, fz), math.Hypot(fx, fz+m.Weight*l0)
}

// Tangent returns the unit direction of the cable at arc length s, pointing
// away from the anchor.
func (m Model) Tangent(fx, fz, s float64) (dx, dz float64) {
	fx = math.Max(fx, minHorizontal)
	v := fz + m.Weight*s
	t := math.Hypot(fx, v)
	return fx / t, v / t
}

// Jacobian returns the partial derivatives of Span:
//
//	[∂x/∂Fx ∂x/∂Fz ∂x/∂L0]
//	[∂z/∂Fx ∂z/∂Fz ∂z/∂L0]
//
// written so that none of them divides by q.
func (m Model) Jacobian(fx, fz, l0 float64) [2][3]float64 {
	fx = math.Max(fx, minHorizontal)
	q := m.Weight
	w := q * l0
	t0 := math.Hypot(fx, fz)
	t1 := math.Hypot(fx, fz+w)
	sum := t0 + t1

	var xInel float64
	if q == 0 {
		xInel = fx * l0 / t0
	} else {
		xInel = fx / q * asinhDiff(fz/fx, w/fx)
	}

	g := l0 * (t0 - fz*(2*fz+w)/sum) / (t0 * t1)
	cross := -fx * l0 * (2*fz + w) / (sum * t0 * t1)

	j := [2][3]float64{
		{xInel/fx - g, cross, fx / t1},
		{cross, g, (fz + w) / t1},
	}
	if m.elastic() {
		ea := m.Stiffness
		j[0][0] += l0 / ea
		j[0][2] += fx / ea
		j[1][1] += l0 / ea
		j[1][2] += (fz + q*l0) / ea
	}
	return j
}
