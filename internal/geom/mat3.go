package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mat3 is a 3×3 matrix stored row-major.
type Mat3 [9]float64

// Identity returns the 3×3 identity.
func Identity() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func (m Mat3) At(i, j int) float64 {
	return m[3*i+j]
}

// Apply returns m·v.
func (m Mat3) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// ApplyT returns mᵀ·v, the inverse rotation for orthonormal m.
func (m Mat3) ApplyT(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[3]*v.Y + m[6]*v.Z,
		Y: m[1]*v.X + m[4]*v.Y + m[7]*v.Z,
		Z: m[2]*v.X + m[5]*v.Y + m[8]*v.Z,
	}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = m[3*i]*n[j] + m[3*i+1]*n[3+j] + m[3*i+2]*n[6+j]
		}
	}
	return out
}

func (m Mat3) T() Mat3 {
	return Mat3{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Col returns column j as a vector.
func (m Mat3) Col(j int) r3.Vec {
	return r3.Vec{X: m[j], Y: m[3+j], Z: m[6+j]}
}

// Dense copies m into a gonum matrix.
func (m Mat3) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, m[:])
	return mat.NewDense(3, 3, data)
}

// Clean clamps entries below machine epsilon to exactly zero so repeated
// compositions do not accumulate trig noise.
func (m Mat3) Clean() Mat3 {
	for i, v := range m {
		if math.Abs(v) < epsilon {
			m[i] = 0
		}
	}
	return m
}

// IsRotation reports whether m is orthonormal with det +1 within tol.
func (m Mat3) IsRotation(tol float64) bool {
	p := m.Mul(m.T())
	id := Identity()
	for i := range p {
		if math.Abs(p[i]-id[i]) > tol {
			return false
		}
	}
	return math.Abs(m.Det()-1) <= tol
}

const epsilon = 0x1p-52

// Skew returns the cross-product operator of v: Skew(v).Apply(u) == v × u.
func Skew(v r3.Vec) Mat3 {
	return Mat3{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	}
}

// Rx is a rotation by angle radians about x.
func Rx(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{1, 0, 0, 0, c, -s, 0, s, c}.Clean()
}

// Ry is a rotation by angle radians about y.
func Ry(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{c, 0, s, 0, 1, 0, -s, 0, c}.Clean()
}

// Rz is a rotation by angle radians about z.
func Rz(angle float64) Mat3 {
	s, c := math.Sincos(angle)
	return Mat3{c, -s, 0, s, c, 0, 0, 0, 1}.Clean()
}
