package geom

import (
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"gonum.org/v1/gonum/num/quat"
)

// rotationTolerance bounds orthonormality error accepted from matrix input.
const rotationTolerance = 1e-6

// Orientation is one of the accepted pose encodings: Euler, Quaternion or
// Matrix. It is resolved into a rotation matrix once, at the boundary.
type Orientation interface {
	Rotation() (Mat3, error)
}

// Euler holds roll, pitch and yaw in radians, applied as Rz(yaw)·Ry(pitch)·Rx(roll).
type Euler struct {
	Roll, Pitch, Yaw float64
}

func (e Euler) Rotation() (Mat3, error) {
	if !finite(e.Roll, e.Pitch, e.Yaw) {
		return Mat3{}, cdpr.Geometryf(-1, "euler", "non-finite angle %v", e)
	}
	return Rz(e.Yaw).Mul(Ry(e.Pitch)).Mul(Rx(e.Roll)).Clean(), nil
}

// Quaternion is a rotation quaternion w + xi + yj + zk. It need not be unit
// length; it is normalized before conversion.
type Quaternion struct {
	W, X, Y, Z float64
}

func (q Quaternion) Rotation() (Mat3, error) {
	n := quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
	abs := quat.Abs(n)
	if abs == 0 || math.IsNaN(abs) || math.IsInf(abs, 0) {
		return Mat3{}, cdpr.Geometryf(-1, "quaternion", "cannot normalize %v", q)
	}
	n = quat.Scale(1/abs, n)
	w, x, y, z := n.Real, n.Imag, n.Jmag, n.Kmag

	return Mat3{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}.Clean(), nil
}

// Matrix is a rotation matrix flattened row-major.
type Matrix [9]float64

func (m Matrix) Rotation() (Mat3, error) {
	r := Mat3(m)
	if !finite(r[:]...) {
		return Mat3{}, cdpr.Geometryf(-1, "matrix", "non-finite entry")
	}
	if !r.IsRotation(rotationTolerance) {
		return Mat3{}, cdpr.Geometryf(-1, "matrix", "not orthonormal with det +1 (det %.6g)", r.Det())
	}
	return r.Clean(), nil
}

// FromSlice picks the encoding by length: 3 Euler angles, 4 quaternion
// components (w, x, y, z) or 9 matrix entries.
func FromSlice(v []float64) (Orientation, error) {
	switch len(v) {
	case 3:
		return Euler{Roll: v[0], Pitch: v[1], Yaw: v[2]}, nil
	case 4:
		return Quaternion{W: v[0], X: v[1], Y: v[2], Z: v[3]}, nil
	case 9:
		var m Matrix
		copy(m[:], v)
		return m, nil
	default:
		return nil, cdpr.Geometryf(-1, "orientation", "expected 3, 4 or 9 values, got %d", len(v))
	}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Deg converts degrees to radians.
func Deg(d float64) float64 { return d * math.Pi / 180 }

// ToDeg converts radians to degrees.
func ToDeg(r float64) float64 { return r * 180 / math.Pi }

// WrapAngle maps an angle into [0, 2π).
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}
