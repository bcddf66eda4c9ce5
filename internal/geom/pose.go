package geom

import (
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a platform position and its rotation matrix.
type Pose struct {
	Position r3.Vec
	R        Mat3
}

// NewPose resolves an orientation encoding. A nil orientation is the identity.
func NewPose(position r3.Vec, o Orientation) (Pose, error) {
	if !finite(position.X, position.Y, position.Z) {
		return Pose{}, cdpr.Geometryf(-1, "position", "non-finite %v", position)
	}
	if o == nil {
		return Pose{Position: position, R: Identity()}, nil
	}
	r, err := o.Rotation()
	if err != nil {
		return Pose{}, err
	}
	return Pose{Position: position, R: r}, nil
}

// At is a pose with identity orientation.
func At(x, y, z float64) Pose {
	return Pose{Position: r3.Vec{X: x, Y: y, Z: z}, R: Identity()}
}

// Transform maps a platform-frame point into the world frame.
func (p Pose) Transform(b r3.Vec) r3.Vec {
	return r3.Add(p.Position, p.R.Apply(b))
}

// Arm returns R·b, the world-frame moment arm of a platform point.
func (p Pose) Arm(b r3.Vec) r3.Vec {
	return p.R.Apply(b)
}

// Vec builds a vector from a 3-slice.
func Vec(v []float64) (r3.Vec, error) {
	if len(v) != 3 {
		return r3.Vec{}, cdpr.Geometryf(-1, "vector", "expected 3 values, got %d", len(v))
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// UnitOrZero normalizes v, returning the zero vector and false when |v| is
// too small to define a direction.
func UnitOrZero(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if n < 1e-300 || math.IsNaN(n) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}
