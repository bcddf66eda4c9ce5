package cdpr

import (
	"fmt"
	"strings"
)

// MotionPattern selects the platform degrees of freedom a robot controls.
type MotionPattern int

const (
	// Pattern3R3T is the general spatial robot: 3 forces and 3 torques.
	Pattern3R3T MotionPattern = iota
	// Pattern3T is a spatial point mass: 3 forces.
	Pattern3T
	// Pattern1R2T is a planar robot: forces along x and y, torque about z.
	Pattern1R2T
	// Pattern2T is a planar point mass: forces along x and y.
	Pattern2T
)

// wrench row indices used by each pattern, in matrix row order
var patternRows = map[MotionPattern][]int{
	Pattern3R3T: {0, 1, 2, 3, 4, 5},
	Pattern3T:   {0, 1, 2},
	Pattern1R2T: {0, 1, 5},
	Pattern2T:   {0, 1},
}

var patternNames = map[MotionPattern]string{
	Pattern3R3T: "3R3T",
	Pattern3T:   "3T",
	Pattern1R2T: "1R2T",
	Pattern2T:   "2T",
}

func (p MotionPattern) String() string {
	if name, ok := patternNames[p]; ok {
		return name
	}
	return fmt.Sprintf("MotionPattern(%d)", int(p))
}

// Rows returns the number of structure matrix rows.
func (p MotionPattern) Rows() int {
	return len(patternRows[p])
}

// Indices returns which components of a 6-wrench the pattern keeps.
func (p MotionPattern) Indices() []int {
	idx := patternRows[p]
	out := make([]int, len(idx))
	copy(out, idx)
	return out
}

// Project keeps the pattern's components of a full 6-wrench. Wrenches that
// already have Rows() components are returned as a copy.
func (p MotionPattern) Project(w []float64) ([]float64, error) {
	idx, ok := patternRows[p]
	if !ok {
		return nil, Geometryf(-1, "pattern", "unknown motion pattern %d", int(p))
	}
	if len(w) == len(idx) {
		out := make([]float64, len(w))
		copy(out, w)
		return out, nil
	}
	if len(w) != 6 {
		return nil, Geometryf(-1, "wrench", "expected 6 or %d components, got %d", len(idx), len(w))
	}
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = w[j]
	}
	return out, nil
}

// ParseMotionPattern accepts the names printed by String, case-insensitively.
func ParseMotionPattern(s string) (MotionPattern, error) {
	for p, name := range patternNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return 0, Geometryf(-1, "pattern", "unknown motion pattern %q", s)
}
