// Package structure builds the structure matrix of a cable robot: the linear
// map from cable tensions to the wrench they exert on the platform.
package structure

import (
	"math"

	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// unitTolerance decides when a direction is already unit length.
const unitTolerance = 1e-12

// Build returns the pattern.Rows()×M structure matrix. Column i is
// [u_i ; (R·b_i) × u_i] restricted to the pattern's rows, where b_i are the
// platform-frame attachments and u_i the cable directions, normalized here if
// needed.
func Build(pattern cdpr.MotionPattern, attachments, unitVectors []r3.Vec, rot geom.Mat3) (*mat.Dense, error) {
	m := len(unitVectors)
	if len(attachments) != m {
		return nil, cdpr.Geometryf(-1, "structure", "%d attachments for %d unit vectors", len(attachments), m)
	}
	if m == 0 {
		return nil, cdpr.Geometryf(-1, "structure", "no cables")
	}
	rows := pattern.Indices()
	if len(rows) == 0 {
		return nil, cdpr.Geometryf(-1, "pattern", "unknown motion pattern %d", int(pattern))
	}

	a := mat.NewDense(len(rows), m, nil)
	err := cdpr.ForEachCable(m, func(i int) error {
		u := unitVectors[i]
		n := r3.Norm(u)
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return cdpr.Geometryf(i, "unit_vector", "cannot normalize %v", u)
		}
		if math.Abs(n-1) > unitTolerance {
			u = r3.Scale(1/n, u)
		}
		full := column(u, rot.Apply(attachments[i]))
		for r, k := range rows {
			a.Set(r, i, full[k])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// column returns the full 6-row wrench of a unit tension along u applied at arm.
func column(u, arm r3.Vec) [6]float64 {
	m := geom.Skew(arm).Apply(u)
	return [6]float64{u.X, u.Y, u.Z, m.X, m.Y, m.Z}
}

// Wrench returns A·f.
func Wrench(a mat.Matrix, f []float64) []float64 {
	r, _ := a.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(a, mat.NewVecDense(len(f), append([]float64(nil), f...)))
	return out.RawVector().Data
}

// NullSpace returns an orthonormal basis of the null space of a as the
// columns of an M×k matrix. k is zero when a has full column rank.
func NullSpace(a mat.Matrix) (*mat.Dense, error) {
	rows, cols := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, cdpr.Geometryf(-1, "structure", "singular value decomposition failed")
	}
	values := svd.Values(nil)
	tol := float64(max(rows, cols)) * 0x1p-52
	if len(values) > 0 {
		tol *= values[0]
	}
	rank := 0
	for _, s := range values {
		if s > tol {
			rank++
		}
	}

	var v mat.Dense
	svd.VTo(&v)
	k := cols - rank
	if k == 0 {
		return &mat.Dense{}, nil
	}
	basis := mat.NewDense(cols, k, nil)
	basis.Copy(v.Slice(0, cols, rank, cols))
	return basis, nil
}

// Rank returns the numerical rank of a.
func Rank(a mat.Matrix) int {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return 0
	}
	rows, cols := a.Dims()
	tol := float64(max(rows, cols)) * 0x1p-52 * values[0]
	rank := 0
	for _, s := range values {
		if s > tol {
			rank++
		}
	}
	return rank
}
