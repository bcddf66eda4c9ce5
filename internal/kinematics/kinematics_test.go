package kinematics

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/robot"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// squareRobot hangs a point-mass platform from four pulleys on the corners of
// a 2 m square; anchors sit 0.1 m from the platform centre toward each pulley.
func squareRobot(radius float64) *robot.Robot {
	corners := [][2]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	r := &robot.Robot{Name: "square", Pattern: cdpr.Pattern3T}
	for _, c := range corners {
		r.Cables = append(r.Cables, robot.Cable{
			Pulley:   robot.Pulley{Position: r3.Vec{X: c[0], Y: c[1]}, Orientation: geom.Identity(), Radius: radius},
			Anchor:   r3.Vec{X: (c[0] - 1) / 10, Y: (c[1] - 1) / 10, Z: 0.5},
			MinForce: 10,
			MaxForce: 1000,
		})
	}
	return r
}

func TestStraightLengths(t *testing.T) {
	res, err := Straight(squareRobot(0.05), geom.At(1, 1, -1.5))
	if err != nil {
		t.Fatal(err)
	}
	want := math.Sqrt(2.62)
	for i, l := range res.Lengths() {
		if math.Abs(l-want) > 1e-12 {
			t.Errorf("cable %d: length %v, want %v", i, l, want)
		}
	}
	for i, c := range res.Cables {
		if c.Wrap.Wrap != 0 || c.Wrap.Exit != c.Pulley.Position {
			t.Errorf("cable %d: straight cable should leave from the pulley point", i)
		}
	}
}

func TestPulleyAngles(t *testing.T) {
	r := squareRobot(0.05)
	res, err := Pulleys(r, geom.At(1, 1, -1.5))
	if err != nil {
		t.Fatal(err)
	}
	straight, err := Straight(r, geom.At(1, 1, -1.5))
	if err != nil {
		t.Fatal(err)
	}

	angles := res.Angles()
	wantSwivel := []float64{45, 135, 225, 315}
	for i, want := range wantSwivel {
		if got := geom.ToDeg(angles.At(0, i)); math.Abs(got-want) > 1e-9 {
			t.Errorf("cable %d: swivel %v deg, want %v", i, got, want)
		}
		if math.Abs(angles.At(1, i)-angles.At(1, 0)) > 1e-12 {
			t.Errorf("symmetric cables should share the wrap angle")
		}
	}

	lp, ls := res.Lengths(), straight.Lengths()
	for i := range lp {
		if lp[i] < ls[i] || lp[i]-ls[i] > 2*math.Pi*0.05 {
			t.Errorf("cable %d: pulley length %v vs straight %v", i, lp[i], ls[i])
		}
	}

	u := res.UnitVectors()
	for i := range r.Cables {
		col := []float64{u.At(0, i), u.At(1, i), u.At(2, i)}
		if math.Abs(floats.Norm(col, 2)-1) > 1e-12 {
			t.Errorf("cable %d: unit vector norm %v", i, floats.Norm(col, 2))
		}
		if col[2] <= 0 {
			t.Errorf("cable %d: pulleys are above the platform, got %v", i, col)
		}
	}
}

func TestZeroRadiusMatchesStraight(t *testing.T) {
	r := squareRobot(0)
	pose, err := geom.NewPose(r3.Vec{X: 0.8, Y: 1.3, Z: -1.2}, geom.Euler{Roll: 0.1, Pitch: -0.05, Yaw: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	a, err := Pulleys(r, pose)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Straight(r, pose)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(a.Lengths(), b.Lengths(), 1e-15) {
		t.Errorf("lengths differ: %v vs %v", a.Lengths(), b.Lengths())
	}
}

func TestDistribute(t *testing.T) {
	r := squareRobot(0.05)
	res, d, err := Distribute(r, geom.At(1, 1, -1.5), []float64{0, 0, -50, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	for i, f := range d.Forces {
		if math.Abs(f-d.Forces[0]) > 1e-9 {
			t.Errorf("cable %d: force %v differs from %v", i, f, d.Forces[0])
		}
	}
	uz := res.UnitVectors().At(2, 0)
	if want := 50 / (4 * uz); math.Abs(d.Forces[0]-want) > 1e-9 {
		t.Errorf("force = %v, want %v", d.Forces[0], want)
	}
	// the exit point sits r(1-cos β) toward the anchor and r·sin β below the
	// pulley, so the cable is steeper than the 20.23 N straight line
	if math.Abs(d.Forces[0]-20.551063542311) > 1e-6 {
		t.Errorf("force = %v, want 20.551063542311", d.Forces[0])
	}

	a, err := res.Structure(r)
	if err != nil {
		t.Fatal(err)
	}
	if resid := d.Residual(a, []float64{0, 0, -50}); resid > 1e-9 {
		t.Errorf("equilibrium residual %v", resid)
	}
}

func TestGeometryErrorsNameTheCable(t *testing.T) {
	r := squareRobot(0.05)
	r.Cables[2].Pulley.Radius = 5

	_, err := Pulleys(r, geom.At(1, 1, -1.5))
	var ge *cdpr.GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GeometryError, got %v", err)
	}
	if ge.Cable != 2 {
		t.Errorf("error names cable %d, want 2", ge.Cable)
	}

	_, err = Pulleys(squareRobot(0.05), geom.Pose{Position: r3.Vec{}, R: geom.Mat3{1, 0, 0, 0, 2, 0, 0, 0, 1}})
	if !errors.Is(err, cdpr.ErrInvalidGeometry) {
		t.Errorf("bad rotation: expected ErrInvalidGeometry, got %v", err)
	}
}
