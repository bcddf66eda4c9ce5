package catenary_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/config"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/robot"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// squareRobot hangs a point-mass platform from four pulleys on the corners of
// a 2 m square.
func squareRobot(radius, density float64) *robot.Robot {
	corners := [][2]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	r := &robot.Robot{
		Name:     "square",
		Pattern:  cdpr.Pattern3T,
		Material: &robot.Material{Density: density, CrossSection: 1e-6, Young: 1e9},
	}
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

// crossedRobot holds a point-mass platform between four ceiling pulleys and
// four floor pulleys on the corners of a 4 m square. Cables 4-7 run down to
// the floor.
func crossedRobot(floorMin, floorMax float64) *robot.Robot {
	corners := [][2]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	r := &robot.Robot{
		Name:     "crossed",
		Pattern:  cdpr.Pattern3T,
		Material: &robot.Material{Density: 0.5, CrossSection: 1e-6, Young: 1e9},
	}
	for _, c := range corners {
		r.Cables = append(r.Cables, robot.Cable{
			Pulley:   robot.Pulley{Position: r3.Vec{X: c[0], Y: c[1], Z: 4}, Orientation: geom.Identity(), Radius: 0.05},
			Anchor:   r3.Vec{X: (c[0] - 2) / 20, Y: (c[1] - 2) / 20, Z: 0.1},
			MinForce: 10,
			MaxForce: 2000,
		})
	}
	for _, c := range corners {
		r.Cables = append(r.Cables, robot.Cable{
			Pulley:   robot.Pulley{Position: r3.Vec{X: c[0], Y: c[1]}, Orientation: geom.Rx(math.Pi), Radius: 0.05},
			Anchor:   r3.Vec{X: (c[0] - 2) / 20, Y: (c[1] - 2) / 20, Z: -0.1},
			MinForce: floorMin,
			MaxForce: floorMax,
		})
	}
	return r
}

// expectBalanced checks the platform equilibrium and both end tensions of
// every cable against its limits.
func expectBalanced(rb *robot.Robot, res *catenary.Result) {
	GinkgoHelper()
	resid, err := res.Equilibrium(rb)
	Expect(err).NotTo(HaveOccurred())
	Expect(floats.Norm(resid, math.Inf(1))).To(BeNumerically("<", 1e-3))
	for i, c := range res.Cables {
		lo, hi := rb.Cables[i].MinForce-1e-4, rb.Cables[i].MaxForce+1e-4
		Expect(c.Tension).To(BeNumerically(">=", lo), "cable %d anchor", i)
		Expect(c.Tension).To(BeNumerically("<=", hi), "cable %d anchor", i)
		Expect(c.TopTension).To(BeNumerically(">=", lo), "cable %d exit", i)
		Expect(c.TopTension).To(BeNumerically("<=", hi), "cable %d exit", i)
	}
}

var _ = Describe("Solve", func() {
	var (
		ctx    context.Context
		pose   geom.Pose
		wrench []float64
		opts   catenary.Options
	)

	BeforeEach(func() {
		ctx = context.Background()
		pose = geom.At(1, 1, -1.5)
		wrench = []float64{0, 0, -50, 0, 0, 0}
		opts = catenary.DefaultOptions()
	})

	Context("with sagging cables on finite pulleys", func() {
		var (
			rb  *robot.Robot
			res *catenary.Result
		)

		BeforeEach(func() {
			rb = squareRobot(0.05, 0.1)
			var err error
			res, err = catenary.Solve(ctx, rb, pose, wrench, opts)
			Expect(err).NotTo(HaveOccurred())
		})

		It("balances the platform wrench", func() {
			resid, err := res.Equilibrium(rb)
			Expect(err).NotTo(HaveOccurred())
			Expect(floats.Norm(resid, math.Inf(1))).To(BeNumerically("<", 1e-3))
			Expect(res.Diagnostics.Status.Success()).To(BeTrue())
		})

		It("keeps the symmetric solution symmetric", func() {
			first := res.Cables[0]
			for _, c := range res.Cables[1:] {
				Expect(c.Tension).To(BeNumerically("~", first.Tension, 1e-4))
				Expect(c.Length).To(BeNumerically("~", first.Length, 1e-6))
				Expect(c.Wrap).To(BeNumerically("~", first.Wrap, 1e-6))
			}
			swivels := res.Angles().RawRowView(0)
			for i, want := range []float64{45, 135, 225, 315} {
				Expect(geom.ToDeg(swivels[i])).To(BeNumerically("~", want, 1e-9))
			}
		})

		It("stays within the tension limits", func() {
			for _, c := range res.Cables {
				Expect(c.Tension).To(BeNumerically(">=", 10-1e-6))
				Expect(c.TopTension).To(BeNumerically(">=", 10-1e-6))
				Expect(c.Tension).To(BeNumerically("<=", 1000+1e-6))
				Expect(c.TopTension).To(BeNumerically("<=", 1000+1e-6))
				// the cables rise to their pulleys
				Expect(c.TopTension).To(BeNumerically(">", c.Tension))
			}
		})

		It("needs at least the chord length", func() {
			for _, c := range res.Cables {
				chord := r3.Norm(r3.Sub(c.Exit, c.Anchor))
				Expect(c.Unstrained).To(BeNumerically(">=", chord-1e-6))
				Expect(c.Length).To(BeNumerically("~", c.Unstrained+0.05*c.Wrap, 1e-12))
			}
		})

		It("is close to the massless pulley solution", func() {
			kin, err := kinematics.Pulleys(rb, pose)
			Expect(err).NotTo(HaveOccurred())
			Expect(floats.EqualApprox(res.Lengths(), kin.Lengths(), 0.01)).To(BeTrue())
		})
	})

	Context("with cables running down to floor pulleys", func() {
		BeforeEach(func() {
			pose = geom.At(2, 2, 1.5)
		})

		It("carries the largest tension at the anchor of a floor cable", func() {
			rb := crossedRobot(100, 2000)
			res, err := catenary.Solve(ctx, rb, pose, wrench, opts)
			Expect(err).NotTo(HaveOccurred())
			expectBalanced(rb, res)
			for _, c := range res.Cables[:4] {
				Expect(c.TopTension).To(BeNumerically(">", c.Tension))
			}
			for _, c := range res.Cables[4:] {
				Expect(c.Fz).To(BeNumerically("<", 0))
				Expect(c.Tension).To(BeNumerically(">", c.TopTension))
			}
		})

		It("does not converge when the anchor tension cannot stay below the limit", func() {
			// the weight of a floor cable adds several newtons between its
			// ends, more than the band allows
			rb := crossedRobot(100, 104)
			res, err := catenary.Solve(ctx, rb, pose, wrench, opts)
			Expect(err).To(MatchError(cdpr.ErrConvergence))
			if res != nil {
				Expect(res.Diagnostics.Status.Success()).To(BeFalse())
			}
		})
	})

	It("balances torques on a rotated spatial platform", func() {
		cfg := config.GetPreset("cube8")
		rb, err := cfg.Robot.ToRobot()
		Expect(err).NotTo(HaveOccurred())
		rotated, err := geom.NewPose(r3.Vec{X: 2, Y: 2, Z: 1.5}, geom.Euler{Roll: geom.Deg(5), Yaw: geom.Deg(10)})
		Expect(err).NotTo(HaveOccurred())

		res, err := catenary.Solve(ctx, rb, rotated, cfg.Query.Wrench, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Wrench).To(HaveLen(6))
		expectBalanced(rb, res)
	})

	It("balances the planar 1R2T layout", func() {
		cfg := config.GetPreset("planar4")
		rb, err := cfg.Robot.ToRobot()
		Expect(err).NotTo(HaveOccurred())
		p, err := cfg.Query.Pose()
		Expect(err).NotTo(HaveOccurred())

		res, err := catenary.Solve(ctx, rb, p, cfg.Query.Wrench, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Wrench).To(HaveLen(3))
		expectBalanced(rb, res)
	})

	It("converges to straight cables as the weight vanishes", func() {
		rb := squareRobot(0, 1e-7)
		res, err := catenary.Solve(ctx, rb, pose, wrench, opts)
		Expect(err).NotTo(HaveOccurred())

		straight, err := kinematics.Straight(rb, pose)
		Expect(err).NotTo(HaveOccurred())
		for i, l := range straight.Lengths() {
			Expect(res.Cables[i].Length).To(BeNumerically("~", l, 1e-5))
		}
		u := straight.UnitVectors()
		for i, c := range res.Cables {
			Expect(c.Direction.X).To(BeNumerically("~", u.At(0, i), 1e-5))
			Expect(c.Direction.Y).To(BeNumerically("~", u.At(1, i), 1e-5))
			Expect(c.Direction.Z).To(BeNumerically("~", u.At(2, i), 1e-5))
			Expect(c.Wrap).To(BeZero())
		}
	})

	It("shortens the unstrained length of elastic cables", func() {
		rb := squareRobot(0.05, 0.1)
		rigid, err := catenary.Solve(ctx, rb, pose, wrench, opts)
		Expect(err).NotTo(HaveOccurred())

		opts.Elastic = true
		elastic, err := catenary.Solve(ctx, rb, pose, wrench, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(elastic.Model.Stiffness).To(BeNumerically("~", 1000, 1e-9))

		for i, c := range elastic.Cables {
			Expect(c.Unstrained).To(BeNumerically("<", rigid.Cables[i].Unstrained))
		}
		resid, err := elastic.Equilibrium(rb)
		Expect(err).NotTo(HaveOccurred())
		Expect(floats.Norm(resid, math.Inf(1))).To(BeNumerically("<", 1e-3))
	})

	It("reports a vertical cable as a singular force state", func() {
		rb := squareRobot(0, 0.1)
		rb.Cables[0].Pulley.Position = r3.Vec{X: 0.9, Y: 0.9}

		_, err := catenary.Solve(ctx, rb, pose, wrench, opts)
		Expect(err).To(MatchError(cdpr.ErrSingularForce))
		Expect(err).To(MatchError(cdpr.ErrConvergence))
	})

	It("stops when the context is canceled", func() {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		res, err := catenary.Solve(canceled, squareRobot(0.05, 0.1), pose, wrench, opts)
		Expect(err).To(MatchError(cdpr.ErrCanceled))
		Expect(err).To(MatchError(context.Canceled))
		Expect(res).NotTo(BeNil())
		Expect(res.Cables).To(HaveLen(4))
	})

	It("requires a cable material", func() {
		rb := squareRobot(0.05, 0.1)
		rb.Material = nil
		_, err := catenary.Solve(ctx, rb, pose, wrench, opts)
		Expect(err).To(MatchError(cdpr.ErrInvalidGeometry))
	})

	It("rejects a wrench of the wrong size", func() {
		_, err := catenary.Solve(ctx, squareRobot(0.05, 0.1), pose, []float64{1, 2}, opts)
		Expect(err).To(MatchError(cdpr.ErrInvalidGeometry))
	})
})
