package storage

import (
	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/forcedist"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/robot"
	"gonum.org/v1/gonum/spatial/r3"
)

func arr(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func newMeta(rb *robot.Robot, model string, pose geom.Pose, wrench []float64) RunMetadata {
	return RunMetadata{
		Robot:       rb.Name,
		Pattern:     rb.Pattern.String(),
		Model:       model,
		Position:    arr(pose.Position),
		Rotation:    pose.R,
		Wrench:      append([]float64(nil), wrench...),
		Diagnostics: map[string]float64{},
	}
}

// FromCatenary records a catenary solution.
func FromCatenary(rb *robot.Robot, res *catenary.Result) *Run {
	run := &Run{Meta: newMeta(rb, "catenary", res.Pose, res.Wrench)}
	d := res.Diagnostics
	run.Meta.Status = d.Status.String()
	run.Meta.Diagnostics = map[string]float64{
		"iterations":       float64(d.Iterations),
		"inner_iterations": float64(d.InnerIterations),
		"residual":         d.Residual,
		"objective":        d.Objective,
		"penalty":          d.Penalty,
		"runtime_ms":       float64(d.Runtime.Microseconds()) / 1000,
		"wrap_iterations":  float64(d.WrapIterations),
		"wrap_change":      d.WrapChange,
	}
	for _, c := range res.Cables {
		run.Cables = append(run.Cables, CableRecord{
			Index:      c.Index,
			Length:     c.Length,
			Unstrained: c.Unstrained,
			Tension:    c.Tension,
			TopTension: c.TopTension,
			Fx:         c.Fx,
			Fz:         c.Fz,
			Swivel:     geom.ToDeg(c.Swivel),
			Wrap:       geom.ToDeg(c.Wrap),
			Direction:  arr(c.Direction),
			Exit:       arr(c.Exit),
		})
	}
	return run
}

// FromKinematics records a massless-cable solution. dist may be nil when
// no forces were computed.
func FromKinematics(rb *robot.Robot, model string, res *kinematics.Result, wrench []float64, dist *forcedist.Distribution) *Run {
	run := &Run{Meta: newMeta(rb, model, res.Pose, wrench)}
	run.Meta.Status = "solved"
	if dist != nil {
		run.Meta.Diagnostics["iterations"] = float64(dist.Iterations)
		run.Meta.Diagnostics["clamped"] = float64(len(dist.Clamped))
	}
	for _, c := range res.Cables {
		w := c.Wrap
		rec := CableRecord{
			Index:      c.Index,
			Length:     w.Length,
			Unstrained: w.Free,
			Swivel:     geom.ToDeg(w.Swivel),
			Wrap:       geom.ToDeg(w.Wrap),
			Direction:  arr(w.Direction),
			Exit:       arr(w.Exit),
		}
		if dist != nil {
			t := dist.Forces[c.Index]
			h := r3.Vec{X: w.Direction.X, Y: w.Direction.Y}
			rec.Tension, rec.TopTension = t, t
			rec.Fx = t * r3.Norm(h)
			rec.Fz = t * w.Direction.Z
		}
		run.Cables = append(run.Cables, rec)
	}
	return run
}
