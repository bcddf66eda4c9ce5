package main

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/config"
	"github.com/san-kum/cablekin/internal/forcedist"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/robot"
	"github.com/san-kum/cablekin/internal/shape"
	"github.com/san-kum/cablekin/internal/storage"
	"github.com/san-kum/cablekin/internal/viz"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// points per drawn cable
const samples = 64

const limitTolerance = 1e-6

// answer is one solved query in the shape every command prints.
type answer struct {
	model    string
	run      *storage.Run
	lines    [][]r3.Vec
	rows     []viz.CableRow
	status   string
	residual float64
	// massless models only
	dist *forcedist.Distribution
}

func (a *answer) tensions() []float64 {
	out := make([]float64, len(a.rows))
	for i, r := range a.rows {
		out[i] = r.Tension
	}
	return out
}

func (a *answer) frame() *viz.Frame {
	return &viz.Frame{Lines: a.lines, Cables: a.rows, Status: a.status, Residual: a.residual}
}

func atLimit(t float64, c robot.Cable) bool {
	tol := limitTolerance * math.Max(1, c.MaxForce)
	return math.Abs(t-c.MinForce) <= tol || math.Abs(t-c.MaxForce) <= tol
}

// solveQuery answers a pose query with the given cable model. A non-nil
// answer may come with an error when the solver stopped early; it then holds
// the last iterate.
func solveQuery(ctx context.Context, rb *robot.Robot, pose geom.Pose, wrench []float64, model string, opts catenary.Options) (*answer, error) {
	switch model {
	case config.ModelCatenary:
		return solveCatenary(ctx, rb, pose, wrench, opts)
	case config.ModelPulley, config.ModelStraight:
		return solveMassless(rb, pose, wrench, model)
	}
	return nil, fmt.Errorf("unknown model %q (want %s, %s or %s)",
		model, config.ModelCatenary, config.ModelPulley, config.ModelStraight)
}

func solveCatenary(ctx context.Context, rb *robot.Robot, pose geom.Pose, wrench []float64, opts catenary.Options) (*answer, error) {
	res, err := catenary.Solve(ctx, rb, pose, wrench, opts)
	if res == nil {
		return nil, err
	}
	a := &answer{
		model:  config.ModelCatenary,
		run:    storage.FromCatenary(rb, res),
		status: res.Diagnostics.Status.String(),
	}
	if eq, eqErr := res.Equilibrium(rb); eqErr == nil {
		a.residual = floats.Norm(eq, math.Inf(1))
	}
	for _, c := range res.Cables {
		a.rows = append(a.rows, viz.CableRow{
			Index:      c.Index,
			Length:     c.Length,
			Unstrained: c.Unstrained,
			Tension:    c.Tension,
			Swivel:     geom.ToDeg(c.Swivel),
			Wrap:       geom.ToDeg(c.Wrap),
			Limit:      atLimit(c.Tension, rb.Cables[c.Index]),
		})
		// a stopped solve may leave cables without a usable shape
		if err != nil {
			continue
		}
		pts, serr := shape.Sample(c, res.Model, samples)
		if serr != nil {
			return nil, serr
		}
		a.lines = append(a.lines, pts)
	}
	return a, err
}

func solveMassless(rb *robot.Robot, pose geom.Pose, wrench []float64, model string) (*answer, error) {
	var res *kinematics.Result
	var err error
	if model == config.ModelStraight {
		res, err = kinematics.Straight(rb, pose)
	} else {
		res, err = kinematics.Pulleys(rb, pose)
	}
	if err != nil {
		return nil, err
	}
	st, err := res.Structure(rb)
	if err != nil {
		return nil, err
	}
	w, err := rb.Pattern.Project(wrench)
	if err != nil {
		return nil, err
	}
	lo, hi := rb.Bounds()
	dist, distErr := forcedist.Distribute(w, st, forcedist.Bounds{Min: lo, Max: hi})

	a := &answer{
		model:  model,
		run:    storage.FromKinematics(rb, model, res, wrench, dist),
		status: "solved",
		dist:   dist,
	}
	if distErr != nil {
		a.status = "infeasible"
		a.run.Meta.Status = a.status
	} else {
		a.residual = dist.Residual(st, w)
	}
	for _, c := range res.Cables {
		row := viz.CableRow{
			Index:      c.Index,
			Length:     c.Wrap.Length,
			Unstrained: c.Wrap.Free,
			Swivel:     geom.ToDeg(c.Wrap.Swivel),
			Wrap:       geom.ToDeg(c.Wrap.Wrap),
		}
		if dist != nil {
			row.Tension = dist.Forces[c.Index]
			row.Limit = atLimit(row.Tension, rb.Cables[c.Index])
		}
		a.rows = append(a.rows, row)
		pts, err := shape.Straight(c, samples)
		if err != nil {
			return nil, err
		}
		a.lines = append(a.lines, pts)
	}
	return a, distErr
}
