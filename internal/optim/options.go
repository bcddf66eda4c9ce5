package optim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/san-kum/cablekin/internal/cdpr"
	"go.uber.org/multierr"
)

// Options tunes the augmented Lagrangian solver. Every field has a flat key
// so options can travel through YAML and CLI flags as a map.
type Options struct {
	ConstraintTolerance float64
	StepTolerance       float64
	ObjectiveTolerance  float64
	GradientTolerance   float64
	MaxIterations       int
	MaxInnerIterations  int
	PenaltyInitial      float64
	PenaltyGrowth       float64
	PenaltyMax          float64
	MaxRuntime          time.Duration
	ObjectiveWeight     float64
}

func DefaultOptions() Options {
	return Options{
		ConstraintTolerance: 1e-8,
		StepTolerance:       1e-9,
		ObjectiveTolerance:  1e-10,
		GradientTolerance:   1e-10,
		MaxIterations:       60,
		MaxInnerIterations:  200,
		PenaltyInitial:      10,
		PenaltyGrowth:       10,
		PenaltyMax:          1e12,
		ObjectiveWeight:     1,
	}
}

type optionField struct {
	get func(o *Options) float64
	set func(o *Options, v float64) error
}

func positive(name string, dst func(o *Options) *float64) optionField {
	return optionField{
		get: func(o *Options) float64 { return *dst(o) },
		set: func(o *Options, v float64) error {
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("optim: %s must be finite and > 0, got %g", name, v)
			}
			*dst(o) = v
			return nil
		},
	}
}

func count(name string, dst func(o *Options) *int) optionField {
	return optionField{
		get: func(o *Options) float64 { return float64(*dst(o)) },
		set: func(o *Options, v float64) error {
			if v < 1 || v != math.Trunc(v) || v > math.MaxInt32 {
				return fmt.Errorf("optim: %s must be a positive integer, got %g", name, v)
			}
			*dst(o) = int(v)
			return nil
		},
	}
}

var optionFields = map[string]optionField{
	"constraint_tolerance": positive("constraint_tolerance", func(o *Options) *float64 { return &o.ConstraintTolerance }),
	"step_tolerance":       positive("step_tolerance", func(o *Options) *float64 { return &o.StepTolerance }),
	"objective_tolerance":  positive("objective_tolerance", func(o *Options) *float64 { return &o.ObjectiveTolerance }),
	"gradient_tolerance":   positive("gradient_tolerance", func(o *Options) *float64 { return &o.GradientTolerance }),
	"max_iterations":       count("max_iterations", func(o *Options) *int { return &o.MaxIterations }),
	"max_inner_iterations": count("max_inner_iterations", func(o *Options) *int { return &o.MaxInnerIterations }),
	"penalty_initial":      positive("penalty_initial", func(o *Options) *float64 { return &o.PenaltyInitial }),
	"penalty_max":          positive("penalty_max", func(o *Options) *float64 { return &o.PenaltyMax }),
	"objective_weight":     positive("objective_weight", func(o *Options) *float64 { return &o.ObjectiveWeight }),
	"penalty_growth": {
		get: func(o *Options) float64 { return o.PenaltyGrowth },
		set: func(o *Options, v float64) error {
			if v <= 1 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("optim: penalty_growth must be finite and > 1, got %g", v)
			}
			o.PenaltyGrowth = v
			return nil
		},
	},
	"max_runtime": {
		get: func(o *Options) float64 { return o.MaxRuntime.Seconds() },
		set: func(o *Options, v float64) error {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("optim: max_runtime must be finite and >= 0 seconds, got %g", v)
			}
			o.MaxRuntime = time.Duration(v * float64(time.Second))
			return nil
		},
	},
}

// OptionKeys lists every accepted key in sorted order.
func OptionKeys() []string {
	keys := make([]string, 0, len(optionFields))
	for k := range optionFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseOptions applies m on top of DefaultOptions. Unknown keys and invalid
// values are all reported; the error unwraps to cdpr.ErrInvalidGeometry.
func ParseOptions(m map[string]float64) (Options, error) {
	o := DefaultOptions()
	err := o.Apply(m)
	return o, err
}

// Apply overrides the fields named in m.
func (o *Options) Apply(m map[string]float64) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, k := range keys {
		field, ok := optionFields[k]
		if !ok {
			multierr.AppendInto(&err, cdpr.Geometryf(-1, "solver."+k, "unknown option"))
			continue
		}
		if e := field.set(o, m[k]); e != nil {
			multierr.AppendInto(&err, cdpr.Geometryf(-1, "solver."+k, "%v", e))
		}
	}
	return err
}

// Map returns the options as flat keys.
func (o Options) Map() map[string]float64 {
	out := make(map[string]float64, len(optionFields))
	for k, f := range optionFields {
		out[k] = f.get(&o)
	}
	return out
}
