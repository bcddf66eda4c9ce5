package config

import (
	"fmt"
	"os"

	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/optim"
	"github.com/san-kum/cablekin/internal/robot"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Query models.
const (
	ModelCatenary = "catenary"
	ModelPulley   = "pulley"
	ModelStraight = "straight"
)

const DefaultPreset = "square4"

// Config is a robot file with an optional query and solver section. Angles
// are in degrees; everything else is SI.
type Config struct {
	Robot  RobotConfig  `yaml:"robot"`
	Query  QueryConfig  `yaml:"query"`
	Solver SolverConfig `yaml:"solver"`
}

type RobotConfig struct {
	Name     string          `yaml:"name"`
	Pattern  string          `yaml:"pattern"`
	Gravity  float64         `yaml:"gravity,omitempty"`
	Material *MaterialConfig `yaml:"material,omitempty"`
	Cables   []CableConfig   `yaml:"cables"`
}

type MaterialConfig struct {
	Density      float64 `yaml:"density"`
	CrossSection float64 `yaml:"cross_section"`
	Young        float64 `yaml:"young"`
}

type CableConfig struct {
	Pulley   PulleyConfig `yaml:"pulley"`
	Anchor   [3]float64   `yaml:"anchor"`
	MinForce float64      `yaml:"min_force"`
	MaxForce float64      `yaml:"max_force"`
}

type PulleyConfig struct {
	Position [3]float64 `yaml:"position"`
	// roll, pitch, yaw in degrees; a quaternion (w, x, y, z) or a row-major
	// matrix is accepted too. Empty means identity.
	Orientation []float64 `yaml:"orientation,omitempty,flow"`
	Radius      float64   `yaml:"radius"`
}

type QueryConfig struct {
	Position    [3]float64 `yaml:"position"`
	Orientation []float64  `yaml:"orientation,omitempty,flow"`
	Wrench      []float64  `yaml:"wrench,flow"`
	Model       string     `yaml:"model"`
}

type SolverConfig struct {
	Method         string             `yaml:"method,omitempty"`
	Elastic        bool               `yaml:"elastic,omitempty"`
	WrapIterations int                `yaml:"wrap_iterations,omitempty"`
	Options        map[string]float64 `yaml:"options,omitempty"`
}

func DefaultConfig() *Config {
	return GetPreset(DefaultPreset)
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Query.Model == "" {
		cfg.Query.Model = ModelCatenary
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// orientation decodes a config orientation; three values are Euler degrees.
func orientation(v []float64) (geom.Orientation, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 3:
		return geom.Euler{Roll: geom.Deg(v[0]), Pitch: geom.Deg(v[1]), Yaw: geom.Deg(v[2])}, nil
	}
	return geom.FromSlice(v)
}

func vec(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// ToRobot converts and validates the robot section. All problems are
// reported together.
func (c *RobotConfig) ToRobot() (*robot.Robot, error) {
	var errs error
	pattern, err := cdpr.ParseMotionPattern(c.Pattern)
	multierr.AppendInto(&errs, err)

	r := &robot.Robot{
		Name:    c.Name,
		Pattern: pattern,
		Gravity: c.Gravity,
		Cables:  make([]robot.Cable, len(c.Cables)),
	}
	if c.Material != nil {
		r.Material = &robot.Material{
			Density:      c.Material.Density,
			CrossSection: c.Material.CrossSection,
			Young:        c.Material.Young,
		}
	}
	for i, cc := range c.Cables {
		rot := geom.Identity()
		o, err := orientation(cc.Pulley.Orientation)
		if err == nil && o != nil {
			rot, err = o.Rotation()
		}
		if err != nil {
			multierr.AppendInto(&errs, cdpr.Geometryf(i, "pulley.orientation", "%v", err))
		}
		r.Cables[i] = robot.Cable{
			Pulley: robot.Pulley{
				Position:    vec(cc.Pulley.Position),
				Orientation: rot,
				Radius:      cc.Pulley.Radius,
			},
			Anchor:   vec(cc.Anchor),
			MinForce: cc.MinForce,
			MaxForce: cc.MaxForce,
		}
	}
	if errs != nil {
		return nil, errs
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Pose returns the queried platform pose.
func (q *QueryConfig) Pose() (geom.Pose, error) {
	o, err := orientation(q.Orientation)
	if err != nil {
		return geom.Pose{}, err
	}
	return geom.NewPose(vec(q.Position), o)
}

// CatenaryOptions merges the solver section over the defaults.
func (s *SolverConfig) CatenaryOptions(logger *zap.Logger) (catenary.Options, error) {
	opts := catenary.DefaultOptions()
	solver, err := optim.ParseOptions(s.Options)
	if err != nil {
		return opts, err
	}
	opts.Solver = solver
	if s.Method != "" {
		opts.Method = s.Method
	}
	if s.WrapIterations > 0 {
		opts.WrapIterations = s.WrapIterations
	}
	opts.Elastic = s.Elastic
	opts.Logger = logger
	return opts, nil
}

// FromRobot is the inverse of ToRobot. Pulley orientations are written as
// row-major matrices so no precision is lost.
func FromRobot(r *robot.Robot) RobotConfig {
	c := RobotConfig{
		Name:    r.Name,
		Pattern: r.Pattern.String(),
		Gravity: r.Gravity,
		Cables:  make([]CableConfig, len(r.Cables)),
	}
	if r.Material != nil {
		c.Material = &MaterialConfig{
			Density:      r.Material.Density,
			CrossSection: r.Material.CrossSection,
			Young:        r.Material.Young,
		}
	}
	for i, cb := range r.Cables {
		p := cb.Pulley
		cc := CableConfig{
			Pulley: PulleyConfig{
				Position: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
				Radius:   p.Radius,
			},
			Anchor:   [3]float64{cb.Anchor.X, cb.Anchor.Y, cb.Anchor.Z},
			MinForce: cb.MinForce,
			MaxForce: cb.MaxForce,
		}
		if p.Orientation != geom.Identity() {
			cc.Pulley.Orientation = append([]float64(nil), p.Orientation[:]...)
		}
		c.Cables[i] = cc
	}
	return c
}
