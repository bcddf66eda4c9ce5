package config

import (
	"sort"
)

// steel wire rope, 2 mm
var steel = MaterialConfig{Density: 0.0163, CrossSection: 3.1416e-6, Young: 1.1e11}

// Presets are constructors so callers may modify what they get.
var Presets = map[string]func() *Config{
	"square4": square4,
	"planar4": planar4,
	"cube8":   cube8,
}

// square4 suspends a point mass from four ceiling pulleys on a 4 m square.
func square4() *Config {
	heavy := MaterialConfig{Density: 0.1, CrossSection: 3.1416e-6, Young: 1.1e11}
	corners := [][2]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	cfg := &Config{
		Robot: RobotConfig{Name: "square4", Pattern: "3T", Material: &heavy},
		Query: QueryConfig{
			Position: [3]float64{2, 2, 1},
			Wrench:   []float64{0, 0, -50, 0, 0, 0},
			Model:    ModelCatenary,
		},
	}
	for _, c := range corners {
		cfg.Robot.Cables = append(cfg.Robot.Cables, CableConfig{
			Pulley:   PulleyConfig{Position: [3]float64{c[0], c[1], 3}, Radius: 0.05},
			Anchor:   [3]float64{(c[0] - 2) / 20, (c[1] - 2) / 20, 0.1},
			MinForce: 5,
			MaxForce: 500,
		})
	}
	return cfg
}

// planar4 is a 1R2T robot in the horizontal plane; the pulleys sit level
// with the platform on a 3 m by 2 m frame.
func planar4() *Config {
	frame := [][2]float64{{0, 0}, {3, 0}, {3, 2}, {0, 2}}
	anchors := [][2]float64{{-0.2, -0.1}, {0.2, -0.1}, {0.2, 0.1}, {-0.2, 0.1}}
	m := steel
	cfg := &Config{
		Robot: RobotConfig{Name: "planar4", Pattern: "1R2T", Material: &m},
		Query: QueryConfig{
			Position:    [3]float64{1.5, 1, 0},
			Orientation: []float64{0, 0, 5},
			Wrench:      []float64{0, 0, 0, 0, 0, 0},
			Model:       ModelCatenary,
		},
	}
	for i, p := range frame {
		cfg.Robot.Cables = append(cfg.Robot.Cables, CableConfig{
			Pulley:   PulleyConfig{Position: [3]float64{p[0], p[1], 0.1}, Radius: 0.02},
			Anchor:   [3]float64{anchors[i][0], anchors[i][1], 0},
			MinForce: 20,
			MaxForce: 800,
		})
	}
	return cfg
}

// cube8 is a spatial 3R3T robot in a 4 m cube frame: four cables from the
// top corners to the top of a 0.4 m platform, four from the floor pulleys to
// its bottom. Each level attaches to the neighbouring corner, the two levels
// twisting in opposite directions.
func cube8() *Config {
	corners := [][2]float64{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	m := steel
	cfg := &Config{
		Robot: RobotConfig{Name: "cube8", Pattern: "3R3T", Material: &m},
		Query: QueryConfig{
			Position: [3]float64{2, 2, 1.5},
			Wrench:   []float64{0, 0, -100, 0, 0, 0},
			Model:    ModelCatenary,
		},
	}
	for _, level := range []struct {
		z, anchorZ float64
		twist      int
		flip       []float64
	}{
		{z: 4, anchorZ: 0.2, twist: 1},
		// floor pulleys receive the cable travelling upward
		{z: 0, anchorZ: -0.2, twist: 3, flip: []float64{180, 0, 0}},
	} {
		for k, c := range corners {
			a := corners[(k+level.twist)%len(corners)]
			cfg.Robot.Cables = append(cfg.Robot.Cables, CableConfig{
				Pulley: PulleyConfig{
					Position:    [3]float64{c[0], c[1], level.z},
					Orientation: level.flip,
					Radius:      0.04,
				},
				Anchor:   [3]float64{(a[0] - 2) / 10, (a[1] - 2) / 10, level.anchorZ},
				MinForce: 10,
				MaxForce: 2000,
			})
		}
	}
	return cfg
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
