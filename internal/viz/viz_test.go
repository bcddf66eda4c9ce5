package viz

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/cablekin/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestCanvas(t *testing.T) {
	c := NewCanvas(4, 2)
	if w, h := c.Pixels(); w != 8 || h != 8 {
		t.Fatalf("pixels = %d x %d", w, h)
	}
	c.DrawLine(0, 0, 7, 7)
	for i := range 8 {
		if !c.On(i, i) {
			t.Errorf("diagonal pixel %d not set", i)
		}
	}
	if c.On(7, 0) {
		t.Error("off-diagonal pixel set")
	}
	c.Set(-1, 3)
	c.Set(100, 3)

	c.Clear()
	if strings.Trim(c.String(), "\u2800\n") != "" {
		t.Error("clear left pixels behind")
	}
}

func TestCameraFitCentres(t *testing.T) {
	cam := NewCamera()
	lines := [][]r3.Vec{{{X: 0, Y: 0, Z: 0}, {X: 4, Y: 4, Z: 3}}}
	cam.Fit(lines)
	if cam.Target != (r3.Vec{X: 2, Y: 2, Z: 1.5}) {
		t.Errorf("target = %v", cam.Target)
	}
	x, y, ok := cam.Project(cam.Target, 120, 96)
	if !ok || x != 60 || y != 48 {
		t.Errorf("target projects to (%d, %d, %v), want the centre", x, y, ok)
	}
	for _, p := range lines[0] {
		x, y, ok := cam.Project(p, 120, 96)
		if !ok || x < 0 || x >= 120 || y < 0 || y >= 96 {
			t.Errorf("%v projects off canvas: (%d, %d)", p, x, y)
		}
	}
}

func TestTensionChart(t *testing.T) {
	if TensionChart(nil, "x") != "" {
		t.Error("empty chart should be empty")
	}
	if out := TensionChart([]float64{10, 20, 15}, "tension"); !strings.Contains(out, "tension") {
		t.Errorf("caption missing:\n%s", out)
	}
}

func TestCableTable(t *testing.T) {
	out := ThemeOcean.Styles().CableTable([]CableRow{
		{Index: 0, Length: 1.5, Tension: 20.25},
		{Index: 1, Length: 1.75, Tension: 500, Limit: true},
	})
	for _, want := range []string{"tension N", "20.25", "500.00", "1.7500"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}

func TestNextThemeWraps(t *testing.T) {
	th := Themes[len(Themes)-1]
	if NextTheme(th).Name != Themes[0].Name {
		t.Error("last theme should wrap to the first")
	}
	if GetTheme("nonexistent").Name != ThemeCyberpunk.Name {
		t.Error("unknown theme should fall back to the default")
	}
}

func TestExplorerQueriesEachMove(t *testing.T) {
	var poses []geom.Pose
	query := func(_ context.Context, pose geom.Pose) (*Frame, error) {
		poses = append(poses, pose)
		if pose.Position.Z > 1.5 {
			return nil, errors.New("out of reach")
		}
		return &Frame{
			Lines:  [][]r3.Vec{{pose.Position, {X: 0, Y: 0, Z: 3}}},
			Cables: []CableRow{{Index: 0, Tension: 42}},
			Status: "converged",
		}, nil
	}
	m := NewExplorer("test", r3.Vec{X: 1, Y: 1, Z: 1}, geom.Euler{}, query)

	run := func(cmd tea.Cmd) {
		t.Helper()
		if cmd == nil {
			t.Fatal("expected a query command")
		}
		m.Update(cmd())
	}
	run(m.Init())
	if m.frame == nil || m.err != nil || m.pending {
		t.Fatalf("initial query not applied: %+v", m)
	}
	if !strings.Contains(m.View(), "CONVERGED") {
		t.Error("view should show the solver status")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRight})
	run(cmd)
	if got := poses[len(poses)-1].Position.X; math.Abs(got-1.05) > 1e-12 {
		t.Errorf("x after one step = %v, want 1.05", got)
	}

	// two moves before the first answer arrives: only the last one counts
	_, first := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	_, second := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	stale := first()
	m.Update(second())
	m.Update(stale)
	if m.err != nil || math.Abs(m.frame.Lines[0][0].Z-1.1) > 1e-12 {
		t.Errorf("stale answer overwrote the latest one: err %v, z %v", m.err, m.frame.Lines[0][0].Z)
	}

	for range 10 {
		_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	}
	run(cmd)
	if m.err == nil || !strings.Contains(m.View(), "out of reach") {
		t.Error("query errors should be shown")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	run(cmd)
	if m.position != (r3.Vec{X: 1, Y: 1, Z: 1}) || m.err != nil {
		t.Errorf("reset went to %v", m.position)
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}}); cmd != nil {
		t.Error("theme change should not query")
	}
}
