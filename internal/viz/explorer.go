package viz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/cablekin/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	canvasWidth  = 60
	canvasHeight = 24
	queryTimeout = 5 * time.Second
)

// Frame is what the explorer shows for one pose.
type Frame struct {
	Lines    [][]r3.Vec
	Cables   []CableRow
	Status   string
	Residual float64
}

// Query solves one pose. Every keypress issues an independent query.
type Query func(ctx context.Context, pose geom.Pose) (*Frame, error)

type solvedMsg struct {
	seq   int
	frame *Frame
	err   error
	took  time.Duration
}

// Explorer is a bubbletea model that jogs the platform pose from the
// keyboard and shows the solved cables.
type Explorer struct {
	query Query
	name  string

	position  r3.Vec
	euler     geom.Euler
	home      r3.Vec
	homeEuler geom.Euler
	step      float64
	angleStep float64

	seq     int
	frame   *Frame
	err     error
	took    time.Duration
	pending bool

	canvas   *Canvas
	camera   *Camera
	fitted   bool
	theme    Theme
	showHelp bool
}

// NewExplorer starts at pose; name is shown in the header.
func NewExplorer(name string, position r3.Vec, euler geom.Euler, query Query) *Explorer {
	return &Explorer{
		query:     query,
		name:      name,
		position:  position,
		euler:     euler,
		home:      position,
		homeEuler: euler,
		step:      0.05,
		angleStep: geom.Deg(2),
		canvas:    NewCanvas(canvasWidth, canvasHeight),
		camera:    NewCamera(),
		theme:     CurrentTheme,
	}
}

func (m *Explorer) Init() tea.Cmd {
	return m.solve()
}

// Pose returns the current platform pose.
func (m *Explorer) Pose() (geom.Pose, error) {
	return geom.NewPose(m.position, m.euler)
}

func (m *Explorer) solve() tea.Cmd {
	m.seq++
	m.pending = true
	seq := m.seq
	pose, err := m.Pose()
	if err != nil {
		return func() tea.Msg { return solvedMsg{seq: seq, err: err} }
	}
	query := m.query
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		start := time.Now()
		f, err := query(ctx, pose)
		return solvedMsg{seq: seq, frame: f, err: err, took: time.Since(start)}
	}
}

func (m *Explorer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case solvedMsg:
		// answers to older keypresses are dropped
		if msg.seq != m.seq {
			return m, nil
		}
		m.pending = false
		m.err = msg.err
		m.took = msg.took
		if msg.frame != nil {
			m.frame = msg.frame
			if !m.fitted {
				m.camera.Fit(msg.frame.Lines)
				m.fitted = true
			}
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Explorer) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	moved := true
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "left":
		m.position.X -= m.step
	case "right":
		m.position.X += m.step
	case "up":
		m.position.Y += m.step
	case "down":
		m.position.Y -= m.step
	case "pgup", "w":
		m.position.Z += m.step
	case "pgdown", "s":
		m.position.Z -= m.step
	case "[":
		m.euler.Yaw -= m.angleStep
	case "]":
		m.euler.Yaw += m.angleStep
	case "{":
		m.euler.Roll -= m.angleStep
	case "}":
		m.euler.Roll += m.angleStep
	case "r":
		m.position, m.euler = m.home, m.homeEuler
	default:
		moved = false
	}
	if moved {
		return m, m.solve()
	}

	switch msg.String() {
	case "+", "=":
		m.step = math.Min(1, m.step*2)
	case "-":
		m.step = math.Max(0.001, m.step/2)
	case "h":
		m.camera.Orbit(0, -0.1)
	case "l":
		m.camera.Orbit(0, 0.1)
	case "k":
		m.camera.Orbit(0.1, 0)
	case "j":
		m.camera.Orbit(-0.1, 0)
	case "z":
		m.camera.ZoomIn()
	case "x":
		m.camera.ZoomOut()
	case "t":
		m.theme = NextTheme(m.theme)
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Explorer) View() string {
	st := m.theme.Styles()

	m.canvas.Clear()
	if m.frame != nil {
		RenderLines(m.canvas, m.frame.Lines, m.camera)
	}
	canvasView := lipgloss.NewStyle().Foreground(m.theme.Secondary).Padding(1, 2).Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(st.Header.Render(strings.ToUpper(m.name)) + "\n\n")
	p := m.position
	s.WriteString(st.KeyValue("Position", fmt.Sprintf("%.3f %.3f %.3f", p.X, p.Y, p.Z)) + "\n")
	s.WriteString(st.KeyValue("Roll/Yaw", fmt.Sprintf("%.1f° %.1f°", geom.ToDeg(m.euler.Roll), geom.ToDeg(m.euler.Yaw))) + "\n")
	s.WriteString(st.KeyValue("Step", fmt.Sprintf("%.3f m", m.step)) + "\n")

	switch {
	case m.pending:
		s.WriteString(st.KeyValue("Status", st.Subtle.Render("solving...")) + "\n")
	case m.err != nil:
		s.WriteString(st.KeyValue("Status", st.Fail.Render("ERROR")) + "\n")
		s.WriteString(st.Fail.Width(50).Render(m.err.Error()) + "\n")
	case m.frame != nil:
		s.WriteString(st.KeyValue("Status", st.Status(m.frame.Status)) + "\n")
		s.WriteString(st.KeyValue("Residual", fmt.Sprintf("%.2e N", m.frame.Residual)) + "\n")
		s.WriteString(st.KeyValue("Solve", m.took.Round(time.Microsecond).String()) + "\n")
	}

	if m.frame != nil && len(m.frame.Cables) > 0 {
		s.WriteString("\n" + st.CableTable(m.frame.Cables) + "\n")
		tensions := make([]float64, len(m.frame.Cables))
		for i, c := range m.frame.Cables {
			tensions[i] = c.Tension
		}
		s.WriteString(TensionChart(tensions, "tension per cable (N)") + "\n")
	}
	s.WriteString(st.Hint.Render("\n←→↑↓ W/S: move  [ ] { }: rotate  +/-: step\nHJKL Z/X: camera  T: theme  R: reset  Q: quit"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, s.String())
	if m.showHelp {
		help := st.Panel.Render(strings.Join([]string{
			"←/→      x ∓ step",
			"↑/↓      y ± step",
			"W/S      z ± step",
			"[ ]      yaw ∓ 2°",
			"{ }      roll ∓ 2°",
			"+/-      double / halve step",
			"HJKL     orbit camera",
			"Z/X      zoom in / out",
			"T        cycle themes",
			"R        back to the start pose",
			"?        toggle this help",
		}, "\n"))
		return help + "\n" + mainView
	}
	return mainView
}

// RunExplorer runs the explorer full screen until the user quits.
func RunExplorer(m *Explorer) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
