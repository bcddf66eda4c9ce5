package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/guptarohit/asciigraph"
)

// Styles are the lipgloss styles derived from a theme.
type Styles struct {
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Subtle lipgloss.Style
	Hint   lipgloss.Style
	OK     lipgloss.Style
	Warn   lipgloss.Style
	Fail   lipgloss.Style
	Panel  lipgloss.Style
	Border lipgloss.Style
}

func (t Theme) Styles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Secondary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Muted),
		Label:  lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		Value:  lipgloss.NewStyle().Foreground(t.Text).Bold(true),
		Subtle: lipgloss.NewStyle().Foreground(t.Muted),
		Hint:   lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		OK:     lipgloss.NewStyle().Bold(true).Foreground(t.Success),
		Warn:   lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
		Fail:   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
		Border: lipgloss.NewStyle().Foreground(t.Muted),
	}
}

// CableRow is one line of a cable report. Angles are in degrees.
type CableRow struct {
	Index      int
	Length     float64
	Unstrained float64
	Tension    float64
	Swivel     float64
	Wrap       float64
	// Limit is set when the tension sits on a cable bound.
	Limit bool
}

// Status renders a solver status word in its color.
func (s Styles) Status(status string) string {
	switch status {
	case "converged", "solved":
		return s.OK.Render(strings.ToUpper(status))
	case "feasible", "iteration-limit":
		return s.Warn.Render(strings.ToUpper(status))
	}
	return s.Fail.Render(strings.ToUpper(status))
}

// KeyValue renders an aligned label and value.
func (s Styles) KeyValue(label, value string) string {
	return s.Label.Render(label) + s.Value.Render(value)
}

// CableTable renders the cable report.
func (s Styles) CableTable(rows []CableRow) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		Headers("cable", "length m", "L0 m", "tension N", "swivel°", "wrap°")
	for _, r := range rows {
		t.Row(
			fmt.Sprintf("%d", r.Index),
			fmt.Sprintf("%.4f", r.Length),
			fmt.Sprintf("%.4f", r.Unstrained),
			fmt.Sprintf("%.2f", r.Tension),
			fmt.Sprintf("%.2f", r.Swivel),
			fmt.Sprintf("%.2f", r.Wrap),
		)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		st := lipgloss.NewStyle().Padding(0, 1)
		switch {
		case row == table.HeaderRow:
			return st.Inherit(s.Header.UnsetBorderStyle().UnsetBorderBottom())
		case col == 3 && row >= 0 && row < len(rows) && rows[row].Limit:
			return st.Inherit(s.Warn)
		}
		return st
	})
	return t.Render()
}

// TensionChart plots one value per cable.
func TensionChart(values []float64, caption string) string {
	if len(values) == 0 {
		return ""
	}
	data := values
	if len(data) == 1 {
		data = []float64{values[0], values[0]}
	}
	return asciigraph.Plot(data,
		asciigraph.Height(6),
		asciigraph.Width(4*len(data)),
		asciigraph.Precision(1),
		asciigraph.Caption(caption),
	)
}

// Separator is a muted horizontal rule.
func (s Styles) Separator(width int) string {
	mid := width / 2
	if mid < 3 {
		return ""
	}
	left := strings.Repeat("─", mid-3)
	right := strings.Repeat("─", width-mid-3)
	return s.Subtle.Render(left + " ◆ " + right)
}
