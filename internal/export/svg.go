// Package export renders sampled cable shapes to SVG and PNG.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/cablekin/internal/cdpr"
	"gonum.org/v1/gonum/spatial/r3"
)

// View is an orthographic projection onto two world axes.
type View string

const (
	ViewXY View = "xy"
	ViewXZ View = "xz"
	ViewYZ View = "yz"
)

func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(s)); v {
	case ViewXY, ViewXZ, ViewYZ:
		return v, nil
	}
	return "", cdpr.Geometryf(-1, "view", "unknown view %q (want xy, xz or yz)", s)
}

// Project returns the 2D coordinates of p in the view.
func (v View) Project(p r3.Vec) (x, y float64) {
	switch v {
	case ViewXZ:
		return p.X, p.Z
	case ViewYZ:
		return p.Y, p.Z
	}
	return p.X, p.Y
}

// Labels returns the axis names.
func (v View) Labels() (x, y string) {
	s := string(v)
	if len(s) != 2 {
		return "x", "y"
	}
	return s[:1], s[1:]
}

// Palette cycles over cable colors.
var Palette = []string{"#00ffff", "#ff00ff", "#00ff88", "#ffaa00", "#4488ff", "#ff4444", "#ffff66", "#aa66ff"}

// frame maps world points to pixels with the same scale on both axes.
type frame struct {
	view          View
	minX, minY    float64
	scale         float64
	width, height float64
}

func newFrame(lines [][]r3.Vec, view View, width, height int) frame {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, l := range lines {
		for _, p := range l {
			x, y := view.Project(p)
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	scale := math.Min(float64(width)/rangeX, float64(height)/rangeY)
	// centre the drawing on the unused axis
	minX -= (float64(width)/scale - rangeX) / 2
	minY -= (float64(height)/scale - rangeY) / 2
	return frame{view: view, minX: minX, minY: minY, scale: scale, width: float64(width), height: float64(height)}
}

func (f frame) pixel(p r3.Vec) (float64, float64) {
	x, y := f.view.Project(p)
	return (x - f.minX) * f.scale, f.height - (y-f.minY)*f.scale
}

// CablesToSVG draws each polyline in its own color and marks both of its
// end points.
func CablesToSVG(lines [][]r3.Vec, view View, width, height int) string {
	n := 0
	for _, l := range lines {
		n += len(l)
	}
	if n < 2 {
		return ""
	}
	f := newFrame(lines, view, width, height)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, l := range lines {
		if len(l) == 0 {
			continue
		}
		color := Palette[i%len(Palette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for j, p := range l {
			x, y := f.pixel(p)
			if j == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			}
		}
		sb.WriteString("\"/>\n")

		for _, p := range []r3.Vec{l[0], l[len(l)-1]} {
			x, y := f.pixel(p)
			sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>
`, x, y, color))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}
