package export

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

func rgb(hex string) color.RGBA {
	var r, g, b uint8
	fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// CablesPlot builds a gonum plot of the polylines in the view.
func CablesPlot(lines [][]r3.Vec, view View, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	xl, yl := view.Labels()
	p.X.Label.Text = xl + " (m)"
	p.Y.Label.Text = yl + " (m)"
	p.Add(plotter.NewGrid())

	for i, l := range lines {
		if len(l) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(l))
		for j, v := range l {
			pts[j].X, pts[j].Y = view.Project(v)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("cable %d: %w", i, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = rgb(Palette[i%len(Palette)])
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("cable %d", i), line)
	}
	// equal axis scale
	dx, dy := p.X.Max-p.X.Min, p.Y.Max-p.Y.Min
	if dx > dy {
		c := (p.Y.Max + p.Y.Min) / 2
		p.Y.Min, p.Y.Max = c-dx/2, c+dx/2
	} else {
		c := (p.X.Max + p.X.Min) / 2
		p.X.Min, p.X.Max = c-dy/2, c+dy/2
	}
	return p, nil
}

// SavePNG renders p to a square PNG of the given size in inches.
func SavePNG(p *plot.Plot, sizeIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	w := vg.Length(sizeIn) * vg.Inch

	c := vgimg.NewWith(
		vgimg.UseWH(w, w),
		vgimg.UseDPI(150),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
