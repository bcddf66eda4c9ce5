package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

var sample = [][]r3.Vec{
	{{X: 0, Y: 0, Z: 3}, {X: 1, Y: 1, Z: 1}},
	{{X: 4, Y: 0, Z: 3}, {X: 3, Y: 2, Z: 1.5}, {X: 2.2, Y: 1.8, Z: 1}},
}

func TestParseView(t *testing.T) {
	tests := []struct {
		in      string
		want    View
		wantErr bool
	}{
		{"xy", ViewXY, false},
		{"XZ", ViewXZ, false},
		{"yz", ViewYZ, false},
		{"zx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseView(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseView(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestProject(t *testing.T) {
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	if x, y := ViewYZ.Project(p); x != 2 || y != 3 {
		t.Errorf("yz projection = (%v, %v)", x, y)
	}
	if x, y := ViewXZ.Labels(); x != "x" || y != "z" {
		t.Errorf("labels = %s, %s", x, y)
	}
}

func TestCablesToSVG(t *testing.T) {
	svg := CablesToSVG(sample, ViewXZ, 400, 300)
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("not an svg document")
	}
	if n := strings.Count(svg, "<path"); n != 2 {
		t.Errorf("expected 2 paths, got %d", n)
	}
	if n := strings.Count(svg, "<circle"); n != 4 {
		t.Errorf("expected 4 end markers, got %d", n)
	}
	if !strings.Contains(svg, Palette[1]) {
		t.Error("second cable should use the second palette color")
	}

	if CablesToSVG([][]r3.Vec{{{X: 1}}}, ViewXY, 100, 100) != "" {
		t.Error("a single point should not render")
	}
}

func TestFrameKeepsAspect(t *testing.T) {
	f := newFrame(sample, ViewXY, 400, 200)
	ax, ay := f.pixel(r3.Vec{})
	bx, by := f.pixel(r3.Vec{X: 1, Y: 1})
	if dx, dy := bx-ax, ay-by; dx <= 0 || math.Abs(dx-dy) > 1e-9 {
		t.Errorf("unit square maps to %v x %v pixels", dx, dy)
	}
	for _, l := range sample {
		for _, p := range l {
			x, y := f.pixel(p)
			if x < 0 || x > 400 || y < 0 || y > 200 {
				t.Errorf("%v maps outside the canvas: (%v, %v)", p, x, y)
			}
		}
	}
}

func TestSavePNG(t *testing.T) {
	p, err := CablesPlot(sample, ViewXZ, "cables")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out", "cables.png")
	if err := SavePNG(p, 3, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Error("output is not a png")
	}
}
