package viz

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Camera is an orbiting perspective camera looking at Target.
type Camera struct {
	Target     r3.Vec
	Distance   float64
	RotX, RotZ float64
	Zoom       float64
}

func NewCamera() *Camera {
	return &Camera{Distance: 50, RotX: -1.1, RotZ: 0.6, Zoom: 1}
}

func (c *Camera) Orbit(dx, dz float64) {
	c.RotX = math.Max(-math.Pi, math.Min(0, c.RotX+dx))
	c.RotZ += dz
}
func (c *Camera) ZoomIn()  { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut() { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// Fit centres the camera on the lines and sets the zoom so they fill the
// view.
func (c *Camera) Fit(lines [][]r3.Vec) {
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Scale(-1, lo)
	n := 0
	for _, l := range lines {
		for _, p := range l {
			lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
			hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
			n++
		}
	}
	if n == 0 {
		return
	}
	c.Target = r3.Scale(0.5, r3.Add(lo, hi))
	if size := r3.Norm(r3.Sub(hi, lo)); size > 0 {
		c.Zoom = 2 / size
	}
}

// view rotates a world point into camera coordinates, z toward the viewer.
func (c *Camera) view(p r3.Vec) r3.Vec {
	p = r3.Scale(c.Zoom, r3.Sub(p, c.Target))
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p.X, p.Y = p.X*cz-p.Y*sz, p.X*sz+p.Y*cz
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	return p
}

// Project converts a world point to sub-pixel coordinates on a sw x sh
// canvas. Returns x, y and whether the point is in front of the camera.
func (c *Camera) Project(p r3.Vec, sw, sh int) (int, int, bool) {
	v := c.view(p)
	if v.Z >= c.Distance-0.1 {
		return 0, 0, false
	}
	scale := c.Distance / (c.Distance - v.Z)
	pScale := math.Min(float64(sw), float64(sh)) / 2.5
	sx := int(v.X*scale*pScale) + sw/2
	sy := int(-v.Y*scale*pScale) + sh/2
	return sx, sy, true
}

// RenderLines draws each polyline segment visible to the camera.
func RenderLines(c *Canvas, lines [][]r3.Vec, cam *Camera) {
	if c == nil || cam == nil {
		return
	}
	sw, sh := c.Pixels()
	for _, l := range lines {
		for i := 1; i < len(l); i++ {
			x0, y0, ok0 := cam.Project(l[i-1], sw, sh)
			x1, y1, ok1 := cam.Project(l[i], sw, sh)
			if ok0 && ok1 {
				c.DrawLine(x0, y0, x1, y1)
			}
		}
		if len(l) == 1 {
			if x, y, ok := cam.Project(l[0], sw, sh); ok {
				c.Set(x, y)
			}
		}
	}
}
