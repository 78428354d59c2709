package fabric

import (
	"fmt"
	"math"
)

// Epsilon is the smallest float32 step used to correct rounding when
// splitting normalized regions.
const Epsilon float32 = 1.1920929e-07

// Viewport is a fractional rectangle of a parent region, (0,0,1,1) being the
// whole parent.
type Viewport struct {
	X, Y, W, H float32
}

// FullViewport covers the whole parent region.
var FullViewport = Viewport{0, 0, 1, 1}

func (v Viewport) XEnd() float32 { return v.X + v.W }
func (v Viewport) YEnd() float32 { return v.Y + v.H }

func (v Viewport) IsValid() bool {
	return v.X >= 0 && v.Y >= 0 && v.W >= 0 && v.H >= 0
}

func (v Viewport) HasArea() bool { return v.W > 0 && v.H > 0 }

func (v Viewport) IsFull() bool { return v == FullViewport }

// Apply narrows v to the sub-rectangle rhs of v.
func (v Viewport) Apply(rhs Viewport) Viewport {
	v.X += rhs.X * v.W
	v.Y += rhs.Y * v.H
	v.W *= rhs.W
	v.H *= rhs.H
	return v
}

// Transform expresses v relative to rhs, the inverse of Apply.
func (v Viewport) Transform(rhs Viewport) Viewport {
	v.W /= rhs.W
	v.H /= rhs.H
	v.X = (v.X - rhs.X) / rhs.W
	v.Y = (v.Y - rhs.Y) / rhs.H
	return v
}

// Intersect returns the overlap of v and rhs, or an empty viewport.
func (v Viewport) Intersect(rhs Viewport) Viewport {
	if v == rhs {
		return v
	}
	if rhs.X >= v.XEnd() || v.X >= rhs.XEnd() || rhs.Y >= v.YEnd() || v.Y >= rhs.YEnd() {
		return Viewport{}
	}
	x := max32(v.X, rhs.X)
	y := max32(v.Y, rhs.Y)
	return Viewport{x, y, min32(v.XEnd(), rhs.XEnd()) - x, min32(v.YEnd(), rhs.YEnd()) - y}
}

// Coverage returns the part of v covered by rhs, expressed relative to v.
func (v Viewport) Coverage(rhs Viewport) Viewport {
	cov := v.Intersect(rhs)
	if !cov.HasArea() {
		return cov
	}
	return cov.Transform(v)
}

// ApplyView maps v, relative to the part of view covered by segment, into
// view coordinates. pvp is the destination pixel viewport and overdraw the
// pixels it renders beyond it on each side (left, bottom, right, top).
func (v Viewport) ApplyView(segment, view Viewport, pvp PixelViewport, overdraw Vector4i) Viewport {
	contribution := segment.Intersect(view).Transform(view)
	if pvp.W > 0 && pvp.H > 0 {
		w := float32(pvp.W)
		h := float32(pvp.H)
		left := float32(overdraw.X) / w * contribution.W
		bottom := float32(overdraw.Y) / h * contribution.H
		contribution.X -= left
		contribution.Y -= bottom
		contribution.W += left + float32(overdraw.Z)/w*contribution.W
		contribution.H += bottom + float32(overdraw.W)/h*contribution.H
	}
	return contribution.Apply(v)
}

func (v Viewport) String() string {
	return fmt.Sprintf("[%g %g %g %g]", v.X, v.Y, v.W, v.H)
}

func min32(a, b float32) float32 { return float32(math.Min(float64(a), float64(b))) }
func max32(a, b float32) float32 { return float32(math.Max(float64(a), float64(b))) }
func abs32(a float32) float32    { return float32(math.Abs(float64(a))) }
