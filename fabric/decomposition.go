package fabric

import "fmt"

// Pixel selects one sample of a W x H pixel-interleaved decomposition.
type Pixel struct {
	X, Y, W, H uint32
}

// PixelAll renders every pixel.
var PixelAll = Pixel{0, 0, 1, 1}

func (p Pixel) IsValid() bool { return p.W > 0 && p.X < p.W && p.H > 0 && p.Y < p.H }

func (p Pixel) Apply(rhs Pixel) Pixel {
	if !p.IsValid() || !rhs.IsValid() {
		return p
	}
	p.X += rhs.X * p.W
	p.W *= rhs.W
	p.Y += rhs.Y * p.H
	p.H *= rhs.H
	return p
}

func (p Pixel) String() string { return fmt.Sprintf("[%d %d %d %d]", p.X, p.Y, p.W, p.H) }

// SubPixel selects one of Size jittered samples.
type SubPixel struct {
	Index, Size uint32
}

// SubPixelAll renders without subpixel decomposition.
var SubPixelAll = SubPixel{0, 1}

func (s SubPixel) IsValid() bool { return s.Size > 0 && s.Index < s.Size }

func (s SubPixel) Apply(rhs SubPixel) SubPixel {
	if !s.IsValid() || !rhs.IsValid() {
		return s
	}
	s.Index = s.Index*rhs.Size + rhs.Index
	s.Size *= rhs.Size
	return s
}

// Zoom scales the rendered resolution of a region.
type Zoom struct {
	X, Y float32
}

var (
	ZoomNone    = Zoom{1, 1}
	ZoomInvalid = Zoom{0, 0}
)

func (z Zoom) IsValid() bool { return z.X != 0 && z.Y != 0 }

// Validate replaces an invalid zoom with ZoomNone.
func (z Zoom) Validate() Zoom {
	if !z.IsValid() {
		return ZoomNone
	}
	return z
}

func (z Zoom) Apply(rhs Zoom) Zoom {
	return Zoom{z.X * rhs.X, z.Y * rhs.Y}
}

func (z Zoom) Invert() Zoom {
	if !z.IsValid() {
		return z
	}
	return Zoom{1 / z.X, 1 / z.Y}
}

func (z Zoom) String() string { return fmt.Sprintf("[%g %g]", z.X, z.Y) }
