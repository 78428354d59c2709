package fabric

import "fmt"

// PixelViewport is an absolute rectangle in window pixels.
type PixelViewport struct {
	X, Y, W, H int32
}

func (p PixelViewport) XEnd() int32 { return p.X + p.W }
func (p PixelViewport) YEnd() int32 { return p.Y + p.H }

func (p PixelViewport) IsValid() bool { return p.W >= 0 && p.H >= 0 }
func (p PixelViewport) HasArea() bool { return p.W > 0 && p.H > 0 }

// Apply narrows p to the fractional viewport vp. The end edges are rounded
// independently so that adjacent viewports tile without gaps.
func (p PixelViewport) Apply(vp Viewport) PixelViewport {
	w := float32(p.W)
	h := float32(p.H)
	xEnd := p.X + int32((vp.X+vp.W)*w)
	yEnd := p.Y + int32((vp.Y+vp.H)*h)
	p.X += int32(w * vp.X)
	p.Y += int32(h * vp.Y)
	p.W = xEnd - p.X
	p.H = yEnd - p.Y
	return p
}

// ApplyPixel shrinks p to the pixels one source of a pixel decomposition
// renders.
func (p PixelViewport) ApplyPixel(pixel Pixel) PixelViewport {
	if pixel.W > 1 {
		w := p.W / int32(pixel.W)
		if p.W-w*int32(pixel.W) > int32(pixel.X) {
			w++
		}
		p.W = w
	}
	if pixel.H > 1 {
		h := p.H / int32(pixel.H)
		if p.H-h*int32(pixel.H) > int32(pixel.Y) {
			h++
		}
		p.H = h
	}
	return p
}

// ApplyZoom scales the size of p by zoom, rounding to the nearest pixel.
func (p PixelViewport) ApplyZoom(zoom Zoom) PixelViewport {
	if zoom == ZoomNone {
		return p
	}
	p.W = int32(float32(p.W)*zoom.X + .5)
	p.H = int32(float32(p.H)*zoom.Y + .5)
	return p
}

// ZoomFrom is the scale factor between rhs and p.
func (p PixelViewport) ZoomFrom(rhs PixelViewport) Zoom {
	if p == rhs || rhs.W == 0 || rhs.H == 0 {
		return ZoomNone
	}
	return Zoom{float32(p.W) / float32(rhs.W), float32(p.H) / float32(rhs.H)}
}

// Intersect returns the overlap of p and rhs, or an empty rectangle.
func (p PixelViewport) Intersect(rhs PixelViewport) PixelViewport {
	if rhs.X >= p.XEnd() || p.X >= rhs.XEnd() || rhs.Y >= p.YEnd() || p.Y >= rhs.YEnd() {
		return PixelViewport{}
	}
	x := maxI32(p.X, rhs.X)
	y := maxI32(p.Y, rhs.Y)
	return PixelViewport{x, y, minI32(p.XEnd(), rhs.XEnd()) - x, minI32(p.YEnd(), rhs.YEnd()) - y}
}

// SubViewport returns rhs as a fraction of p.
func (p PixelViewport) SubViewport(rhs PixelViewport) Viewport {
	if p == rhs || !p.HasArea() {
		return FullViewport
	}
	return Viewport{
		X: float32(rhs.X-p.X) / float32(p.W),
		Y: float32(rhs.Y-p.Y) / float32(p.H),
		W: float32(rhs.W) / float32(p.W),
		H: float32(rhs.H) / float32(p.H),
	}
}

func (p PixelViewport) String() string {
	return fmt.Sprintf("[%d %d %d %d]", p.X, p.Y, p.W, p.H)
}

func minI32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
