package fabric

import (
	"fmt"
	"math"
)

// Frustum holds the near-plane extents of a projection.
type Frustum struct {
	Left, Right, Bottom, Top, Near, Far float32
}

// DefaultFrustum is the projection used when a channel does not set one.
var DefaultFrustum = Frustum{-1, 1, -1, 1, .1, 100}

func (f Frustum) String() string {
	return fmt.Sprintf("[%g %g %g %g %g %g]", f.Left, f.Right, f.Bottom, f.Top, f.Near, f.Far)
}

// WallType tells whether a wall is fixed in the room or moves with the head.
type WallType int

const (
	WallFixed WallType = iota
	WallHMD
)

// Wall describes a projection surface by three of its corners.
type Wall struct {
	BottomLeft  Vector3
	BottomRight Vector3
	TopLeft     Vector3
	Type        WallType
}

// DefaultWall is a 1.6 x 1 surface one unit in front of the origin.
var DefaultWall = Wall{
	BottomLeft:  Vector3{-.8, -.5, -1},
	BottomRight: Vector3{.8, -.5, -1},
	TopLeft:     Vector3{-.8, .5, -1},
}

func (w Wall) Width() float32  { return w.BottomRight.Sub(w.BottomLeft).Length() }
func (w Wall) Height() float32 { return w.TopLeft.Sub(w.BottomLeft).Length() }

// Normal is the unit vector perpendicular to the wall.
func (w Wall) Normal() Vector3 {
	return w.BottomRight.Sub(w.BottomLeft).Cross(w.TopLeft.Sub(w.BottomLeft)).Normalize()
}

// Apply narrows the wall to the fractional viewport vp.
func (w Wall) Apply(vp Viewport) Wall {
	u := w.BottomRight.Sub(w.BottomLeft)
	v := w.TopLeft.Sub(w.BottomLeft)
	w.BottomLeft = w.BottomLeft.Add(u.Scale(vp.X)).Add(v.Scale(vp.Y))
	w.BottomRight = w.BottomLeft.Add(u.Scale(vp.W))
	w.TopLeft = w.BottomLeft.Add(v.Scale(vp.H))
	return w
}

// MoveFocus moves the wall along the eye rays by ratio.
func (w Wall) MoveFocus(eye Vector3, ratio float32) Wall {
	if ratio == 1 {
		return w
	}
	w.BottomLeft = eye.Add(w.BottomLeft.Sub(eye).Scale(ratio))
	w.BottomRight = eye.Add(w.BottomRight.Sub(eye).Scale(ratio))
	w.TopLeft = eye.Add(w.TopLeft.Sub(eye).Scale(ratio))
	return w
}

// Scale converts the wall into model units.
func (w Wall) Scale(ratio float32) Wall {
	if ratio == 1 {
		return w
	}
	w.BottomLeft = w.BottomLeft.Scale(ratio)
	w.BottomRight = w.BottomRight.Scale(ratio)
	w.TopLeft = w.TopLeft.Scale(ratio)
	return w
}

func (w Wall) ResizeLeft(ratio float32) Wall {
	if ratio == 1 || ratio < 0 {
		return w
	}
	delta := w.BottomRight.Sub(w.BottomLeft).Scale(ratio - 1)
	w.BottomLeft = w.BottomLeft.Sub(delta)
	w.TopLeft = w.TopLeft.Sub(delta)
	return w
}

func (w Wall) ResizeRight(ratio float32) Wall {
	if ratio == 1 || ratio < 0 {
		return w
	}
	delta := w.BottomRight.Sub(w.BottomLeft).Scale(ratio - 1)
	w.BottomRight = w.BottomRight.Add(delta)
	return w
}

func (w Wall) ResizeBottom(ratio float32) Wall {
	if ratio == 1 || ratio < 0 {
		return w
	}
	delta := w.TopLeft.Sub(w.BottomLeft).Scale(ratio - 1)
	w.BottomLeft = w.BottomLeft.Sub(delta)
	w.BottomRight = w.BottomRight.Sub(delta)
	return w
}

func (w Wall) ResizeTop(ratio float32) Wall {
	if ratio == 1 || ratio < 0 {
		return w
	}
	delta := w.TopLeft.Sub(w.BottomLeft).Scale(ratio - 1)
	w.TopLeft = w.TopLeft.Add(delta)
	return w
}

func (w Wall) String() string {
	return fmt.Sprintf("wall{bl %v br %v tl %v}", w.BottomLeft, w.BottomRight, w.TopLeft)
}

// Projection describes a projector by origin, throw distance, field of
// view and heading/pitch/roll, all angles in degrees.
type Projection struct {
	Origin   Vector3
	Distance float32
	FOV      [2]float32
	HPR      [3]float32
}

// DefaultProjection matches DefaultWall.
var DefaultProjection = Projection{Distance: 1, FOV: [2]float32{77.31962, 53.13010}}

// ToWall converts the projection into the equivalent wall.
func (p Projection) ToWall() Wall {
	width := float32(math.Abs(float64(p.Distance) * 2 * math.Tan(deg2rad(.5*p.FOV[0]))))
	height := float32(math.Abs(float64(p.Distance) * 2 * math.Tan(deg2rad(.5*p.FOV[1]))))

	bl := Vector3{-width * .5, -height * .5, 0}
	br := Vector3{width * .5, -height * .5, 0}
	tl := Vector3{-width * .5, height * .5, 0}

	cosP, sinP := float32(math.Cos(deg2rad(p.HPR[1]))), float32(math.Sin(deg2rad(p.HPR[1])))
	cosH, sinH := float32(math.Cos(deg2rad(p.HPR[0]))), float32(math.Sin(deg2rad(p.HPR[0])))
	cosR, sinR := float32(math.Cos(deg2rad(p.HPR[2]))), float32(math.Sin(deg2rad(p.HPR[2])))
	cosPsinH := cosP * sinH
	sinPsinH := sinP * sinH

	// Row-major 3x3 rotation.
	m := [9]float32{
		cosH * cosR, -cosH * sinR, -sinH,
		-sinPsinH*cosR + cosP*sinR, sinPsinH*sinR + cosP*cosR, -sinP * cosH,
		cosPsinH*cosR + sinP*sinR, -cosPsinH*sinR + sinP*cosR, cosP * cosH,
	}
	rotate := func(v Vector3) Vector3 {
		return Vector3{
			m[0]*v.X + m[3]*v.Y + m[6]*v.Z,
			m[1]*v.X + m[4]*v.Y + m[7]*v.Z,
			m[2]*v.X + m[5]*v.Y + m[8]*v.Z,
		}
	}
	w := Vector3{m[6], m[7], m[8]}
	shift := p.Origin.Add(w.Scale(p.Distance))
	return Wall{
		BottomLeft:  rotate(bl).Add(shift),
		BottomRight: rotate(br).Add(shift),
		TopLeft:     rotate(tl).Add(shift),
	}
}

// FromWall returns a projection with the distance of p spanning wall.
func (p Projection) FromWall(wall Wall) Projection {
	u := wall.BottomRight.Sub(wall.BottomLeft)
	v := wall.TopLeft.Sub(wall.BottomLeft)
	width := u.Length()
	height := v.Length()
	center := wall.BottomLeft.Add(u.Scale(.5)).Add(v.Scale(.5))
	normal := u.Cross(v).Normalize()
	if p.Distance <= 0 {
		p.Distance = 1
	}
	p.Origin = center.Sub(normal.Scale(p.Distance))
	p.FOV[0] = float32(2 * math.Atan(float64(width*.5/p.Distance)) * 180 / math.Pi)
	p.FOV[1] = float32(2 * math.Atan(float64(height*.5/p.Distance)) * 180 / math.Pi)
	return p
}

func deg2rad(deg float32) float64 { return float64(deg) * math.Pi / 180 }

// FrustumData is the wall in normalized form: its size and the transform
// from world into wall space, the wall centered at the origin.
type FrustumData struct {
	Width     float32
	Height    float32
	Transform Matrix4
	Type      WallType
}

// NewFrustumData computes the wall-space transform for wall.
func NewFrustumData(wall Wall) FrustumData {
	u := wall.BottomRight.Sub(wall.BottomLeft)
	v := wall.TopLeft.Sub(wall.BottomLeft)
	width := u.Length()
	height := v.Length()
	u = u.Normalize()
	v = v.Normalize()
	w := u.Cross(v)
	center := wall.BottomLeft.Add(wall.BottomRight.Sub(wall.BottomLeft).Scale(.5)).
		Add(wall.TopLeft.Sub(wall.BottomLeft).Scale(.5))

	xfm := Matrix4{
		u.X, v.X, w.X, 0,
		u.Y, v.Y, w.Y, 0,
		u.Z, v.Z, w.Z, 0,
		-u.Dot(center), -v.Dot(center), -w.Dot(center), 1,
	}
	return FrustumData{Width: width, Height: height, Transform: xfm, Type: wall.Type}
}

// HeadTransform returns the view matrix for an eye at eye in wall space.
func (d FrustumData) HeadTransform(eye Vector3) Matrix4 {
	var out Matrix4
	x := d.Transform
	for i := 0; i < 16; i += 4 {
		out[i] = x[i] - eye.X*x[i+3]
		out[i+1] = x[i+1] - eye.Y*x[i+3]
		out[i+2] = x[i+2] - eye.Z*x[i+3]
		out[i+3] = x[i+3]
	}
	return out
}
