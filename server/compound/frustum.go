package compound

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/resources"
)

var forward = fabric.Vector3{Z: -1}

// FocusRatio returns the cyclop eye and the factor moving the projection
// surface of view onto the focal plane of its observer.
func FocusRatio(view *resources.View) (fabric.Vector3, float32) {
	observer := view.Observer()
	if observer == nil || observer.FocusMode() == resources.FocusFixed {
		return fabric.Vector3{}, 1
	}
	eye := observer.EyeWorldPosition(fabric.EyeCyclop)
	wall, ok := view.Frustum().EffectiveWall()
	if !ok {
		return eye, 1
	}
	w := wall.Normal()
	denom := forward.Dot(w)
	if denom == 0 {
		return eye, 1
	}
	distance := wall.BottomLeft.Sub(fabric.Vector3{}).Dot(w) / denom
	if distance <= 0 {
		return eye, 1
	}
	distance += eye.Z
	focus := observer.FocusDistance() + eye.Z
	if float32(math.Abs(float64(distance))) <= fabric.Epsilon {
		distance = 2 * fabric.Epsilon
	}
	return eye, focus / distance
}

// UpdateFrustum derives the wall of a destination compound from its view
// or, without a view frustum, from its segment, and distributes the view
// overdraw onto the channel.
func (c *Compound) UpdateFrustum(eye fabric.Vector3, ratio float32) {
	if !c.IsDestination() {
		return
	}
	channel := c.Channel()
	segment := channel.Segment()
	view := channel.View()
	if segment == nil || view == nil {
		return
	}

	if setting := view.Frustum(); setting.Type != resources.FrustumNone {
		wall, _ := setting.EffectiveWall()
		coverage := view.Viewport().Coverage(segment.Viewport())
		wall = wall.Apply(coverage).MoveFocus(eye, ratio)
		wall = c.updateOverdraw(wall).Scale(view.ModelUnit())
		c.setFrustum(setting.Type, wall, setting.Projection)
		return
	}

	setting := segment.Frustum()
	wall, ok := setting.EffectiveWall()
	if !ok {
		log.WithFields(c.fields()).Warn("Destination without view or segment frustum")
		return
	}
	output := segment.Channel()
	if output == nil {
		output = channel
	}
	coverage := output.Viewport().Coverage(channel.Viewport())
	wall = wall.MoveFocus(eye, ratio).Apply(coverage)
	wall = c.updateOverdraw(wall).Scale(view.ModelUnit())
	c.setFrustum(setting.Type, wall, setting.Projection)
}

func (c *Compound) setFrustum(kind resources.FrustumType, wall fabric.Wall, projection fabric.Projection) {
	if kind == resources.FrustumProjection {
		c.SetProjection(projection.FromWall(wall))
		return
	}
	c.SetWall(wall)
}

// updateOverdraw computes the pixel border the channel renders beyond its
// segment where the view extends past it, shares it between both edges
// when it exceeds the channel's maximum size, and widens wall accordingly.
func (c *Compound) updateOverdraw(wall fabric.Wall) fabric.Wall {
	channel := c.Channel()
	segmentVP := channel.Segment().Viewport()
	viewVP := channel.View().Viewport()
	overdraw := channel.View().Overdraw()
	var o fabric.Vector4i

	if overdraw.X != 0 && viewVP.X < segmentVP.X {
		o.X = overdraw.X
	}
	if overdraw.X != 0 && viewVP.XEnd() > segmentVP.XEnd() {
		o.Z = overdraw.X
	}
	if overdraw.Y != 0 && viewVP.Y < segmentVP.Y {
		o.Y = overdraw.Y
	}
	if overdraw.Y != 0 && viewVP.YEnd() > segmentVP.YEnd() {
		o.W = overdraw.Y
	}

	pvp := channel.PixelViewport()
	if maxSize := channel.MaxSize(); maxSize != (fabric.Vector2i{}) {
		o.X, o.Z = shareOverdraw(o.X, o.Z, pvp.W, maxSize.X)
		o.Y, o.W = shareOverdraw(o.Y, o.W, pvp.H, maxSize.Y)
	}

	if o.X > 0 {
		wall = wall.ResizeLeft(float32(pvp.W+o.X) / float32(pvp.W))
	}
	if o.Z > 0 {
		wall = wall.ResizeRight(float32(pvp.W+o.X+o.Z) / float32(pvp.W+o.X))
	}
	if o.Y > 0 {
		wall = wall.ResizeBottom(float32(pvp.H+o.Y) / float32(pvp.H))
	}
	if o.W > 0 {
		wall = wall.ResizeTop(float32(pvp.H+o.Y+o.W) / float32(pvp.H+o.Y))
	}
	channel.SetOverdraw(o)
	return wall
}

// shareOverdraw scales the two borders of one axis down proportionally so
// that size plus both borders fits max. The far edge gets the remainder of
// the rounded near edge.
func shareOverdraw(near, far, size, max int32) (int32, int32) {
	total := near + far
	if total == 0 || total+size <= max {
		return near, far
	}
	room := max - size
	if room < 0 {
		room = 0
	}
	ratio := float32(room) / float32(total)
	near = int32(float32(near)*ratio + .5)
	return near, room - near
}

// SetupRenderContext fills the decomposition and projection of c for eye.
func (c *Compound) SetupRenderContext(eye fabric.Eye) fabric.RenderContext {
	ctx := fabric.NewRenderContext()
	ctx.PVP = c.inherit.PVP
	ctx.Overdraw = c.inherit.Overdraw
	ctx.VP = c.inherit.VP
	ctx.Range = c.inherit.Range
	ctx.Pixel = c.inherit.Pixel
	ctx.SubPixel = c.inherit.SubPixel
	ctx.Zoom = c.inherit.Zoom
	ctx.Period = c.inherit.Period
	ctx.Phase = c.inherit.Phase
	ctx.Offset = fabric.Vector2i{X: ctx.PVP.X, Y: ctx.PVP.Y}
	ctx.Eye = eye
	ctx.TaskID = c.taskID
	c.ComputeFrustum(&ctx)
	return ctx
}

// ComputeFrustum sets the perspective and orthographic frusta and head
// transforms of ctx for its eye.
func (c *Compound) ComputeFrustum(ctx *fabric.RenderContext) {
	data := c.inherit.Frustum
	eyeWall := data.Transform.TransformPoint(c.eyePosition(ctx.Eye))

	ctx.Frustum = c.frustumCorners(data, eyeWall, false, ctx.VP)
	ctx.HeadTransform = data.HeadTransform(eyeWall)

	cyclopWall := data.Transform.TransformPoint(c.eyePosition(fabric.EyeCyclop))
	ctx.Ortho = c.frustumCorners(data, cyclopWall, true, ctx.VP)
	ctx.OrthoTransform = data.HeadTransform(eyeWall)
	if eyeWall.Z != 0 {
		// stereo shear
		ctx.OrthoTransform[8] += (cyclopWall.X - eyeWall.X) / eyeWall.Z
		ctx.OrthoTransform[9] += (cyclopWall.Y - eyeWall.Y) / eyeWall.Z
	}

	if data.Type != fabric.WallFixed {
		inverse := c.inverseHeadMatrix()
		ctx.HeadTransform = ctx.HeadTransform.Mul(inverse)
		ctx.OrthoTransform = ctx.OrthoTransform.Mul(inverse)
	}
}

// ComputeTileFrustum returns the frustum of the sub-viewport vp for eye.
func (c *Compound) ComputeTileFrustum(eye fabric.Eye, vp fabric.Viewport, ortho bool) fabric.Frustum {
	data := c.inherit.Frustum
	eyeWall := data.Transform.TransformPoint(c.eyePosition(eye))
	return c.frustumCorners(data, eyeWall, ortho, vp)
}

// eyePosition is eye in world coordinates: from the observer of the
// destination view, or offset by half the eye base along x.
func (c *Compound) eyePosition(eye fabric.Eye) fabric.Vector3 {
	modelUnit := float32(1)
	var observer *resources.Observer
	if ch := c.inherit.Channel; ch != nil && ch.View() != nil {
		modelUnit = ch.View().ModelUnit()
		observer = ch.View().Observer()
	}
	if observer != nil {
		if c.inherit.Frustum.Type == fabric.WallFixed {
			return observer.EyeWorldPosition(eye).Scale(modelUnit)
		}
		return observer.EyePosition(eye).Scale(modelUnit)
	}

	half := .5 * modelUnit * c.tree.defaults.EyeBase
	switch eye {
	case fabric.EyeLeft:
		return fabric.Vector3{X: -half}
	case fabric.EyeRight:
		return fabric.Vector3{X: half}
	}
	return fabric.Vector3{}
}

func (c *Compound) inverseHeadMatrix() fabric.Matrix4 {
	if ch := c.inherit.Channel; ch != nil && ch.View() != nil && ch.View().Observer() != nil {
		return ch.View().Observer().HeadMatrix().InverseRigid()
	}
	return fabric.Identity4
}

// frustumCorners projects the wall onto the near plane as seen from eye,
// jitters it for pixel decompositions and narrows it to vp.
func (c *Compound) frustumCorners(data fabric.FrustumData, eye fabric.Vector3, ortho bool, vp fabric.Viewport) fabric.Frustum {
	frustum := fabric.DefaultFrustum
	if ch := c.inherit.Channel; ch != nil {
		frustum.Near, frustum.Far = ch.NearFar()
	}

	ratio := float32(1)
	if !ortho && eye.Z != 0 {
		ratio = frustum.Near / eye.Z
	}
	w2 := data.Width * .5
	h2 := data.Height * .5
	if eye.Z > 0 || ortho {
		frustum.Left = (-w2 - eye.X) * ratio
		frustum.Right = (w2 - eye.X) * ratio
		frustum.Bottom = (-h2 - eye.Y) * ratio
		frustum.Top = (h2 - eye.Y) * ratio
	} else {
		// eye behind the wall: mirror
		frustum.Left = (w2 - eye.X) * ratio
		frustum.Right = (-w2 - eye.X) * ratio
		frustum.Bottom = (h2 + eye.Y) * ratio
		frustum.Top = (-h2 + eye.Y) * ratio
	}

	pixel := c.inherit.Pixel
	if pixel != fabric.PixelAll && pixel.IsValid() && c.inherit.Channel != nil {
		dest := c.inherit.Channel.PixelViewport()
		if pixel.W > 1 && dest.W > 0 {
			pixelWidth := (frustum.Right - frustum.Left) / float32(dest.W)
			jitter := pixelWidth*float32(pixel.X) - pixelWidth*.5
			frustum.Left += jitter
			frustum.Right += jitter
		}
		if pixel.H > 1 && dest.H > 0 {
			pixelHeight := (frustum.Bottom - frustum.Top) / float32(dest.H)
			jitter := pixelHeight*float32(pixel.Y) + pixelHeight*.5
			frustum.Top -= jitter
			frustum.Bottom -= jitter
		}
	}

	if vp != fabric.FullViewport && vp.IsValid() {
		width := frustum.Right - frustum.Left
		frustum.Left += width * vp.X
		frustum.Right = frustum.Left + width*vp.W
		height := frustum.Top - frustum.Bottom
		frustum.Bottom += height * vp.Y
		frustum.Top = frustum.Bottom + height*vp.H
	}
	return frustum
}
