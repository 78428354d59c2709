package compound

import "github.com/twitter/equalizer/fabric"

// UpdateInheritData recomputes the effective parameters of c for frame.
// Parents must be updated before their children.
func (c *Compound) UpdateInheritData(frame uint32) {
	if !c.data.Pixel.IsValid() {
		c.data.Pixel = fabric.PixelAll
	}
	if !c.data.SubPixel.IsValid() {
		c.data.SubPixel = fabric.SubPixelAll
	}
	c.data.Zoom = c.data.Zoom.Validate()

	if c.IsRoot() {
		c.updateInheritRoot()
	} else {
		c.updateInheritNode()
	}

	if c.inherit.Channel != nil {
		c.updateInheritStereo()
		c.updateInheritActive(frame)
	}

	if c.inherit.PVP.IsValid() {
		c.inherit.PVP = c.inherit.PVP.ApplyPixel(c.data.Pixel)

		// keep the zoom pixel-correct with the rounded pvp
		unzoomed := c.inherit.PVP
		c.inherit.PVP = c.inherit.PVP.ApplyZoom(c.data.Zoom)
		c.inherit.Zoom = c.inherit.Zoom.Apply(c.inherit.PVP.ZoomFrom(unzoomed))
	}

	c.UpdateInheritTasks()

	if !c.inherit.PVP.HasArea() || !c.inherit.Range.HasData() {
		c.inherit.Tasks = fabric.TaskNone
	}
}

func (c *Compound) updateInheritRoot() {
	oldPVP := c.inherit.PVP
	c.inherit = c.data
	c.inherit.PVP = oldPVP
	c.inherit.Zoom = fabric.ZoomNone
	c.updateInheritPVP()

	if !c.inherit.HasFrustum {
		wall := fabric.DefaultWall
		c.inherit.Frustum = fabric.NewFrustumData(wall)
		c.inherit.HasFrustum = true
	}

	if c.inherit.Channel != nil && c.inherit.Channel.View() == nil {
		c.inherit.Eyes = fabric.EyeCyclop
	} else if c.inherit.Eyes == fabric.EyeUndefined {
		c.inherit.Eyes = fabric.EyesAll
	}
	if c.inherit.Period == Undefined {
		c.inherit.Period = 1
	}
	if c.inherit.Phase == Undefined {
		c.inherit.Phase = 0
	}
	if c.inherit.Buffers == fabric.BufferUndefined {
		c.inherit.Buffers = fabric.BufferColor
	}
	if c.inherit.StereoMode == fabric.StereoUndefined {
		c.inherit.StereoMode = fabric.StereoAuto
	}
	defaults := c.tree.defaults
	if c.inherit.AnaglyphLeft == (fabric.ColorMask{}) {
		c.inherit.AnaglyphLeft = defaults.AnaglyphLeftMask
	}
	if c.inherit.AnaglyphRight == (fabric.ColorMask{}) {
		c.inherit.AnaglyphRight = defaults.AnaglyphRightMask
	}
}

func (c *Compound) updateInheritNode() {
	parent := c.Parent()
	oldPVP := c.inherit.PVP
	c.inherit = parent.inherit

	if c.inherit.Channel == nil {
		c.inherit.PVP = oldPVP
		c.updateInheritPVP()
		c.inherit.VP = c.inherit.VP.Apply(c.data.VP)
	} else if c.inherit.PVP.IsValid() {
		c.inherit.PVP = c.inherit.PVP.Apply(c.data.VP)

		// pixel-correct viewport for the frustum computation
		vp := parent.inherit.PVP.SubViewport(c.inherit.PVP)
		c.inherit.VP = c.inherit.VP.Apply(vp)
		c.updateInheritOverdraw(parent.inherit.PVP)
	}

	if c.data.HasFrustum {
		c.inherit.Frustum = c.data.Frustum
	}

	c.inherit.Range = c.inherit.Range.Apply(c.data.Range)
	c.inherit.Pixel = c.inherit.Pixel.Apply(c.data.Pixel)
	c.inherit.SubPixel = c.inherit.SubPixel.Apply(c.data.SubPixel)

	if c.data.Eyes != fabric.EyeUndefined {
		c.inherit.Eyes = c.data.Eyes
	} else if c.inherit.Channel != nil && c.inherit.Channel.View() == nil {
		c.inherit.Eyes = fabric.EyeCyclop
	}
	if c.data.Period != Undefined {
		c.inherit.Period = c.data.Period
	}
	if c.data.Phase != Undefined {
		c.inherit.Phase = c.data.Phase
	}
	c.inherit.MaxFPS = c.data.MaxFPS

	if c.data.Buffers != fabric.BufferUndefined {
		c.inherit.Buffers = c.data.Buffers
	}
	if c.data.StereoMode != fabric.StereoUndefined {
		c.inherit.StereoMode = c.data.StereoMode
	}
	if c.data.AnaglyphLeft != (fabric.ColorMask{}) {
		c.inherit.AnaglyphLeft = c.data.AnaglyphLeft
	}
	if c.data.AnaglyphRight != (fabric.ColorMask{}) {
		c.inherit.AnaglyphRight = c.data.AnaglyphRight
	}
}

// updateInheritPVP takes the pixel viewport of the channel configured on c,
// enlarged by its overdraw.
func (c *Compound) updateInheritPVP() {
	channel := c.data.Channel
	if channel == nil {
		return
	}
	oldPVP := c.inherit.PVP
	c.inherit.Channel = channel
	c.inherit.PVP = channel.PixelViewport()

	view := channel.View()
	if view == nil || !c.inherit.PVP.IsValid() {
		return
	}

	overdraw := channel.Overdraw()
	c.inherit.PVP.W += overdraw.X + overdraw.Z
	c.inherit.PVP.H += overdraw.Y + overdraw.W
	changed := oldPVP != c.inherit.PVP || c.viewVersion != view.Version()
	if changed && c.IsDestination() {
		c.viewVersion = view.Version()
		eye, ratio := FocusRatio(view)
		c.UpdateFrustum(eye, ratio)
		c.inherit.Frustum = c.data.Frustum
		c.inherit.HasFrustum = c.data.HasFrustum
		overdraw = channel.Overdraw()
		c.inherit.PVP = channel.PixelViewport()
		c.inherit.PVP.W += overdraw.X + overdraw.Z
		c.inherit.PVP.H += overdraw.Y + overdraw.W
	}
	c.inherit.Overdraw = overdraw
}

// updateInheritOverdraw keeps only the part of the parent's overdraw that
// borders c, clamped to the size of c.
func (c *Compound) updateInheritOverdraw(parentPVP fabric.PixelViewport) {
	pvp := c.inherit.PVP
	o := &c.inherit.Overdraw

	o.X -= pvp.X - parentPVP.X
	o.Y -= pvp.Y - parentPVP.Y
	o.Z -= parentPVP.XEnd() - pvp.XEnd()
	o.W -= parentPVP.YEnd() - pvp.YEnd()

	o.X = clampI32(o.X, 0, pvp.W)
	o.Y = clampI32(o.Y, 0, pvp.H)
	o.Z = clampI32(o.Z, 0, pvp.W)
	o.W = clampI32(o.W, 0, pvp.H)
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

// UpdateInheritTasks derives the tasks of c. Leaves default to every task,
// without the clear an ancestor on the same channel already did; internal
// compounds default to clear, assemble and readback.
func (c *Compound) UpdateInheritTasks() {
	if c.data.Tasks == fabric.TaskDefault {
		if c.IsLeaf() {
			c.inherit.Tasks = fabric.TaskAll
			channel := c.Channel()
			for p := c.Parent(); p != nil; p = p.Parent() {
				if p.Channel() == channel {
					c.inherit.Tasks &^= fabric.TaskClear
				}
			}
		} else {
			c.inherit.Tasks = fabric.TaskClear | fabric.TaskAssemble | fabric.TaskReadback
		}
	} else {
		c.inherit.Tasks = c.data.Tasks
	}

	if c.IsDestination() && c.Channel().View() != nil {
		c.inherit.Tasks |= fabric.TaskView
	} else {
		c.inherit.Tasks &^= fabric.TaskView
	}
}

// updateInheritStereo resolves the automatic stereo mode from the eyes of
// the displayed segment and the window capabilities.
func (c *Compound) updateInheritStereo() {
	if c.inherit.StereoMode != fabric.StereoAuto {
		return
	}
	eyes := c.inherit.Eyes
	if segment := c.inherit.Channel.Segment(); segment != nil {
		eyes = segment.Eyes()
	}
	if eyes&fabric.EyesStereo != fabric.EyesStereo {
		c.inherit.StereoMode = fabric.StereoPassive
		return
	}
	if c.inherit.Channel.Window().IsQuadBuffered() {
		c.inherit.StereoMode = fabric.StereoQuad
	} else {
		c.inherit.StereoMode = fabric.StereoAnaglyph
	}
}

// updateInheritActive computes the eyes rendered in frame. Destinations
// use their activation counts, all other compounds their parent's result.
func (c *Compound) updateInheritActive(frame uint32) {
	phaseActive := c.inherit.Period > 0 && frame%c.inherit.Period == c.inherit.Phase
	channelActive := c.inherit.Channel.IsRunning()
	destination := c.IsDestination()

	for i, eye := range fabric.EachEye {
		eyeActive := c.inherit.Eyes&eye != 0
		destActive := c.inherit.Active[i] != 0
		if destination {
			destActive = c.data.Active[i] != 0
		}
		if destActive && eyeActive && phaseActive && channelActive {
			c.inherit.Active[i] = 1
		} else {
			c.inherit.Active[i] = 0
		}
	}
}
