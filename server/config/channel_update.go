package config

import (
	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/frames"
	"github.com/twitter/equalizer/server/resources"
)

// UpdateChannel emits the task commands of every compound rendering on ch
// for frame, one eye pass after the other.
func (c *Config) UpdateChannel(ch *resources.Channel, frameID string, frame uint32) bool {
	updated := false
	for _, eye := range fabric.EachEye {
		u := &channelUpdater{channel: ch, eye: eye, frameID: frameID, frame: frame}
		c.tree.Accept(u)
		updated = updated || u.updated
	}
	return updated
}

var dumpConfig = &spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}

// channelUpdater visits the compound tree for one channel and eye.
type channelUpdater struct {
	channel *resources.Channel
	eye     fabric.Eye
	frameID string
	frame   uint32
	updated bool
}

func (u *channelUpdater) inactive(c *compound.Compound) bool {
	return c.InheritChannel() != nil && !c.IsInheritActive(u.eye)
}

func (u *channelUpdater) skip(c *compound.Compound) bool {
	return c.Channel() != u.channel || !c.IsInheritActive(u.eye) || c.InheritTasks() == fabric.TaskNone
}

func (u *channelUpdater) VisitPre(c *compound.Compound) fabric.VisitorResult {
	if u.inactive(c) {
		return fabric.Prune
	}
	u.drawFinish(c)
	if u.skip(c) {
		return fabric.Continue
	}

	ctx := u.setupContext(c)
	u.frameRate(c)
	u.viewStart(c, ctx)
	if c.TestInheritTask(fabric.TaskClear) {
		u.send(fabric.OpChannelFrameClear, ctx)
	}
	return fabric.Continue
}

func (u *channelUpdater) VisitLeaf(c *compound.Compound) fabric.VisitorResult {
	if u.inactive(c) {
		return fabric.Continue
	}
	if u.skip(c) {
		u.drawFinish(c)
		return fabric.Continue
	}

	ctx := u.setupContext(c)
	u.frameRate(c)
	u.viewStart(c, ctx)
	if c.HasTiles() {
		u.drawTiles(c, ctx)
	} else {
		u.draw(c, ctx)
	}
	u.drawFinish(c)
	u.postDraw(c, ctx)
	return fabric.Continue
}

func (u *channelUpdater) VisitPost(c *compound.Compound) fabric.VisitorResult {
	if u.skip(c) {
		return fabric.Continue
	}
	u.postDraw(c, u.setupContext(c))
	return fabric.Continue
}

func (u *channelUpdater) send(op fabric.Opcode, ctx fabric.RenderContext) {
	u.channel.Send(fabric.Command{Op: op, Frame: u.frame, FrameID: u.frameID, Context: &ctx})
	u.updated = true
}

// setupContext fills the render context of c for the current eye pass,
// relative to the view and channel the task runs on.
func (u *channelUpdater) setupContext(c *compound.Compound) fabric.RenderContext {
	ctx := c.SetupRenderContext(u.eye)
	ctx.FrameID = u.frameID
	ctx.FrameNumber = u.frame
	ctx.Buffer = u.drawBuffer(c)
	if c.InheritStereoMode() == fabric.StereoAnaglyph {
		ctx.BufferMask = c.AnaglyphMask(u.eye)
	} else {
		ctx.BufferMask = fabric.ColorMaskAll
	}

	dest := c.InheritChannel()
	if dest != nil {
		if view := dest.View(); view != nil {
			ctx.View = view.Path()
			ctx.ViewVersion = view.Version()
			destPVP := dest.PixelViewport()
			if segment := dest.Segment(); segment != nil && destPVP.HasArea() {
				ctx.VP = ctx.VP.ApplyView(segment.Viewport(), view.Viewport(), destPVP, dest.Overdraw())
			}
		}
	}
	if dest != u.channel {
		// the task runs in the native pixel viewport of this channel
		pvp := u.channel.PixelViewport()
		ctx.PVP.X = pvp.X
		ctx.PVP.Y = pvp.Y
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithFields(log.Fields{
			"channel":  u.channel.Name(),
			"compound": c.String(),
			"frame":    u.frame,
		}).Trace(dumpConfig.Sdump(ctx))
	}
	return ctx
}

func (u *channelUpdater) drawBuffer(c *compound.Compound) uint32 {
	w := u.channel.Window()
	double := w.IsDoubleBuffered()
	if c.InheritStereoMode() == fabric.StereoQuad && w.IsQuadBuffered() {
		switch u.eye {
		case fabric.EyeLeft:
			if double {
				return fabric.DrawBufferBackLeft
			}
			return fabric.DrawBufferFrontLeft
		case fabric.EyeRight:
			if double {
				return fabric.DrawBufferBackRight
			}
			return fabric.DrawBufferFrontRight
		}
	}
	if double {
		return fabric.DrawBufferBack
	}
	return fabric.DrawBufferFront
}

func (u *channelUpdater) frameRate(c *compound.Compound) {
	if fps := c.InheritMaxFPS(); fps > 0 {
		u.channel.Window().LimitMaxFPS(fps)
	}
}

func (u *channelUpdater) viewStart(c *compound.Compound, ctx fabric.RenderContext) {
	if c.TestInheritTask(fabric.TaskView) {
		u.send(fabric.OpChannelFrameViewStart, ctx)
	}
}

func (u *channelUpdater) draw(c *compound.Compound, ctx fabric.RenderContext) {
	if c.TestInheritTask(fabric.TaskClear) {
		u.send(fabric.OpChannelFrameClear, ctx)
	}
	if c.TestInheritTask(fabric.TaskDraw) {
		u.channel.Send(fabric.Command{
			Op:      fabric.OpChannelFrameDraw,
			Frame:   u.frame,
			FrameID: u.frameID,
			Context: &ctx,
			Finish:  u.channel.Listeners() > 0,
		})
		u.updated = true
	}
}

// drawTiles hands the tile work of every input queue to the channel, which
// pulls tiles until the queue runs dry.
func (u *channelUpdater) drawTiles(c *compound.Compound, ctx fabric.RenderContext) {
	tasks := c.InheritTasks() & (fabric.TaskClear | fabric.TaskDraw | fabric.TaskReadback)
	outputs := frameRefs(c.OutputFrames(), u.eye)
	for _, q := range c.InputQueues() {
		id := q.MasterID(u.eye)
		if id == "" {
			continue
		}
		refs := append([]fabric.FrameRef{{Name: q.Name(), ID: id, Version: q.Version()}}, outputs...)
		u.channel.Send(fabric.Command{
			Op:      fabric.OpChannelFrameTiles,
			Frame:   u.frame,
			FrameID: u.frameID,
			Context: &ctx,
			Frames:  refs,
			Tasks:   tasks,
			Finish:  u.channel.Listeners() > 0,
		})
		u.updated = true
	}
}

func (u *channelUpdater) postDraw(c *compound.Compound, ctx fabric.RenderContext) {
	u.assemble(c, ctx)
	u.readback(c, ctx)
	if c.TestInheritTask(fabric.TaskView) {
		u.send(fabric.OpChannelFrameViewFinish, ctx)
	}
}

func (u *channelUpdater) assemble(c *compound.Compound, ctx fabric.RenderContext) {
	if !c.TestInheritTask(fabric.TaskAssemble) {
		return
	}
	refs := frameRefs(c.InputFrames(), u.eye)
	if len(refs) == 0 {
		return
	}
	u.channel.Send(fabric.Command{
		Op:      fabric.OpChannelFrameAssemble,
		Frame:   u.frame,
		FrameID: u.frameID,
		Context: &ctx,
		Frames:  refs,
	})
	u.updated = true
}

func (u *channelUpdater) readback(c *compound.Compound, ctx fabric.RenderContext) {
	if !c.TestInheritTask(fabric.TaskReadback) || (c.HasTiles() && c.IsLeaf()) {
		return
	}
	refs := frameRefs(c.OutputFrames(), u.eye)
	if len(refs) == 0 {
		return
	}
	u.channel.Send(fabric.Command{
		Op:      fabric.OpChannelFrameReadback,
		Frame:   u.frame,
		FrameID: u.frameID,
		Context: &ctx,
		Frames:  refs,
	})
	u.updated = true
}

func frameRefs(list []*frames.Frame, eye fabric.Eye) []fabric.FrameRef {
	var refs []fabric.FrameRef
	for _, f := range list {
		if !f.HasData(eye) {
			continue
		}
		refs = append(refs, fabric.FrameRef{
			Name:    f.Name(),
			ID:      f.ID(),
			Version: f.Version(),
			Offset:  f.Offset(),
			Zoom:    f.Zoom(),
		})
	}
	return refs
}

// drawFinish releases the channel, window, pipe and node once the last
// drawing compound of each finished its last eye pass.
func (u *channelUpdater) drawFinish(c *compound.Compound) {
	ch := u.channel
	if c.Channel() != ch || !c.IsInheritActive(u.eye) || !c.IsLastInheritEye(u.eye) {
		return
	}
	last := ch.LastDrawCompound()
	if last != resources.NoCompound && last != int(c.ID()) {
		return
	}
	ch.SetLastDrawCompound(int(c.ID()))
	ch.Send(fabric.Command{Op: fabric.OpChannelFrameDrawFinish, Frame: u.frame, FrameID: u.frameID})

	w := ch.Window()
	if w.LastDrawChannel() != ch {
		return
	}
	w.Node().Send(fabric.Command{Op: fabric.OpWindowFrameDrawFinish, Entity: w.Path(), Frame: u.frame, FrameID: u.frameID})

	p := w.Pipe()
	if p.LastDrawWindow() != w {
		return
	}
	p.Node().Send(fabric.Command{Op: fabric.OpPipeFrameDrawFinish, Entity: p.Path(), Frame: u.frame, FrameID: u.frameID})

	n := p.Node()
	if n.LastDrawPipe() != p {
		return
	}
	n.Send(fabric.Command{Op: fabric.OpNodeFrameDrawFinish, Entity: n.Path(), Frame: u.frame, FrameID: u.frameID})
}
