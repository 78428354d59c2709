package config

import (
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/frames"
	"github.com/twitter/equalizer/server/resources"
)

// activeEyes is the set of eye passes c renders this frame.
func activeEyes(c *compound.Compound) fabric.Eye {
	eyes := fabric.EyeUndefined
	for _, eye := range fabric.EachEye {
		if c.IsInheritActive(eye) {
			eyes |= eye
		}
	}
	return eyes & c.InheritEyes()
}

// updateCompounds decomposes frame through the compound tree: equalizers
// adapt the tree, every compound computes its inherited parameters, the
// channels collect their tasks and the frames and tile queues are bound and
// published.
func (c *Config) updateCompounds(frame uint32) {
	c.topo.ResetFrame()
	for _, b := range c.barriers {
		b.Reset()
	}

	c.updateInherit(frame)

	c.tree.Accept(compound.VisitorFunc(func(comp *compound.Compound) fabric.VisitorResult {
		ch := comp.Channel()
		if !comp.IsActive() || ch == nil || !ch.IsRunning() {
			return fabric.Continue
		}
		ch.AddTasks(comp.InheritTasks())
		if comp.TestInheritTask(fabric.TaskDraw) {
			ch.SetLastDrawCompound(int(comp.ID()))
		}
		return fabric.Continue
	}))
	c.topo.UpdateLastDraw()

	out := newOutputBinder(c, frame)
	c.tree.Accept(out)
	in := &inputBinder{out: out}
	c.tree.Accept(in)
	out.commit()

	for _, b := range c.barriers {
		if b.Height() > 1 {
			b.Commit()
		}
	}
}

// updateInherit runs the equalizers and computes the inherited data of
// every compound, parents first.
func (c *Config) updateInherit(frame uint32) {
	taskID := uint32(0)
	c.tree.Accept(compound.VisitorFunc(func(comp *compound.Compound) fabric.VisitorResult {
		taskID++
		comp.SetTaskID(taskID)
		comp.FireUpdatePre(frame)
		comp.UpdateInheritData(frame)
		return fabric.Continue
	}))
}

// outputBinder fills the output frames and tile queues of every active
// compound and joins the swap barriers.
type outputBinder struct {
	config *Config
	frame  uint32

	frames  map[string]*frames.Frame
	queues  map[string]*frames.TileQueue
	touched []*frames.Frame
	tqueues []*frames.TileQueue
}

func newOutputBinder(c *Config, frame uint32) *outputBinder {
	return &outputBinder{
		config: c,
		frame:  frame,
		frames: make(map[string]*frames.Frame),
		queues: make(map[string]*frames.TileQueue),
	}
}

func (v *outputBinder) VisitPre(c *compound.Compound) fabric.VisitorResult {
	if !c.IsActive() {
		return fabric.Prune
	}
	v.updateQueues(c)
	v.updateFrames(c)
	v.updateSwapBarrier(c)
	return fabric.Continue
}

func (v *outputBinder) VisitLeaf(c *compound.Compound) fabric.VisitorResult {
	return v.VisitPre(c)
}

func (v *outputBinder) VisitPost(c *compound.Compound) fabric.VisitorResult {
	return fabric.Continue
}

func (v *outputBinder) updateQueues(c *compound.Compound) {
	for _, q := range c.OutputQueues() {
		if _, ok := v.queues[q.Name()]; ok {
			log.WithFields(log.Fields{"queue": q.Name(), "compound": c.String()}).Warn("Duplicate output queue, ignoring")
			q.UnsetData()
			continue
		}
		eyes := activeEyes(c)
		q.CycleData(v.frame, eyes)
		pvp := c.InheritPVP()
		for _, tile := range frames.TileRects(pvp, q.TileSize()) {
			for _, eye := range fabric.EachEye {
				if eyes&eye == 0 {
					continue
				}
				tile.Frustum = c.ComputeTileFrustum(eye, tile.VP, false)
				tile.Ortho = c.ComputeTileFrustum(eye, tile.VP, true)
				q.AddTile(tile, eye)
			}
		}
		v.queues[q.Name()] = q
		v.tqueues = append(v.tqueues, q)
	}
}

func (v *outputBinder) updateFrames(c *compound.Compound) {
	if len(c.OutputFrames()) == 0 {
		c.UnsetInheritTask(fabric.TaskReadback)
		return
	}
	ch := c.Channel()
	if !c.TestInheritTask(fabric.TaskReadback) || ch == nil {
		return
	}

	inheritPVP := c.InheritPVP()
	eyes := activeEyes(c)
	for _, f := range c.OutputFrames() {
		if _, ok := v.frames[f.Name()]; ok {
			log.WithFields(log.Fields{"frame": f.Name(), "compound": c.String()}).Warn("Duplicate output frame, ignoring")
			f.UnsetData()
			continue
		}
		frameVP := f.Viewport()
		framePVP := inheritPVP.Apply(frameVP)
		if !framePVP.HasArea() {
			f.UnsetData()
			continue
		}

		f.CycleData(v.frame, eyes)
		if c.HasTiles() {
			f.SetOffset(fabric.Vector2i{})
		} else {
			f.SetOffset(fabric.Vector2i{X: framePVP.X, Y: framePVP.Y})
		}
		buffers := f.Buffers()
		if buffers == fabric.BufferUndefined {
			buffers = c.InheritBuffers()
		}
		dataOffset := channelOffset(c, ch)

		for _, eye := range fabric.EachEye {
			data := f.Data(eye)
			if data == nil {
				continue
			}
			data.SetPixelViewport(fabric.PixelViewport{
				X: int32(frameVP.X * float32(inheritPVP.W)),
				Y: int32(frameVP.Y * float32(inheritPVP.H)),
				W: framePVP.W,
				H: framePVP.H,
			})
			data.SetOffset(dataOffset)
			data.SetBuffers(buffers)
			data.SetStorage(f.Storage())
			data.SetContext(c.SetupRenderContext(fabric.EyeCyclop))
		}
		updateOutputZoom(c, f)
		v.frames[f.Name()] = f
		v.touched = append(v.touched, f)
	}
}

// updateOutputZoom splits the zoom of an output frame between readback and
// assembly. Texture frames are scaled when read back; memory frames can
// only be reduced on readback, so magnification is left to the assembly.
func updateOutputZoom(c *compound.Compound, f *frames.Frame) {
	var zoom, zoom1 fabric.Zoom
	if native := f.NativeZoom(); native.IsValid() {
		zoom = native
		zoom1 = zoom.Invert()
	} else {
		zoom1 = c.InheritZoom()
		zoom = zoom1.Invert()
	}

	if f.Storage() == fabric.StorageTexture {
		for _, eye := range fabric.EachEye {
			if data := f.Data(eye); data != nil {
				data.SetZoom(zoom1)
			}
		}
		f.SetZoom(fabric.ZoomNone)
		return
	}

	inputZoom := fabric.ZoomNone
	if zoom.X > 1 {
		inputZoom.X = zoom1.X
		zoom.X = 1
	}
	if zoom.Y > 1 {
		inputZoom.Y = zoom1.Y
		zoom.Y = 1
	}
	for _, eye := range fabric.EachEye {
		if data := f.Data(eye); data != nil {
			data.SetZoom(inputZoom)
		}
	}
	f.SetZoom(zoom)
}

func (v *outputBinder) updateSwapBarrier(c *compound.Compound) {
	name := c.SwapBarrier()
	w := c.Window()
	if name == "" || w == nil || !c.TestInheritTask(fabric.TaskDraw|fabric.TaskAssemble) {
		return
	}
	barriers := v.config.barriers
	barriers[name] = w.JoinSwapBarrier(barriers[name], name)
}

// commit publishes every frame and queue touched this frame. It runs after
// the input binder so no consumer sees a version before its binding.
func (v *outputBinder) commit() {
	inputs := make(map[*frames.Frame]bool)
	for _, f := range v.touched {
		f.Commit()
		for _, eye := range fabric.EachEye {
			for _, input := range f.InputFrames(eye) {
				if !inputs[input] {
					inputs[input] = true
					input.Commit()
				}
			}
		}
	}
	for _, q := range v.tqueues {
		q.Commit()
	}
}

// inputBinder links input frames and tile queues to the outputs filled by
// the output binder.
type inputBinder struct {
	out *outputBinder
}

func (v *inputBinder) VisitPre(c *compound.Compound) fabric.VisitorResult {
	if !c.IsActive() {
		return fabric.Prune
	}
	v.updateQueues(c)
	v.updateFrames(c)
	return fabric.Continue
}

func (v *inputBinder) VisitLeaf(c *compound.Compound) fabric.VisitorResult {
	return v.VisitPre(c)
}

func (v *inputBinder) VisitPost(c *compound.Compound) fabric.VisitorResult {
	return fabric.Continue
}

func (v *inputBinder) updateQueues(c *compound.Compound) {
	for _, q := range c.InputQueues() {
		output, ok := v.out.queues[q.Name()]
		if !ok {
			log.WithFields(log.Fields{"queue": q.Name(), "compound": c.String()}).Warn("No output queue for input queue")
			q.UnsetData()
			continue
		}
		q.SetOutputQueue(output)
		v.out.tqueues = append(v.out.tqueues, q)
	}
}

func (v *inputBinder) updateFrames(c *compound.Compound) {
	if len(c.InputFrames()) == 0 {
		c.UnsetInheritTask(fabric.TaskAssemble)
		return
	}
	ch := c.Channel()
	if !c.TestInheritTask(fabric.TaskAssemble) || ch == nil {
		return
	}

	base := channelOffset(c, ch)
	eyes := activeEyes(c)
	for _, input := range c.InputFrames() {
		output, ok := v.out.frames[input.Name()]
		if !ok {
			log.WithFields(log.Fields{"frame": input.Name(), "compound": c.String()}).Debug("No output frame for input frame")
			input.UnsetData()
			continue
		}

		if zoom := input.NativeZoom(); zoom.IsValid() {
			input.SetZoom(zoom)
		} else {
			input.SetZoom(fabric.ZoomNone)
		}
		native := input.NativeOffset()
		input.SetOffset(fabric.Vector2i{X: base.X + native.X, Y: base.Y + native.Y})
		output.AddInputFrame(input, eyes)
	}
}

// channelOffset is the origin of the inherited pixel viewport of c in the
// window of ch.
func channelOffset(c *compound.Compound, ch *resources.Channel) fabric.Vector2i {
	if c.InheritChannel() == ch {
		pvp := c.InheritPVP()
		return fabric.Vector2i{X: pvp.X, Y: pvp.Y}
	}
	pvp := ch.PixelViewport()
	return fabric.Vector2i{X: pvp.X, Y: pvp.Y}
}
