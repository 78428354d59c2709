package equalizers

import (
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/frames"
)

// monitorSource is the output frame feeding one input frame of the
// monitor, and where its segment lies in the displayed view.
type monitorSource struct {
	output   *frames.Frame
	producer *compound.Compound
	vp       fabric.Viewport
}

// MonitorEqualizer shows the output of other destination channels on its
// compound's channel: it places and scales each input frame according to
// the area its source segment covers in the view.
type MonitorEqualizer struct {
	compound.Base

	sources []monitorSource
}

func NewMonitorEqualizer(p compound.Params) *MonitorEqualizer {
	return &MonitorEqualizer{Base: compound.NewBase(p)}
}

func (e *MonitorEqualizer) Type() string { return "monitor" }

func (e *MonitorEqualizer) Attach(c *compound.Compound) {
	e.sources = nil
	e.Base.Attach(c)
}

func (e *MonitorEqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
	e.updateViewports(c)
	e.updateZoomAndOffset(c)
}

func (e *MonitorEqualizer) updateViewports(c *compound.Compound) {
	if len(e.sources) == len(c.InputFrames()) {
		return
	}
	e.sources = e.sources[:0]
	for _, input := range c.InputFrames() {
		source := monitorSource{vp: fabric.FullViewport}
		source.output, source.producer = findOutputFrame(c.Tree(), input.Name())
		if source.producer != nil {
			if ch := source.producer.Channel(); ch != nil && ch.View() != nil && ch.Segment() != nil {
				source.vp = ch.Segment().Viewport().Intersect(ch.View().Viewport())
			}
		}
		e.sources = append(e.sources, source)
	}
}

// findOutputFrame searches all compounds of tree for the output frame
// called name.
func findOutputFrame(tree *compound.Tree, name string) (*frames.Frame, *compound.Compound) {
	var output *frames.Frame
	var producer *compound.Compound
	tree.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		for _, f := range c.OutputFrames() {
			if f.Name() == name {
				output, producer = f, c
				return fabric.Terminate
			}
		}
		return fabric.Continue
	}))
	return output, producer
}

// updateZoomAndOffset scales each source to the part of the monitor pixel
// viewport its segment covers. Texture frames are zoomed when read back,
// memory frames when drawn.
func (e *MonitorEqualizer) updateZoomAndOffset(c *compound.Compound) {
	pvp := c.InheritPVP()
	for i, input := range c.InputFrames() {
		if i >= len(e.sources) {
			break
		}
		source := e.sources[i]
		if source.output == nil {
			continue
		}

		target := pvp.Apply(source.vp)
		src := source.producer.InheritPVP()
		if !src.HasArea() {
			continue
		}
		zoom := fabric.Zoom{
			X: float32(target.W) / float32(src.W),
			Y: float32(target.H) / float32(src.H),
		}
		if source.output.Storage() == fabric.StorageTexture {
			source.output.SetNativeZoom(zoom)
			input.SetNativeZoom(fabric.ZoomNone)
		} else {
			source.output.SetNativeZoom(fabric.ZoomNone)
			input.SetNativeZoom(zoom)
		}
		input.SetNativeOffset(fabric.Vector2i{X: target.X, Y: target.Y})
	}
}
