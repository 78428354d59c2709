package equalizers

import (
	"math"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// minDFRPixels is the smallest edge, in pixels, the zoomed region keeps.
const minDFRPixels = 128

// DFREqualizer implements dynamic frame resolution: it zooms the rendering
// of its compound down when the measured frame rate falls below the
// target and back up to the native resolution when it recovers.
type DFREqualizer struct {
	compound.Base

	channel *resources.Channel
	// measured frame rate
	current float32
}

func NewDFREqualizer(p compound.Params) *DFREqualizer {
	return &DFREqualizer{Base: compound.NewBase(p), current: p.FrameRate}
}

func (e *DFREqualizer) Type() string { return "dfr" }

func (e *DFREqualizer) Attach(c *compound.Compound) {
	if e.channel != nil {
		e.channel.RemoveListener(e)
		e.channel = nil
	}
	e.Base.Attach(c)
}

func (e *DFREqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
	if e.channel == nil && c.Channel() != nil {
		e.channel = c.Channel()
		e.channel.AddListener(e)
	}
	if !e.IsActive() || !c.IsActive() || e.channel == nil || e.FrameRate <= 0 {
		c.SetZoom(fabric.ZoomNone)
		return
	}

	factor := (float32(math.Sqrt(float64(e.current/e.FrameRate)))-1)*e.Damping + 1
	zoom := c.Zoom()
	zoom.X *= factor

	pvp := c.InheritPVP()
	if parent := c.Parent(); parent != nil {
		pvp = parent.InheritPVP()
	}
	native := e.channel.PixelViewport()
	if pvp.HasArea() && native.HasArea() {
		minZoom := minDFRPixels / float32(minI32(pvp.W, pvp.H))
		maxZoom := min32(float32(native.W)/float32(pvp.W), float32(native.H)/float32(pvp.H))
		zoom.X = min32(max32(zoom.X, minZoom), maxZoom)
	}
	zoom.Y = zoom.X
	c.SetZoom(zoom)
}

// NotifyLoadData measures the frame rate from the draw span of a frame.
func (e *DFREqualizer) NotifyLoadData(ch *resources.Channel, frame uint32, statistics []fabric.Statistic,
	region fabric.Viewport) {
	start, end := int64(math.MaxInt64), int64(0)
	for _, stat := range statistics {
		switch stat.Type {
		case fabric.StatChannelClear, fabric.StatChannelDraw, fabric.StatChannelReadback:
			start = minI64(start, stat.StartTime)
			end = maxI64(end, stat.EndTime)
		}
	}
	if start == math.MaxInt64 {
		return
	}
	if start == end {
		end++
	}
	e.current = 1000 / float32(end-start)
}
