package frames

import "github.com/twitter/equalizer/fabric"

// FrameData is the payload of one eye pass of one output frame: the pixel
// region the producer reads back and how consumers find it.
type FrameData struct {
	id          string
	version     uint32
	frameNumber uint32

	pvp     fabric.PixelViewport
	offset  fabric.Vector2i
	buffers fabric.Buffer
	zoom    fabric.Zoom
	storage fabric.FrameStorage
	context fabric.RenderContext
}

func newFrameData() *FrameData {
	return &FrameData{id: fabric.NewID(), zoom: fabric.ZoomNone}
}

func (d *FrameData) ID() string                          { return d.id }
func (d *FrameData) Version() uint32                     { return d.version }
func (d *FrameData) FrameNumber() uint32                 { return d.frameNumber }
func (d *FrameData) PixelViewport() fabric.PixelViewport { return d.pvp }
func (d *FrameData) Offset() fabric.Vector2i             { return d.offset }
func (d *FrameData) Buffers() fabric.Buffer              { return d.buffers }
func (d *FrameData) Zoom() fabric.Zoom                   { return d.zoom }
func (d *FrameData) Storage() fabric.FrameStorage        { return d.storage }
func (d *FrameData) Context() fabric.RenderContext       { return d.context }

func (d *FrameData) SetPixelViewport(pvp fabric.PixelViewport) { d.pvp = pvp }
func (d *FrameData) SetOffset(offset fabric.Vector2i)          { d.offset = offset }
func (d *FrameData) SetBuffers(buffers fabric.Buffer)          { d.buffers = buffers }
func (d *FrameData) SetZoom(zoom fabric.Zoom)                  { d.zoom = zoom }
func (d *FrameData) SetStorage(storage fabric.FrameStorage)    { d.storage = storage }
func (d *FrameData) SetContext(ctx fabric.RenderContext)       { d.context = ctx }

// reset prepares a recycled instance for frame.
func (d *FrameData) reset(frame uint32) {
	d.frameNumber = frame
	d.pvp = fabric.PixelViewport{}
	d.offset = fabric.Vector2i{}
	d.buffers = fabric.BufferUndefined
	d.zoom = fabric.ZoomNone
}
