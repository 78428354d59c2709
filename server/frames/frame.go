// Package frames implements the payload descriptors that carry rendered
// regions and tile work between compounds, recycled within the frame
// latency.
package frames

import (
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
)

const numEyes = 3

// Kind tells whether a frame or tile queue produces or consumes payloads.
type Kind int

const (
	Output Kind = iota
	Input
)

func (k Kind) String() string {
	if k == Input {
		return "input"
	}
	return "output"
}

// Frame moves a rendered region from the compound declaring it as output
// to every compound declaring an input frame of the same name.
type Frame struct {
	name    string
	kind    Kind
	id      string
	version uint32
	session Session
	latency uint32

	vp           fabric.Viewport
	buffers      fabric.Buffer
	storage      fabric.FrameStorage
	nativeZoom   fabric.Zoom
	nativeOffset fabric.Vector2i

	// set every frame
	zoom   fabric.Zoom
	offset fabric.Vector2i
	data   [numEyes]*FrameData
	pools  [numEyes]pool
	inputs [numEyes][]*Frame
	output *Frame
}

// NewFrame creates a frame and registers it with session.
func NewFrame(name string, kind Kind, session Session, latency uint32) *Frame {
	f := &Frame{
		name:       name,
		kind:       kind,
		id:         fabric.NewID(),
		session:    session,
		latency:    latency,
		vp:         fabric.FullViewport,
		nativeZoom: fabric.ZoomInvalid,
		zoom:       fabric.ZoomNone,
	}
	for i := range f.pools {
		f.pools[i].session = session
	}
	session.Register(f.id)
	return f
}

func (f *Frame) Name() string                      { return f.name }
func (f *Frame) SetName(name string)               { f.name = name }
func (f *Frame) Kind() Kind                        { return f.kind }
func (f *Frame) ID() string                        { return f.id }
func (f *Frame) Version() uint32                   { return f.version }
func (f *Frame) Latency() uint32                   { return f.latency }
func (f *Frame) SetLatency(latency uint32)         { f.latency = latency }
func (f *Frame) Viewport() fabric.Viewport         { return f.vp }
func (f *Frame) SetViewport(vp fabric.Viewport)    { f.vp = vp }
func (f *Frame) Buffers() fabric.Buffer            { return f.buffers }
func (f *Frame) SetBuffers(b fabric.Buffer)        { f.buffers = b }
func (f *Frame) Storage() fabric.FrameStorage      { return f.storage }
func (f *Frame) SetStorage(s fabric.FrameStorage)  { f.storage = s }
func (f *Frame) NativeZoom() fabric.Zoom           { return f.nativeZoom }
func (f *Frame) SetNativeZoom(z fabric.Zoom)       { f.nativeZoom = z }
func (f *Frame) NativeOffset() fabric.Vector2i     { return f.nativeOffset }
func (f *Frame) SetNativeOffset(o fabric.Vector2i) { f.nativeOffset = o }
func (f *Frame) Zoom() fabric.Zoom                 { return f.zoom }
func (f *Frame) SetZoom(z fabric.Zoom)             { f.zoom = z }
func (f *Frame) Offset() fabric.Vector2i           { return f.offset }
func (f *Frame) SetOffset(o fabric.Vector2i)       { f.offset = o }
func (f *Frame) OutputFrame() *Frame               { return f.output }

// Data returns the payload of eye for the current frame, or nil.
func (f *Frame) Data(eye fabric.Eye) *FrameData { return f.data[fabric.EyeIndex(eye)] }

func (f *Frame) HasData(eye fabric.Eye) bool { return f.Data(eye) != nil }

// InputFrames lists the consumers bound to eye this frame.
func (f *Frame) InputFrames(eye fabric.Eye) []*Frame { return f.inputs[fabric.EyeIndex(eye)] }

// LiveData is the number of pooled payloads over all eyes.
func (f *Frame) LiveData() int {
	n := 0
	for i := range f.pools {
		n += f.pools[i].len()
	}
	return n
}

// CycleData selects the payload of every eye in eyes for frame, recycling
// pooled instances older than the latency. Other eyes get no data.
func (f *Frame) CycleData(frame uint32, eyes fabric.Eye) {
	for i, eye := range fabric.EachEye {
		f.inputs[i] = nil
		if eyes&eye == 0 {
			f.data[i] = nil
			continue
		}
		data := f.pools[i].cycle(frame, f.latency, func() payload { return newFrameData() })
		f.data[i] = data.(*FrameData)
		f.data[i].storage = f.storage
	}
}

// UnsetData drops the payloads of this frame without releasing the pool.
func (f *Frame) UnsetData() {
	for i := range f.data {
		f.data[i] = nil
		f.inputs[i] = nil
	}
	f.output = nil
}

// AddInputFrame links input to the payloads of this output for every eye in
// eyes that has data.
func (f *Frame) AddInputFrame(input *Frame, eyes fabric.Eye) {
	for i, eye := range fabric.EachEye {
		data := f.data[i]
		if data == nil || eyes&eye == 0 {
			input.data[i] = nil
			continue
		}
		input.data[i] = data
		f.inputs[i] = append(f.inputs[i], input)
		f.session.Bind(input.id, data.id)
	}
	input.output = f
}

// Commit publishes the payloads of the current frame, then the frame.
func (f *Frame) Commit() uint32 {
	for _, data := range f.data {
		if data == nil || f.kind != Output {
			continue
		}
		data.version++
		f.session.Commit(data.id, data.version)
	}
	f.version++
	f.session.Commit(f.id, f.version)
	return f.version
}

// Flush releases every pooled payload.
func (f *Frame) Flush() {
	f.UnsetData()
	for i := range f.pools {
		f.pools[i].flush()
	}
	log.WithFields(log.Fields{"frame": f.name, "kind": f.kind}).Debug("Flushed frame")
}

// Deregister flushes the frame and withdraws it from the session.
func (f *Frame) Deregister() {
	f.Flush()
	f.session.Deregister(f.id)
}
