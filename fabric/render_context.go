package fabric

// RenderContext is everything a render client needs to execute one task
// for one eye pass of one compound.
type RenderContext struct {
	FrameID     string
	FrameNumber uint32
	TaskID      uint32

	PVP      PixelViewport
	Overdraw Vector4i
	VP       Viewport
	Range    Range
	Pixel    Pixel
	SubPixel SubPixel
	Zoom     Zoom
	Period   uint32
	Phase    uint32
	Offset   Vector2i

	Eye        Eye
	Buffer     uint32
	BufferMask ColorMask

	Frustum        Frustum
	Ortho          Frustum
	HeadTransform  Matrix4
	OrthoTransform Matrix4

	View        string
	ViewVersion uint32
}

// NewRenderContext returns a context with neutral decomposition values.
func NewRenderContext() RenderContext {
	return RenderContext{
		VP:             FullViewport,
		Range:          FullRange,
		Pixel:          PixelAll,
		SubPixel:       SubPixelAll,
		Zoom:           ZoomNone,
		Period:         1,
		Eye:            EyeCyclop,
		Buffer:         DrawBufferBack,
		BufferMask:     ColorMaskAll,
		Frustum:        DefaultFrustum,
		Ortho:          DefaultFrustum,
		HeadTransform:  Identity4,
		OrthoTransform: Identity4,
	}
}
