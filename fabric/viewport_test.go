package fabric

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func Test_PixelViewport_ApplyHalf(t *testing.T) {
	pvp := PixelViewport{0, 0, 800, 600}
	assert.Equal(t, PixelViewport{0, 0, 400, 600}, pvp.Apply(Viewport{0, 0, .5, 1}))
	assert.Equal(t, PixelViewport{400, 0, 400, 600}, pvp.Apply(Viewport{.5, 0, .5, 1}))
}

func Test_PixelViewport_ApplyPixel(t *testing.T) {
	pvp := PixelViewport{0, 0, 801, 600}
	assert.Equal(t, int32(401), pvp.ApplyPixel(Pixel{0, 0, 2, 1}).W)
	assert.Equal(t, int32(400), pvp.ApplyPixel(Pixel{1, 0, 2, 1}).W)
	assert.Equal(t, int32(600), pvp.ApplyPixel(Pixel{1, 0, 2, 1}).H)
}

func Test_PixelViewport_ApplyZoom(t *testing.T) {
	pvp := PixelViewport{10, 10, 101, 50}
	assert.Equal(t, PixelViewport{10, 10, 51, 25}, pvp.ApplyZoom(Zoom{.5, .5}))
	assert.Equal(t, pvp, pvp.ApplyZoom(ZoomNone))
}

func Test_PixelViewport_SubViewport(t *testing.T) {
	pvp := PixelViewport{0, 0, 800, 600}
	assert.Equal(t, FullViewport, pvp.SubViewport(pvp))
	assert.Equal(t, Viewport{.5, 0, .5, .5}, pvp.SubViewport(PixelViewport{400, 0, 400, 300}))
}

func Test_Viewport_Intersect(t *testing.T) {
	a := Viewport{0, 0, .5, 1}
	b := Viewport{.25, .5, .5, .5}
	assert.Equal(t, Viewport{.25, .5, .25, .5}, a.Intersect(b))
	assert.False(t, a.Intersect(Viewport{.5, 0, .5, 1}).HasArea())
}

func Test_Viewport_Coverage(t *testing.T) {
	view := Viewport{0, 0, 1, 1}
	segment := Viewport{.5, 0, .5, 1}
	assert.Equal(t, Viewport{.5, 0, .5, 1}, view.Coverage(segment))
}

func Test_Viewport_ApplyView(t *testing.T) {
	segment := Viewport{.5, 0, .5, 1}
	pvp := PixelViewport{0, 0, 400, 600}
	assert.Equal(t, segment, FullViewport.ApplyView(segment, FullViewport, pvp, Vector4i{}))
	assert.Equal(t, Viewport{.5, 0, .25, 1}, Viewport{0, 0, .5, 1}.ApplyView(segment, FullViewport, pvp, Vector4i{}))

	// overdraw widens the contribution by the overdrawn share
	vp := FullViewport.ApplyView(segment, FullViewport, pvp, Vector4i{X: 40})
	assert.InDelta(t, .45, vp.X, 1e-6)
	assert.InDelta(t, .55, vp.W, 1e-6)
}

func Test_Range_Apply(t *testing.T) {
	r := Range{.5, 1}
	assert.Equal(t, Range{.5, .75}, r.Apply(Range{0, .5}))
	assert.True(t, Range{.3, .3}.IsValid())
	assert.False(t, Range{.3, .3}.HasData())
}

func Test_Pixel_Apply(t *testing.T) {
	p := Pixel{1, 0, 2, 1}
	assert.Equal(t, Pixel{3, 0, 4, 1}, p.Apply(Pixel{1, 0, 2, 1}))
	assert.False(t, Pixel{2, 0, 2, 1}.IsValid())
}

func Test_SubPixel_Apply(t *testing.T) {
	s := SubPixel{1, 2}
	assert.Equal(t, SubPixel{5, 8}, s.Apply(SubPixel{1, 4}))
}

func Test_Zoom_Validate(t *testing.T) {
	assert.Equal(t, ZoomNone, ZoomInvalid.Validate())
	assert.Equal(t, Zoom{2, 4}, Zoom{.5, .25}.Invert())
}

func Test_Wall_Apply(t *testing.T) {
	w := DefaultWall.Apply(Viewport{.5, 0, .5, 1})
	assert.InDelta(t, 0, w.BottomLeft.X, 1e-6)
	assert.InDelta(t, .8, w.BottomRight.X, 1e-6)
	assert.InDelta(t, .8, w.Width(), 1e-6)
	assert.InDelta(t, 1, w.Height(), 1e-6)
}

func Test_Wall_ResizeRatios(t *testing.T) {
	w := DefaultWall.ResizeLeft(1.5)
	assert.InDelta(t, -1.6, w.BottomLeft.X, 1e-6)
	assert.InDelta(t, .8, w.BottomRight.X, 1e-6)
	assert.Equal(t, DefaultWall, DefaultWall.ResizeTop(-1))
}

func Test_Projection_RoundTrip(t *testing.T) {
	wall := DefaultProjection.ToWall()
	assert.InDelta(t, DefaultWall.Width(), wall.Width(), 1e-3)
	assert.InDelta(t, DefaultWall.Height(), wall.Height(), 1e-3)
	assert.InDelta(t, 1, wall.BottomLeft.Z, 1e-4)

	back := Projection{Distance: 1}.FromWall(DefaultWall).ToWall()
	assert.InDelta(t, DefaultWall.BottomLeft.Z, back.BottomLeft.Z, 1e-4)
	assert.InDelta(t, DefaultWall.BottomLeft.X, back.BottomLeft.X, 1e-4)
}

func Test_FrustumData_EyeInFront(t *testing.T) {
	data := NewFrustumData(DefaultWall)
	eye := data.Transform.TransformPoint(Vector3{})
	assert.InDelta(t, 0, eye.X, 1e-6)
	assert.InDelta(t, 1, eye.Z, 1e-6)
	assert.InDelta(t, 1.6, data.Width, 1e-6)
}

func Test_ParseChannelPath(t *testing.T) {
	p, err := ParseChannelPath("1.0.2.3")
	assert.NoError(t, err)
	assert.Equal(t, ChannelPath{1, 0, 2, 3}, p)
	assert.Equal(t, "1.0.2.3", p.String())
	_, err = ParseChannelPath("1.0")
	assert.Error(t, err)
}

func Test_Viewport_ApplyTransformInverse(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	frac := gen.Float32Range(0, .5)
	size := gen.Float32Range(.1, .5)
	properties.Property("transform undoes apply", prop.ForAll(
		func(x, y, w, h float32) bool {
			parent := Viewport{x, y, w, h}
			child := Viewport{.25, .25, .5, .5}
			back := parent.Apply(child).Transform(parent)
			return abs32(back.X-child.X) < 1e-4 && abs32(back.W-child.W) < 1e-4 &&
				abs32(back.Y-child.Y) < 1e-4 && abs32(back.H-child.H) < 1e-4
		},
		frac, frac, size, size,
	))
	properties.TestingRun(t)
}
