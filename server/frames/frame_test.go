package frames

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/twitter/equalizer/fabric"
)

func TestZigzag_3x2(t *testing.T) {
	got := Zigzag(fabric.Vector2i{X: 3, Y: 2})
	want := []fabric.Vector2i{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zigzag order mismatch (-want +got):\n%s", diff)
	}
}

func Test_ZigzagCoverage(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every cell exactly once", prop.ForAll(
		func(w, h int32) bool {
			cells := Zigzag(fabric.Vector2i{X: w, Y: h})
			if len(cells) != int(w*h) {
				return false
			}
			seen := map[fabric.Vector2i]bool{}
			for _, c := range cells {
				if seen[c] || c.X < 0 || c.X >= w || c.Y < 0 || c.Y >= h {
					return false
				}
				seen[c] = true
			}
			return true
		},
		gen.Int32Range(1, 20),
		gen.Int32Range(1, 20),
	))

	properties.TestingRun(t)
}

func TestTileRects_ClipsPartialTiles(t *testing.T) {
	tiles := TileRects(fabric.PixelViewport{W: 100, H: 70}, fabric.Vector2i{X: 64, Y: 64})
	assert.Len(t, tiles, 4)
	assert.Equal(t, fabric.PixelViewport{X: 0, Y: 0, W: 64, H: 64}, tiles[0].PVP)
	assert.Equal(t, fabric.PixelViewport{X: 64, Y: 0, W: 36, H: 64}, tiles[1].PVP)
	assert.Equal(t, fabric.PixelViewport{X: 64, Y: 64, W: 36, H: 6}, tiles[2].PVP)
	assert.Equal(t, fabric.PixelViewport{X: 0, Y: 64, W: 64, H: 6}, tiles[3].PVP)
	assert.InDelta(t, .64, tiles[1].VP.X, 1e-6)
	assert.InDelta(t, .36, tiles[1].VP.W, 1e-6)
}

func TestFrame_ReusesDataOutsideLatency(t *testing.T) {
	reg := NewRegistry()
	f := NewFrame("frame.dest", Output, reg, 1)

	f.CycleData(1, fabric.EyeCyclop)
	first := f.Data(fabric.EyeCyclop)
	f.CycleData(2, fabric.EyeCyclop)
	second := f.Data(fabric.EyeCyclop)
	assert.NotEqual(t, first.ID(), second.ID())

	f.CycleData(3, fabric.EyeCyclop)
	assert.Equal(t, first.ID(), f.Data(fabric.EyeCyclop).ID())
	assert.Equal(t, uint32(3), first.FrameNumber())
	assert.Equal(t, 2, f.LiveData())
	assert.False(t, f.HasData(fabric.EyeLeft))

	f.Deregister()
	assert.Equal(t, 0, reg.Live())
}

func Test_FramePoolBounded(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("live payloads per eye never exceed latency+2", prop.ForAll(
		func(latency uint32, steps []uint32, eyes uint32) bool {
			f := NewFrame("frame", Output, NewRegistry(), latency)
			frame := uint32(0)
			for i, step := range steps {
				frame += step
				mask := fabric.Eye(eyes>>uint(i%3)) & fabric.EyesAll
				f.CycleData(frame, mask)
				for e := range f.pools {
					if f.pools[e].len() > int(latency)+2 {
						return false
					}
				}
			}
			return true
		},
		gen.UInt32Range(0, 4),
		gen.SliceOf(gen.UInt32Range(0, 3)),
		gen.UInt32Range(0, 63),
	))

	properties.TestingRun(t)
}

func TestFrame_CommitAfterBinds(t *testing.T) {
	reg := NewTraceRegistry()
	out := NewFrame("frame.out", Output, reg, 1)
	in1 := NewFrame("frame.out", Input, reg, 1)
	in2 := NewFrame("frame.out", Input, reg, 1)
	reg.ResetTrace()

	out.CycleData(1, fabric.EyeCyclop)
	out.AddInputFrame(in1, fabric.EyeCyclop)
	out.AddInputFrame(in2, fabric.EyeCyclop)
	out.Commit()

	trace := reg.Trace()
	dataID := out.Data(fabric.EyeCyclop).ID()
	assert.Equal(t, dataID, in1.Data(fabric.EyeCyclop).ID())
	assert.Same(t, out, in2.OutputFrame())

	var binds, commit int
	for i, e := range trace {
		switch {
		case e.Kind == EventBind:
			binds = i
		case e.Kind == EventCommit && e.ID == dataID:
			commit = i
		}
	}
	assert.True(t, commit > binds, "commit at %d before bind at %d: %v", commit, binds, trace)
	assert.Equal(t, []*Frame{in1, in2}, out.InputFrames(fabric.EyeCyclop))
}

func TestTileQueue_InputReportsOutputMaster(t *testing.T) {
	reg := NewRegistry()
	out := NewTileQueue("queue", Output, reg, 1)
	in := NewTileQueue("queue", Input, reg, 1)

	out.CycleData(1, fabric.EyeLeft|fabric.EyeRight)
	for _, tile := range TileRects(fabric.PixelViewport{W: 128, H: 64}, out.TileSize()) {
		out.AddTile(tile, fabric.EyeLeft)
	}
	in.SetOutputQueue(out)

	assert.Len(t, out.Tiles(fabric.EyeLeft), 2)
	assert.Empty(t, out.Tiles(fabric.EyeRight))
	assert.Empty(t, out.MasterID(fabric.EyeCyclop))
	assert.Equal(t, out.MasterID(fabric.EyeLeft), in.MasterID(fabric.EyeLeft))
	assert.NotEqual(t, in.MasterID(fabric.EyeLeft), in.MasterID(fabric.EyeRight))

	out.Commit()
	v, ok := reg.Version(out.MasterID(fabric.EyeLeft))
	assert.True(t, ok)
	assert.Equal(t, uint32(1), v)
}
