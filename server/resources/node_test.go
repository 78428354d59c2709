package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

func runChannel(t *testing.T, c *Channel) {
	entities := []Entity{c.Node(), c.Pipe(), c.Window(), c}
	for _, e := range entities {
		e.ConfigInit("init", 0)
		e.HandleReply(fabric.OpConfigInitReply, true, "")
		if !e.SyncConfigInit(context.Background()) {
			t.Fatalf("init of %s failed", e.Path())
		}
	}
}

type drawUpdater struct {
	frames []uint32
}

func (u *drawUpdater) UpdateChannel(c *Channel, frameID string, frame uint32) bool {
	u.frames = append(u.frames, frame)
	c.Send(fabric.Command{Op: fabric.OpChannelFrameDraw, Frame: frame})
	return true
}

func TestNodeUpdate_CommandOrder(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	c.Activate()
	runChannel(t, c)
	sender.reset()

	updater := &drawUpdater{}
	c.Node().Update("f1", 1, updater)

	assert.Equal(t, []uint32{1}, updater.frames)
	assert.Equal(t, []fabric.Opcode{
		fabric.OpNodeFrameStart,
		fabric.OpPipeFrameStartClock,
		fabric.OpPipeFrameStart,
		fabric.OpWindowFrameStart,
		fabric.OpChannelFrameStart,
		fabric.OpChannelFrameDraw,
		fabric.OpChannelFrameFinish,
		fabric.OpWindowFrameDrawFinish,
		fabric.OpWindowFrameFinish,
		fabric.OpPipeFrameDrawFinish,
		fabric.OpPipeFrameFinish,
		fabric.OpNodeFrameDrawFinish,
		fabric.OpNodeFrameTasksFinish,
	}, sender.ops())
}

func TestNodeUpdate_LastDrawMarkersSuppressFallback(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	c.Activate()
	runChannel(t, c)
	sender.reset()

	topo := &Topology{nodes: []*Node{c.Node()}}
	c.AddTasks(fabric.TaskDraw)
	topo.UpdateLastDraw()
	assert.Equal(t, c, c.Window().LastDrawChannel())
	assert.Equal(t, c.Window(), c.Pipe().LastDrawWindow())
	assert.Equal(t, c.Pipe(), c.Node().LastDrawPipe())

	c.Node().Update("f1", 1, nil)
	for _, op := range sender.ops() {
		assert.NotEqual(t, fabric.OpWindowFrameDrawFinish, op)
		assert.NotEqual(t, fabric.OpPipeFrameDrawFinish, op)
		assert.NotEqual(t, fabric.OpNodeFrameDrawFinish, op)
	}
	assert.Nil(t, c.Node().LastDrawPipe())
}

func TestNodeFlushFrames_ThreadedPipeKeepsLatency(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	c.Activate()
	runChannel(t, c)
	node := c.Node()
	node.SetThreadModel(ThreadModelAsync)

	finished := []uint32{}
	for frame := uint32(1); frame <= 4; frame++ {
		sender.reset()
		node.Update("f", frame, nil)
		for _, cmd := range sender.cmds {
			if cmd.Op == fabric.OpNodeFrameFinish {
				finished = append(finished, cmd.Frame)
			}
		}
		assert.True(t, node.PendingFrames() <= 2)
	}
	assert.Equal(t, []uint32{1, 2, 3}, finished)
	assert.Equal(t, uint32(3), node.FlushedFrame())
}

func TestNodeFlushFrames_UnthreadedFlushesCurrent(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	c.Activate()
	runChannel(t, c)
	c.Pipe().SetThreaded(false)

	c.Node().Update("f", 1, nil)
	assert.Equal(t, uint32(1), c.Node().FlushedFrame())
	assert.Equal(t, 0, c.Node().PendingFrames())
}

func TestNodeFinishLatency(t *testing.T) {
	c := makeChannel(t, &recordingSender{})
	node := c.Node()
	node.SetLatency(3)
	assert.Equal(t, uint32(3), node.FinishLatency())

	node.AddTasks(fabric.TaskDraw)
	assert.Equal(t, uint32(1), node.FinishLatency())

	node.SetThreadModel(ThreadModelLocalSync)
	assert.Equal(t, uint32(0), node.FinishLatency())

	node.SetThreadModel(ThreadModelAsync)
	assert.Equal(t, uint32(3), node.FinishLatency())
}

func TestWindowUpdatePost_ThrottleAndBarrier(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	c.Activate()
	runChannel(t, c)
	w := c.Window()
	other := c.Pipe().AddWindow("win1", fabric.PixelViewport{W: 10, H: 10})

	barrier := w.JoinSwapBarrier(nil, "barrier.0")
	assert.Equal(t, barrier, other.JoinSwapBarrier(barrier, "barrier.0"))
	assert.Equal(t, barrier, w.JoinSwapBarrier(barrier, "barrier.0"))
	assert.Equal(t, uint32(2), barrier.Height())

	w.LimitMaxFPS(50)
	w.LimitMaxFPS(100)
	sender.reset()
	w.updatePost("f", 1)

	assert.Len(t, sender.cmds, 3)
	assert.Equal(t, fabric.OpWindowThrottleFramerate, sender.cmds[0].Op)
	assert.Equal(t, float32(20), sender.cmds[0].MinFrameTime)
	assert.Equal(t, fabric.OpWindowBarrier, sender.cmds[1].Op)
	assert.Equal(t, barrier.ID(), sender.cmds[1].BarrierID)
	assert.Equal(t, uint32(2), sender.cmds[1].BarrierSize)
	assert.True(t, sender.cmds[2].Finish)
}

func TestCanvasUseLayout_SwitchesDestinations(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	topo := NewTopology(sender, 1)
	l0 := topo.AddLayout("l0")
	l1 := topo.AddLayout("l1")
	v0 := l0.AddView("v0", fabric.FullViewport)
	v1 := l1.AddView("v1", fabric.FullViewport)
	canvas := topo.AddCanvas("canvas")
	canvas.AddLayout(l0)
	canvas.AddLayout(l1)
	segment := canvas.AddSegment("s0", fabric.FullViewport, c)

	d0 := c.Window().AddChannel("d0", fabric.FullViewport)
	d1 := c.Window().AddChannel("d1", fabric.FullViewport)
	segment.AddDestination(d0, v0)
	segment.AddDestination(d1, v1)
	assert.False(t, d0.IsActive())

	assert.True(t, canvas.UseLayout(0))
	assert.True(t, d0.IsActive())
	assert.False(t, d1.IsActive())
	assert.True(t, c.Node().IsActive())

	assert.False(t, canvas.UseLayout(0))
	assert.True(t, canvas.UseLayout(1))
	assert.False(t, d0.IsActive())
	assert.True(t, d1.IsActive())

	assert.True(t, segment.RemoveDestination(d1))
	assert.False(t, d1.IsActive())
	assert.Nil(t, d1.View())
}

func TestTopologyEntityLookup(t *testing.T) {
	sender := &recordingSender{}
	topo := NewTopology(sender, 1)
	node, _ := topo.AddNode("n")
	win := node.AddPipe("p").AddWindow("w", fabric.PixelViewport{W: 4, H: 4})
	win.AddChannel("a", fabric.FullViewport)
	b := win.AddChannel("b", fabric.Viewport{X: .5, W: .5, H: 1})

	e, err := topo.Entity("0.0.0.1")
	assert.NoError(t, err)
	assert.Equal(t, b, e)
	assert.Equal(t, b, topo.FindChannel(fabric.ChannelPath{Channel: 1}))
	assert.Equal(t, b, topo.FindChannelByName("b"))
	assert.Equal(t, fabric.PixelViewport{X: 2, W: 2, H: 4}, b.PixelViewport())

	_, err = topo.Entity("0.3")
	assert.Error(t, err)
}
