package inmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

func nextReply(t *testing.T, tr *Transport) fabric.Reply {
	select {
	case r := <-tr.Replies():
		return r
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	return fabric.Reply{}
}

func TestSendRequiresConnect(t *testing.T) {
	tr := NewTransport()
	defer tr.Close()
	assert.Error(t, tr.Send("n", fabric.Command{Op: fabric.OpNodeConfigInit}))

	tr.SetUnreachable("m")
	assert.Error(t, tr.Connect(context.Background(), "m"))
}

func TestInitReplies(t *testing.T) {
	tr := NewTransport()
	defer tr.Close()
	assert.NoError(t, tr.Connect(context.Background(), "n"))
	tr.FailInit("n", "0.0")

	assert.NoError(t, tr.Send("n", fabric.Command{Op: fabric.OpNodeConfigInit, Entity: "0"}))
	assert.NoError(t, tr.Send("n", fabric.Command{Op: fabric.OpPipeConfigInit, Entity: "0.0"}))

	r := nextReply(t, tr)
	assert.Equal(t, fabric.OpConfigInitReply, r.Op)
	assert.Equal(t, "0", r.Entity)
	assert.True(t, r.Success)

	r = nextReply(t, tr)
	assert.Equal(t, "0.0", r.Entity)
	assert.False(t, r.Success)
	assert.Len(t, tr.Commands("n"), 2)
}

func TestDrawStatisticsScaleWithArea(t *testing.T) {
	tr := NewTransport()
	defer tr.Close()
	assert.NoError(t, tr.Connect(context.Background(), "n"))
	tr.SetDrawCost("n", "0.0.0.0", 100)

	ctx := fabric.NewRenderContext()
	ctx.VP = fabric.Viewport{X: .5, W: .5, H: 1}
	ctx.TaskID = 7
	tr.Send("n", fabric.Command{Op: fabric.OpChannelFrameStart, Entity: "0.0.0.0", Frame: 3})
	tr.Send("n", fabric.Command{Op: fabric.OpChannelFrameDraw, Entity: "0.0.0.0", Frame: 3, Context: &ctx})
	tr.Send("n", fabric.Command{Op: fabric.OpChannelFrameFinish, Entity: "0.0.0.0", Frame: 3})

	r := nextReply(t, tr)
	assert.Equal(t, fabric.OpChannelFrameStatistics, r.Op)
	assert.Equal(t, uint32(3), r.Frame)
	assert.Equal(t, ctx.VP, r.Region)
	if assert.Len(t, r.Statistics, 1) {
		assert.Equal(t, int64(50), r.Statistics[0].Duration())
		assert.Equal(t, uint32(7), r.Statistics[0].Task)
	}
}

func TestDisconnectReply(t *testing.T) {
	tr := NewTransport()
	defer tr.Close()
	assert.NoError(t, tr.Connect(context.Background(), "n"))
	assert.NoError(t, tr.Disconnect("n"))
	r := nextReply(t, tr)
	assert.Equal(t, fabric.OpDisconnect, r.Op)
	assert.Equal(t, "n", r.Node)
}
