package config

import (
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/frames"
	"github.com/twitter/equalizer/server/resources"
	"github.com/twitter/equalizer/transport"
	"github.com/twitter/equalizer/transport/inmemory"
)

func init() {
	if level, err := log.ParseLevel(os.Getenv("EQ_LOGLEVEL")); err == nil {
		log.SetLevel(level)
	}
}

const (
	destPath = "0.0.0.0"
	srcPath  = "0.1.0.0"
)

// fixture is one node with a destination channel showing a left half drawn
// in place and a right half drawn on a second pipe and assembled.
type fixture struct {
	t     *testing.T
	tr    *inmemory.Transport
	topo  *resources.Topology
	tree  *compound.Tree
	reg   *frames.Registry
	stats stats.StatsRegistry
	cfg   *Config

	dest, src         *resources.Channel
	root, left, right *compound.Compound
	done              chan struct{}
}

func newFixture(t *testing.T, robustness fabric.IAttr) *fixture {
	f := &fixture{
		t:     t,
		tr:    inmemory.NewTransport(),
		reg:   frames.NewTraceRegistry(),
		stats: stats.NewFinagleStatsRegistry(),
		done:  make(chan struct{}),
	}
	f.topo = resources.NewTopology(f.tr, 1)
	node, err := f.topo.AddNode("n0")
	require.NoError(t, err)
	f.dest = node.AddPipe("p0").AddWindow("w0", fabric.PixelViewport{W: 800, H: 600}).AddChannel("dest", fabric.FullViewport)
	f.src = node.AddPipe("p1").AddWindow("w1", fabric.PixelViewport{W: 800, H: 600}).AddChannel("src", fabric.FullViewport)

	defaults := fabric.NewDefaults()
	defaults.Robustness = robustness
	defaults.FrameTimeout = time.Second
	defaults.LaunchTimeout = time.Second
	f.tree = compound.NewTree(defaults)
	f.root = f.tree.AddRoot("root")
	f.root.SetChannel(f.dest)
	f.left = f.root.AddChild("left")
	f.left.SetViewport(fabric.Viewport{X: 0, Y: 0, W: .5, H: 1})
	f.right = f.root.AddChild("right")
	f.right.SetChannel(f.src)
	f.right.SetViewport(fabric.Viewport{X: .5, Y: 0, W: .5, H: 1})
	f.right.AddOutputFrame(frames.NewFrame("frame.right", frames.Output, f.reg, 1))
	f.root.AddInputFrame(frames.NewFrame("frame.right", frames.Input, f.reg, 1))

	receiver, _ := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return f.stats }, 0)
	f.cfg = New("test", defaults, f.tree, f.topo, f.tr, receiver)
	go f.pump()
	return f
}

func (f *fixture) pump() {
	for {
		select {
		case r := <-f.tr.Replies():
			f.cfg.Route(r)
		case <-f.done:
			return
		}
	}
}

func (f *fixture) close() {
	close(f.done)
	f.tr.Close()
}

func (f *fixture) init() {
	require.NoError(f.t, f.cfg.Init(context.Background(), "init"))
	require.True(f.t, f.cfg.IsRunning())
}

// frame starts the next frame and waits until the node finished it.
func (f *fixture) frame() uint32 {
	frame, err := f.cfg.StartFrame()
	require.NoError(f.t, err)
	f.cfg.FinishAllFrames()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(f.t, f.cfg.WaitFrameFinished(ctx, frame))
	return frame
}

func (f *fixture) taskOps(entity string) []fabric.Opcode {
	var ops []fabric.Opcode
	for _, cmd := range f.tr.Commands("n0") {
		if cmd.Entity != entity {
			continue
		}
		switch cmd.Op {
		case fabric.OpChannelFrameClear, fabric.OpChannelFrameDraw,
			fabric.OpChannelFrameAssemble, fabric.OpChannelFrameReadback:
			ops = append(ops, cmd.Op)
		}
	}
	return ops
}

func (f *fixture) count(op fabric.Opcode) int {
	n := 0
	for _, cmd := range f.tr.Commands("n0") {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

func TestInitExit(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()

	for _, e := range []resources.Entity{f.topo.Nodes()[0], f.dest.Pipe(), f.dest.Window(), f.dest, f.src} {
		assert.True(t, e.IsRunning(), "%s is %s", e.Path(), e.Monitor().Get())
	}
	assert.Equal(t, 2, f.cfg.RunningChannels())

	require.NoError(t, f.cfg.Exit(context.Background()))
	assert.Equal(t, StateStopped, f.cfg.State())
	for _, e := range []resources.Entity{f.topo.Nodes()[0], f.dest.Window(), f.dest, f.src} {
		assert.Equal(t, resources.StateStopped, e.Monitor().Get().State, e.Path())
	}
	assert.False(t, f.topo.Nodes()[0].IsConnected())
	assert.Equal(t, 2, f.count(fabric.OpChannelConfigExit))
}

func TestStartFrame_NotRunning(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	_, err := f.cfg.StartFrame()
	assert.Equal(t, ErrNotRunning, err)
}

func TestFrame_TaskOrder(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()
	f.frame()

	assert.Equal(t, []fabric.Opcode{
		fabric.OpChannelFrameClear,
		fabric.OpChannelFrameDraw,
		fabric.OpChannelFrameAssemble,
	}, f.taskOps(destPath))
	assert.Equal(t, []fabric.Opcode{
		fabric.OpChannelFrameClear,
		fabric.OpChannelFrameDraw,
		fabric.OpChannelFrameReadback,
	}, f.taskOps(srcPath))

	// exactly one draw finish per level
	assert.Equal(t, 2, f.count(fabric.OpChannelFrameDrawFinish))
	assert.Equal(t, 2, f.count(fabric.OpWindowFrameDrawFinish))
	assert.Equal(t, 2, f.count(fabric.OpPipeFrameDrawFinish))
	assert.Equal(t, 1, f.count(fabric.OpNodeFrameDrawFinish))
	assert.Equal(t, uint32(1), f.cfg.FinishedFrame())
}

func TestFrame_AssembleReferencesCommittedReadback(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()
	f.frame()

	var readback, assemble *fabric.Command
	for _, cmd := range f.tr.Commands("n0") {
		cmd := cmd
		switch cmd.Op {
		case fabric.OpChannelFrameReadback:
			readback = &cmd
		case fabric.OpChannelFrameAssemble:
			assemble = &cmd
		}
	}
	require.NotNil(t, readback)
	require.NotNil(t, assemble)
	require.Len(t, readback.Frames, 1)
	require.Len(t, assemble.Frames, 1)
	assert.Equal(t, "frame.right", assemble.Frames[0].Name)

	output := f.right.OutputFrames()[0]
	version, ok := f.reg.Version(output.ID())
	assert.True(t, ok)
	assert.Equal(t, readback.Frames[0].Version, version)
}

func TestFrame_CommitAfterBind(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()
	f.reg.ResetTrace()
	f.frame()

	output := f.right.OutputFrames()[0]
	dataID := output.Data(fabric.EyeCyclop).ID()
	bind, commit := -1, -1
	for i, e := range f.reg.Trace() {
		switch {
		case e.Kind == frames.EventBind && e.Peer == dataID && bind < 0:
			bind = i
		case e.Kind == frames.EventCommit && e.ID == dataID && commit < 0:
			commit = i
		}
	}
	require.True(t, bind >= 0, "no bind of %s", dataID)
	assert.True(t, commit > bind, "commit at %d before bind at %d", commit, bind)
}

func TestInit_FailedChannelIsTolerated(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.tr.FailInit("n0", srcPath)
	f.init()

	assert.True(t, f.dest.IsRunning())
	assert.Equal(t, resources.StateFailed, f.src.Monitor().Get().State)
	assert.Equal(t, 1, f.cfg.RunningChannels())

	f.frame()
	// nothing to assemble without the source channel
	assert.Equal(t, []fabric.Opcode{fabric.OpChannelFrameClear, fabric.OpChannelFrameDraw}, f.taskOps(destPath))
	assert.Empty(t, f.taskOps(srcPath))

	stats.VerifyStats("tolerated", f.stats, t,
		map[string]stats.Rule{
			stats.SyncFailureCounter: {Checker: stats.Int64EqTest, Value: 1},
			stats.ConfigRunningGauge: {Checker: stats.Int64EqTest, Value: 1},
		})
}

func TestInit_FailsWithoutRobustness(t *testing.T) {
	f := newFixture(t, fabric.Off)
	defer f.close()
	f.tr.FailInit("n0", srcPath)

	err := f.cfg.Init(context.Background(), "init")
	assert.Error(t, err)
	assert.Equal(t, StateStopped, f.cfg.State())
	assert.Equal(t, resources.StateStopped, f.dest.Monitor().Get().State)
}

func TestInit_UnreachableNode(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	launcher := transport.NewMockTransport(mockCtrl)
	launcher.EXPECT().Connect(gomock.Any(), "n0").Return(errors.New("connection refused")).MinTimes(1)

	topo := resources.NewTopology(launcher, 1)
	node, err := topo.AddNode("n0")
	require.NoError(t, err)
	ch := node.AddPipe("p0").AddWindow("w0", fabric.PixelViewport{W: 64, H: 64}).AddChannel("c0", fabric.FullViewport)

	defaults := fabric.NewDefaults()
	defaults.LaunchTimeout = 50 * time.Millisecond
	tree := compound.NewTree(defaults)
	tree.AddRoot("root").SetChannel(ch)

	statsRegistry := stats.NewFinagleStatsRegistry()
	statsReceiver, _ := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return statsRegistry }, 0)
	cfg := New("unreachable", defaults, tree, topo, launcher, statsReceiver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Error(t, cfg.Init(ctx, "init"))
	assert.Equal(t, StateStopped, cfg.State())
	assert.False(t, node.IsConnected())

	stats.VerifyStats("unreachable", statsRegistry, t,
		map[string]stats.Rule{
			stats.NodeFailedCounter:  {Checker: stats.Int64EqTest, Value: 1},
			stats.ConfigRunningGauge: {Checker: stats.Int64EqTest, Value: 0},
		})
}

func TestDisconnect_FailsNode(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()
	f.frame()

	require.NoError(t, f.tr.Disconnect("n0"))
	deadline := time.After(time.Second)
	for processed := 0; processed == 0; {
		select {
		case <-f.cfg.Ready():
			processed = f.cfg.ProcessReplies()
		case <-deadline:
			t.Fatal("disconnect was not routed")
		}
	}

	node := f.topo.Nodes()[0]
	assert.False(t, node.IsConnected())
	assert.Equal(t, resources.StateFailed, node.Monitor().Get().State)
	assert.Equal(t, resources.StateFailed, f.dest.Monitor().Get().State)

	// a failed node does not hold back the frame counter
	frame, err := f.cfg.StartFrame()
	require.NoError(t, err)
	assert.Equal(t, frame, f.cfg.FinishedFrame())

	stats.VerifyStats("disconnect", f.stats, t,
		map[string]stats.Rule{
			stats.NodeFailedCounter:  {Checker: stats.Int64EqTest, Value: 1},
			stats.FrameStartCounter:  {Checker: stats.Int64EqTest, Value: 2},
			stats.FrameFinishCounter: {Checker: stats.Int64EqTest, Value: 2},
		})
}

func TestReplyQueue_DrainTakesReadyToken(t *testing.T) {
	q := newReplyQueue()
	q.push(fabric.Reply{Op: fabric.OpFrameFinishReply, Node: "n0", Frame: 1})
	q.push(fabric.Reply{Op: fabric.OpFrameFinishReply, Node: "n0", Frame: 2})
	assert.Len(t, q.drain(), 2)

	select {
	case <-q.ready:
		t.Fatal("ready still signalled after drain")
	default:
	}
	assert.Empty(t, q.drain())

	q.push(fabric.Reply{Op: fabric.OpFrameFinishReply, Node: "n0", Frame: 3})
	select {
	case <-q.ready:
	default:
		t.Fatal("push after drain did not signal ready")
	}
	assert.Len(t, q.drain(), 1)
}

func TestSync_SkipsBelowStoppedEntities(t *testing.T) {
	topo := resources.NewTopology(nil, 1)
	node, err := topo.AddNode("n0")
	require.NoError(t, err)
	pipe := node.AddPipe("p0")
	ch := pipe.AddWindow("w0", fabric.PixelViewport{W: 64, H: 64}).AddChannel("c0", fabric.FullViewport)
	require.NoError(t, node.Monitor().Set(resources.StateFailed))
	require.NoError(t, pipe.Monitor().Set(resources.StateFailed))

	v := &syncVisitor{ctx: context.Background()}
	assert.Equal(t, fabric.Prune, node.Accept(v))
	assert.Equal(t, resources.StateStopped, node.Monitor().Get().State)
	assert.Equal(t, resources.StateFailed, pipe.Monitor().Get().State)
	assert.Equal(t, resources.StateStopped, ch.Monitor().Get().State)
	assert.False(t, v.result.Failed)
	assert.Equal(t, 0, v.result.RunningChannels)

	// the next pass reaches the stopped node only
	assert.Equal(t, fabric.Prune, node.Accept(v))
	assert.Equal(t, resources.StateFailed, pipe.Monitor().Get().State)
}

func TestHandleReply_Unknown(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	assert.Error(t, f.cfg.HandleReply(fabric.Reply{Op: fabric.OpFrameFinishReply, Node: "nobody", Frame: 1}))
	assert.Error(t, f.cfg.HandleReply(fabric.Reply{Op: fabric.OpConfigInitReply, Entity: "0"}))
}

func TestCheckFrame_TimeoutFailsLaggingNode(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()

	frame, err := f.cfg.StartFrame()
	require.NoError(t, err)
	// the frame is never released, so the node cannot finish it
	f.cfg.SetClock(stats.NewFixedClock(time.Unix(0, 0), 2*time.Second, nil))
	assert.True(t, f.cfg.CheckFrame(frame))
	assert.Equal(t, resources.StateFailed, f.topo.Nodes()[0].Monitor().Get().State)
	assert.Equal(t, frame, f.cfg.FinishedFrame())
}

func TestStats_OneFrame(t *testing.T) {
	f := newFixture(t, fabric.On)
	defer f.close()
	f.init()
	f.frame()

	stats.VerifyStats("one frame", f.stats, t,
		map[string]stats.Rule{
			stats.FrameStartCounter:      {Checker: stats.Int64EqTest, Value: 1},
			stats.FrameFinishCounter:     {Checker: stats.Int64EqTest, Value: 1},
			stats.FrameCurrentGauge:      {Checker: stats.Int64EqTest, Value: 1},
			stats.FrameFinishedGauge:     {Checker: stats.Int64EqTest, Value: 1},
			stats.RunningChannelsGauge:   {Checker: stats.Int64EqTest, Value: 2},
			stats.TransportLaunchCounter: {Checker: stats.Int64EqTest, Value: 1},
			stats.SyncFailureCounter:     {Checker: stats.DoesNotExistTest},
			stats.NodeFailedCounter:      {Checker: stats.DoesNotExistTest},
		})
}
