package server

import (
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/config"
	"github.com/twitter/equalizer/server/resources"
	"github.com/twitter/equalizer/transport/inmemory"
)

func init() {
	if level, err := log.ParseLevel(os.Getenv("EQ_LOGLEVEL")); err == nil {
		log.SetLevel(level)
	}
}

func newTestServer(t *testing.T, settings Settings) (*Server, *inmemory.Transport, stats.StatsRegistry) {
	tr := inmemory.NewTransport()
	topo := resources.NewTopology(tr, 1)
	node, err := topo.AddNode("n0")
	require.NoError(t, err)
	ch := node.AddPipe("p0").AddWindow("w0", fabric.PixelViewport{W: 640, H: 480}).AddChannel("c0", fabric.FullViewport)

	defaults := fabric.NewDefaults()
	defaults.FrameTimeout = time.Second
	defaults.LaunchTimeout = time.Second
	tree := compound.NewTree(defaults)
	tree.AddRoot("root").SetChannel(ch)

	reg := stats.NewFinagleStatsRegistry()
	receiver, _ := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg }, 0)
	cfg := config.New("test", defaults, tree, topo, tr, receiver)
	s := NewServer(cfg, tr, receiver, settings)
	s.Start(context.Background())
	return s, tr, reg
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func TestServer_Frames(t *testing.T) {
	s, tr, reg := newTestServer(t, Settings{})
	defer tr.Close()
	defer s.Stop()
	ctx, cancel := withTimeout()
	defer cancel()

	require.NoError(t, s.RequestInit(ctx, ""))
	assert.True(t, s.Healthy())

	for want := uint32(1); want <= 3; want++ {
		frame, err := s.RequestFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, frame)
	}
	require.NoError(t, s.RequestFinishAll(ctx))
	require.NoError(t, s.RequestExit(ctx))
	assert.False(t, s.Healthy())

	stats.VerifyStats("Frames", reg, t, map[string]stats.Rule{
		stats.ServerRequestCounter:  {Checker: stats.Int64EqTest, Value: 6},
		stats.FrameStartCounter:     {Checker: stats.Int64EqTest, Value: 3},
		stats.FrameFinishCounter:    {Checker: stats.Int64EqTest, Value: 3},
		stats.FrameFinishedGauge:    {Checker: stats.Int64EqTest, Value: 3},
		stats.FrameThrottledCounter: {Checker: stats.DoesNotExistTest},
		stats.ConfigRunningGauge:    {Checker: stats.Int64EqTest, Value: 0},
	})
}

func TestServer_FrameLatency(t *testing.T) {
	s, tr, reg := newTestServer(t, Settings{})
	defer tr.Close()
	defer s.Stop()
	ctx, cancel := withTimeout()
	defer cancel()
	require.NoError(t, s.RequestInit(ctx, "latency"))

	for want := uint32(1); want <= 4; want++ {
		frame, err := s.RequestFrame(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, frame)
		require.NoError(t, s.RequestStopFrames(ctx))

		// a frame request returns once the node caught up to the latency
		stats.VerifyStats("FrameLatency", reg, t, map[string]stats.Rule{
			stats.FrameCurrentGauge: {Checker: stats.Int64EqTest, Value: int64(want)},
		})
		if want > 1 {
			stats.VerifyStats("FrameLatency", reg, t, map[string]stats.Rule{
				stats.FrameFinishedGauge: {Checker: stats.Int64EqTest, Value: int64(want - 1)},
			})
		}
	}
	require.NoError(t, s.RequestExit(ctx))

	var stops int
	for _, cmd := range tr.Commands("n0") {
		if cmd.Op == fabric.OpChannelStopFrame {
			stops++
		}
	}
	assert.Equal(t, 4, stops)
}

func TestServer_NotRunning(t *testing.T) {
	s, tr, _ := newTestServer(t, Settings{})
	defer tr.Close()
	defer s.Stop()
	ctx, cancel := withTimeout()
	defer cancel()

	_, err := s.RequestFrame(ctx)
	assert.Equal(t, config.ErrNotRunning, err)
	assert.Equal(t, config.ErrNotRunning, s.RequestFinishAll(ctx))
	assert.Equal(t, config.ErrNotRunning, s.RequestUpdate(ctx))
	assert.Equal(t, config.ErrNotRunning, s.RequestStopFrames(ctx))
	assert.False(t, s.Healthy())
}

func TestServer_Throttle(t *testing.T) {
	s, tr, reg := newTestServer(t, Settings{MaxFPS: 20})
	defer tr.Close()
	defer s.Stop()
	ctx, cancel := withTimeout()
	defer cancel()
	require.NoError(t, s.RequestInit(ctx, ""))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := s.RequestFrame(ctx)
		require.NoError(t, err)
	}
	// one frame comes from the burst, the others wait 50ms each
	assert.True(t, time.Since(start) >= 90*time.Millisecond, "took %s", time.Since(start))
	require.NoError(t, s.RequestExit(ctx))

	stats.VerifyStats("Throttle", reg, t, map[string]stats.Rule{
		stats.FrameStartCounter:     {Checker: stats.Int64EqTest, Value: 3},
		stats.FrameThrottledCounter: {Checker: stats.Int64EqTest, Value: 2},
	})
}

func TestServer_Stopped(t *testing.T) {
	s, tr, _ := newTestServer(t, Settings{})
	defer tr.Close()
	s.Stop()

	ctx, cancel := withTimeout()
	defer cancel()
	_, err := s.RequestFrame(ctx)
	assert.Equal(t, ErrStopped, err)
}

func TestServer_StopWithContext(t *testing.T) {
	tr := inmemory.NewTransport()
	defer tr.Close()
	topo := resources.NewTopology(tr, 1)
	cfg := config.New("empty", fabric.NewDefaults(), compound.NewTree(fabric.NewDefaults()), topo, tr, nil)
	s := NewServer(cfg, tr, nil, Settings{TickRate: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	<-s.Done()

	reqCtx, reqCancel := withTimeout()
	defer reqCancel()
	assert.Equal(t, ErrStopped, s.RequestExit(reqCtx))
}

func TestServer_InitWithoutChannelsFails(t *testing.T) {
	tr := inmemory.NewTransport()
	defer tr.Close()
	topo := resources.NewTopology(tr, 1)
	cfg := config.New("empty", fabric.NewDefaults(), compound.NewTree(fabric.NewDefaults()), topo, tr, nil)
	s := NewServer(cfg, tr, nil, Settings{})
	s.Start(context.Background())
	defer s.Stop()

	ctx, cancel := withTimeout()
	defer cancel()
	assert.Error(t, s.RequestInit(ctx, ""))
	assert.Equal(t, config.StateStopped, cfg.State())
}
