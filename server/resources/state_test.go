package resources

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/fabric"
)

type recordingSender struct {
	cmds []fabric.Command
}

func (s *recordingSender) Send(node string, cmd fabric.Command) error {
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSender) ops() []fabric.Opcode {
	ops := []fabric.Opcode{}
	for _, c := range s.cmds {
		ops = append(ops, c.Op)
	}
	return ops
}

func (s *recordingSender) reset() { s.cmds = nil }

func makeChannel(t *testing.T, sender Sender) *Channel {
	topo := NewTopology(sender, 1)
	node, err := topo.AddNode("node0")
	if err != nil {
		t.Fatal(err)
	}
	pipe := node.AddPipe("gpu0")
	win := pipe.AddWindow("win0", fabric.PixelViewport{W: 800, H: 600})
	return win.AddChannel("chan0", fabric.FullViewport)
}

func TestStateMonitor_RejectsIllegalTransition(t *testing.T) {
	m := NewStateMonitor("channel 0.0.0.0")
	err := m.Set(StateRunning)
	assert.Error(t, err)
	terr, ok := err.(*TransitionError)
	assert.True(t, ok)
	assert.Equal(t, StateStopped, terr.From)
	assert.Equal(t, StateRunning, terr.To)
	assert.Equal(t, StateStopped, m.Get().State)
}

func TestStateMonitor_PendingDeleteIsOrthogonal(t *testing.T) {
	m := NewStateMonitor("node 0")
	m.SetPendingDelete(true)
	assert.NoError(t, m.Set(StateInitializing))
	assert.Equal(t, RunState{State: StateInitializing, PendingDelete: true}, m.Get())
	assert.Equal(t, "INITIALIZING|DELETE", m.Get().String())
}

func TestStateMonitor_WaitNEUnblocksOnResolve(t *testing.T) {
	m := NewStateMonitor("node 0")
	assert.NoError(t, m.Set(StateInitializing))
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Resolve(StateInitializing, StateInitSuccess)
	}()
	state, err := m.WaitNE(context.Background(), StateInitializing)
	assert.NoError(t, err)
	assert.Equal(t, StateInitSuccess, state)
}

func TestStateMonitor_WaitNETimesOut(t *testing.T) {
	m := NewStateMonitor("node 0")
	assert.NoError(t, m.Set(StateInitializing))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	state, err := m.WaitNE(ctx, StateInitializing)
	assert.Error(t, err)
	assert.Equal(t, StateInitializing, state)
}

func TestSyncConfigInit_FailureGoesToExiting(t *testing.T) {
	sender := &recordingSender{}
	c := makeChannel(t, sender)
	c.ConfigInit("init", 0)
	c.HandleReply(fabric.OpConfigInitReply, false, "no drawable")

	assert.False(t, c.SyncConfigInit(context.Background()))
	assert.Equal(t, StateExiting, c.State())
	assert.Equal(t, "no drawable", c.LastError())
	assert.Equal(t, []fabric.Opcode{fabric.OpChannelConfigInit, fabric.OpChannelConfigExit}, sender.ops())

	c.HandleReply(fabric.OpConfigExitReply, true, "")
	assert.True(t, c.SyncConfigExit(context.Background()))
	assert.Equal(t, StateStopped, c.State())
}

func TestSyncConfigExit_ActiveEntityFails(t *testing.T) {
	c := makeChannel(t, &recordingSender{})
	c.Activate()
	c.ConfigInit("init", 0)
	c.HandleReply(fabric.OpConfigInitReply, true, "")
	assert.True(t, c.SyncConfigInit(context.Background()))
	assert.True(t, c.IsRunning())

	c.ConfigExit()
	c.HandleReply(fabric.OpConfigExitReply, true, "")
	assert.True(t, c.SyncConfigExit(context.Background()))
	assert.Equal(t, StateFailed, c.State())
}

func TestDisconnect_ResolvesPendingInit(t *testing.T) {
	c := makeChannel(t, &recordingSender{})
	c.ConfigInit("init", 0)
	c.Node().Disconnected()
	assert.False(t, c.SyncConfigInit(context.Background()))
	assert.Equal(t, StateExiting, c.State())
	assert.False(t, c.Node().IsConnected())
}

func TestLateReplyIsIgnored(t *testing.T) {
	c := makeChannel(t, &recordingSender{})
	c.HandleReply(fabric.OpConfigInitReply, true, "")
	assert.Equal(t, StateStopped, c.State())
}

func Test_StateMachineLegality(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Set succeeds exactly for legal transitions", prop.ForAll(
		func(targets []int) bool {
			m := NewStateMonitor("prop")
			for _, target := range targets {
				from := m.Get().State
				to := State(target)
				err := m.Set(to)
				if CanTransition(from, to) != (err == nil) {
					return false
				}
				if from == StateInitFailed && to == StateRunning && err == nil {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(int(StateStopped), int(StateFailed))),
	))

	properties.Property("sync reports failure exactly for failed resolutions", prop.ForAll(
		func(initOK, exitOK bool) bool {
			c := makeChannel(t, &recordingSender{})
			c.ConfigInit("init", 0)
			c.HandleReply(fabric.OpConfigInitReply, initOK, "")
			if c.SyncConfigInit(context.Background()) != initOK {
				return false
			}
			if !initOK && c.State() != StateExiting {
				return false
			}
			if initOK {
				c.ConfigExit()
			}
			c.HandleReply(fabric.OpConfigExitReply, exitOK, "")
			return c.SyncConfigExit(context.Background()) == exitOK && c.State() == StateStopped
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
