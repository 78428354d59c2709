// Package config runs the rendering session of one cluster configuration.
// It brings the render resources up and down, decomposes every frame
// through the compound tree and emits the task commands of each running
// channel. All methods except Route, State and the reply queue accessors
// must be called from the single control goroutine.
package config

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// State is the run state of the whole configuration.
type State int

const (
	StateStopped State = iota
	StateInitializing
	StateRunning
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateExiting:
		return "EXITING"
	}
	return "UNKNOWN"
}

// ErrNotRunning is returned by frame operations on a config that is not
// running.
var ErrNotRunning = errors.New("config is not running")

// Launcher connects and disconnects render client nodes.
// transport.Transport satisfies it.
type Launcher interface {
	Connect(ctx context.Context, node string) error
	Disconnect(node string) error
}

// Config owns the compound tree and resource topology of one session.
type Config struct {
	name     string
	defaults fabric.Defaults
	tree     *compound.Tree
	topo     *resources.Topology
	launcher Launcher
	stat     stats.StatsReceiver
	time     stats.Clock

	stateMu sync.RWMutex
	state   State

	initID        string
	latency       uint32
	currentFrame  uint32
	finishedFrame uint32
	needsFinish   bool
	frameStarts   map[uint32]time.Time

	runningChannels int

	// swap barriers by name, rejoined every frame
	barriers map[string]*resources.SwapBarrier
	// root destinations activated without a canvas
	autoActive []*compound.Compound

	index   *entityIndex
	replies *replyQueue
}

// New creates a stopped config. The config takes over the activation of
// destination channels from every canvas of topo.
func New(name string, defaults fabric.Defaults, tree *compound.Tree, topo *resources.Topology,
	launcher Launcher, stat stats.StatsReceiver) *Config {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	c := &Config{
		name:        name,
		defaults:    defaults,
		tree:        tree,
		topo:        topo,
		launcher:    launcher,
		stat:        stat,
		time:        stats.SystemClock(),
		latency:     topo.Latency(),
		frameStarts: make(map[uint32]time.Time),
		barriers:    make(map[string]*resources.SwapBarrier),
		index:       newEntityIndex(),
		replies:     newReplyQueue(),
	}
	for _, canvas := range topo.Canvases() {
		canvas.SetActivator(c)
	}
	c.publishStats()
	c.index.rebuild(topo)
	return c
}

// publishStats hands stat to the equalizers that report through it.
func (c *Config) publishStats() {
	type statsPublisher interface {
		SetStatsReceiver(stat stats.StatsReceiver)
	}
	c.tree.Accept(compound.VisitorFunc(func(comp *compound.Compound) fabric.VisitorResult {
		for _, eq := range comp.Equalizers() {
			if p, ok := eq.(statsPublisher); ok {
				p.SetStatsReceiver(c.stat)
			}
		}
		return fabric.Continue
	}))
}

func (c *Config) Name() string                  { return c.name }
func (c *Config) Defaults() fabric.Defaults     { return c.defaults }
func (c *Config) Tree() *compound.Tree          { return c.tree }
func (c *Config) Topology() *resources.Topology { return c.topo }
func (c *Config) Latency() uint32               { return c.latency }
func (c *Config) CurrentFrame() uint32          { return c.currentFrame }
func (c *Config) FinishedFrame() uint32         { return c.finishedFrame }
func (c *Config) NeedsFinish() bool             { return c.needsFinish }
func (c *Config) RunningChannels() int          { return c.runningChannels }

// SetClock replaces the clock used for frame latencies.
func (c *Config) SetClock(t stats.Clock) { c.time = t }

// State may be read from any goroutine.
func (c *Config) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Config) IsRunning() bool { return c.State() == StateRunning }

func (c *Config) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()

	running := int64(0)
	if s == StateRunning {
		running = 1
	}
	c.stat.Gauge(stats.ConfigRunningGauge).Update(running)
	log.WithFields(log.Fields{"config": c.name, "state": s}).Info("Config state changed")
}

// UseLayout shows layout index on canvas. A change makes the next Update
// finish all outstanding frames first.
func (c *Config) UseLayout(canvas *resources.Canvas, index int) bool {
	if !canvas.UseLayout(index) {
		return false
	}
	c.needsFinish = true
	return true
}

// ChangeLatency sets how many frames the clients may run behind the
// config, and resizes every frame and tile queue accordingly.
func (c *Config) ChangeLatency(latency uint32) {
	if c.latency == latency {
		return
	}
	c.latency = latency
	c.topo.SetLatency(latency)
	c.tree.SetLatency(latency)
	log.WithFields(log.Fields{"config": c.name, "latency": latency}).Info("Latency changed")
}
