package config

import (
	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// Init launches the nodes the active compounds need and initializes their
// resources. A failed init leaves the config stopped.
func (c *Config) Init(ctx context.Context, initID string) error {
	if s := c.State(); s != StateStopped {
		return errors.Errorf("cannot init config %s in state %s", c.name, s)
	}
	c.setState(StateInitializing)
	c.initID = initID
	c.currentFrame = 0
	c.finishedFrame = 0
	for f := range c.frameStarts {
		delete(c.frameStarts, f)
	}

	c.index.rebuild(c.topo)
	c.tree.SetLatency(c.latency)
	c.activateCanvases()

	ok, err := c.updateRunning(ctx)
	if ok && c.runningChannels == 0 {
		ok = false
		err = multierror.Append(err, errors.New("no channel is running"))
	}
	if !ok {
		log.WithFields(log.Fields{"config": c.name}).Errorf("Init failed: %v", err)
		if exitErr := c.Exit(ctx); exitErr != nil {
			err = multierror.Append(err, exitErr)
		}
		return errors.Wrapf(err, "initializing config %s", c.name)
	}
	if err != nil {
		log.WithFields(log.Fields{"config": c.name}).Warnf("Init completed with failures: %v", err)
	}

	// the first frame decomposes from up-to-date inherited data
	c.updateInherit(0)
	c.needsFinish = false
	c.setState(StateRunning)
	return nil
}

// Exit finishes the outstanding frames, stops every resource and
// disconnects the nodes.
func (c *Config) Exit(ctx context.Context) error {
	if s := c.State(); s != StateRunning && s != StateInitializing {
		log.WithFields(log.Fields{"config": c.name, "state": s}).Warn("Exiting config which is not running")
	}
	c.setState(StateExiting)

	if c.currentFrame > c.finishedFrame {
		c.flushAllFrames()
		waitCtx, cancel := context.WithTimeout(ctx, c.defaults.FrameTimeout)
		if err := c.WaitFrameFinished(waitCtx, c.currentFrame); err != nil {
			log.WithFields(log.Fields{"config": c.name}).Warnf("%v", err)
		}
		cancel()
	}

	c.deactivateCanvases()
	c.tree.Accept(compound.VisitorFunc(func(comp *compound.Compound) fabric.VisitorResult {
		comp.Flush()
		return fabric.Continue
	}))

	_, err := c.updateRunning(ctx)
	for name := range c.barriers {
		delete(c.barriers, name)
	}
	c.needsFinish = false
	c.setState(StateStopped)
	if err != nil {
		return errors.Wrapf(err, "exiting config %s", c.name)
	}
	return nil
}

// Update applies changed activations: it finishes the outstanding frames if
// the layout changed, then starts and stops resources as needed. Without
// robustness any failure stops the config.
func (c *Config) Update(ctx context.Context) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	if c.needsFinish {
		c.flushAllFrames()
		waitCtx, cancel := context.WithTimeout(ctx, c.defaults.FrameTimeout)
		err := c.WaitFrameFinished(waitCtx, c.currentFrame)
		cancel()
		if err != nil {
			log.WithFields(log.Fields{"config": c.name}).Warnf("%v", err)
		}
		c.needsFinish = false
	}

	ok, err := c.updateRunning(ctx)
	if !ok && c.defaults.Robustness == fabric.Off {
		log.WithFields(log.Fields{"config": c.name}).Errorf("Update failed, exiting: %v", err)
		if exitErr := c.Exit(ctx); exitErr != nil {
			err = multierror.Append(err, exitErr)
		}
	}
	return err
}

// updateRunning brings the run state of every entity in line with its
// activation: it connects the nodes, initializes what became active, exits
// what became inactive and disconnects the stopped nodes. The result is
// false if an entity failed and failures are not tolerated.
func (c *Config) updateRunning(ctx context.Context) (bool, error) {
	if c.State() == StateStopped {
		return true, nil
	}
	canFail := c.defaults.Robustness != fabric.Off
	defer c.stat.Latency(stats.SyncLatency_ms).Time().Stop()

	ok := c.connectNodes(ctx)

	c.topo.Accept(&updateVisitor{initID: c.initID, frame: c.currentFrame, finished: c.finishedFrame})

	syncCtx, cancel := context.WithTimeout(ctx, c.defaults.LaunchTimeout)
	defer cancel()
	result := c.syncTopology(syncCtx)
	var err error
	if result.Err != nil {
		err = result.Err
	}
	if result.NeedsSync {
		// failed inits exit within the first pass
		again := c.syncTopology(syncCtx)
		result.RunningChannels = again.RunningChannels
		if again.Err != nil {
			err = multierror.Append(err, again.Err)
		}
	}
	if result.Failed {
		ok = false
		c.stat.Counter(stats.SyncFailureCounter).Inc(1)
	}
	c.runningChannels = result.RunningChannels
	c.stat.Gauge(stats.RunningChannelsGauge).Update(int64(result.RunningChannels))

	c.stopNodes()
	if c.removeDeleted() {
		c.index.rebuild(c.topo)
	}
	if !ok {
		log.WithFields(log.Fields{"config": c.name, "canFail": canFail}).Warnf("Resource update failed: %v", err)
	}
	return ok || canFail, err
}

type launchResult struct {
	node *resources.Node
	done chan error
}

// connectNodes launches every active node not yet connected and waits for
// all of them. Each connect is retried with exponential backoff until the
// launch timeout.
func (c *Config) connectNodes(ctx context.Context) bool {
	var launches []launchResult
	for _, node := range c.topo.Nodes() {
		if !node.IsActive() || node.IsConnected() || node.State() != resources.StateStopped {
			continue
		}
		if c.launcher == nil {
			node.SetConnected(true)
			continue
		}
		l := launchResult{node: node, done: make(chan error, 1)}
		launches = append(launches, l)
		go c.launch(ctx, l)
	}

	ok := true
	for _, l := range launches {
		launchCtx, cancel := context.WithTimeout(ctx, c.defaults.LaunchTimeout)
		if !l.node.SyncLaunch(launchCtx, l.done) {
			ok = false
			c.stat.Counter(stats.NodeFailedCounter).Inc(1)
		}
		cancel()
	}
	return ok
}

func (c *Config) launch(ctx context.Context, l launchResult) {
	name := l.node.Name()
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.defaults.LaunchTimeout
	err := backoff.Retry(func() error {
		c.stat.Counter(stats.TransportLaunchCounter).Inc(1)
		err := c.launcher.Connect(ctx, name)
		if err != nil {
			log.WithFields(log.Fields{"config": c.name, "node": name}).Infof("Connect failed, retrying: %v", err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	l.done <- err
}

// stopNodes disconnects the nodes which stopped or failed.
func (c *Config) stopNodes() {
	for _, node := range c.topo.Nodes() {
		state := node.State()
		if state != resources.StateStopped && state != resources.StateFailed {
			continue
		}
		if node.IsConnected() && (state == resources.StateFailed || !node.IsActive()) {
			if c.launcher != nil {
				if err := c.launcher.Disconnect(node.Name()); err != nil {
					log.WithFields(log.Fields{"config": c.name, "node": node.Name()}).Warnf("Disconnect failed: %v", err)
				}
			}
			node.SetConnected(false)
		}
	}
}
