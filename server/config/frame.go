package config

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/resources"
)

// StartFrame decomposes and emits the next frame and returns its number.
func (c *Config) StartFrame() (uint32, error) {
	if !c.IsRunning() {
		return 0, ErrNotRunning
	}

	c.verifyFrameFinished(c.currentFrame)

	c.currentFrame++
	frame := c.currentFrame
	frameID := fabric.NewID()
	c.frameStarts[frame] = c.time.Now()
	log.WithFields(log.Fields{"config": c.name, "frame": frame}).Debug("Starting frame")

	c.updateCompounds(frame)
	for _, node := range c.topo.Nodes() {
		node.Update(frameID, frame, c)
	}

	c.stat.Counter(stats.FrameStartCounter).Inc(1)
	c.stat.Gauge(stats.FrameCurrentGauge).Update(int64(frame))
	c.notifyNodeFrameFinished(frame)
	return frame, nil
}

// verifyFrameFinished fails every running node which fell further behind
// frame than the latency allows.
func (c *Config) verifyFrameFinished(frame uint32) {
	for _, node := range c.topo.Nodes() {
		if !node.IsRunning() || node.FinishedFrame()+c.latency >= frame {
			continue
		}
		c.failNode(node, fmt.Sprintf("frame %d not finished, node at %d", frame-c.latency, node.FinishedFrame()))
	}
}

func (c *Config) failNode(node *resources.Node, reason string) {
	log.WithFields(log.Fields{"config": c.name, "node": node.Name()}).Warn(reason)
	node.Fail(reason)
	c.stat.Counter(stats.NodeFailedCounter).Inc(1)
}

// notifyNodeFrameFinished advances the finished frame once no running node
// is behind frame.
func (c *Config) notifyNodeFrameFinished(frame uint32) {
	if c.finishedFrame >= frame {
		return
	}
	for _, node := range c.topo.Nodes() {
		if node.IsRunning() && node.FinishedFrame() < frame {
			return
		}
	}

	c.finishedFrame = frame
	c.stat.Counter(stats.FrameFinishCounter).Inc(1)
	c.stat.Gauge(stats.FrameFinishedGauge).Update(int64(frame))
	for f, start := range c.frameStarts {
		if f > frame {
			continue
		}
		c.stat.Histogram(stats.FrameLatency_ms).Update(int64(c.time.Since(start) / time.Millisecond))
		delete(c.frameStarts, f)
	}
	log.WithFields(log.Fields{"config": c.name, "frame": frame}).Debug("Frame finished")
}

// FinishAllFrames releases every outstanding frame on all nodes. The
// caller then waits for them with WaitFrameFinished.
func (c *Config) FinishAllFrames() {
	c.flushAllFrames()
}

func (c *Config) flushAllFrames() {
	if c.currentFrame == 0 {
		return
	}
	for _, node := range c.topo.Nodes() {
		if node.IsRunning() {
			node.FlushFrames(c.currentFrame)
		}
	}
	log.WithFields(log.Fields{"config": c.name, "frame": c.currentFrame}).Debug("Flushed all frames")
}

// StopFrames tells every running channel to abandon the frames in flight.
func (c *Config) StopFrames() {
	for _, node := range c.topo.Nodes() {
		for _, pipe := range node.Pipes() {
			for _, window := range pipe.Windows() {
				for _, ch := range window.Channels() {
					if ch.IsRunning() {
						ch.Send(fabric.Command{Op: fabric.OpChannelStopFrame, Frame: c.currentFrame})
					}
				}
			}
		}
	}
}

// CheckFrame tells whether frame is finished. A frame outstanding for
// longer than the frame timeout fails the nodes still working on it and
// counts as finished.
func (c *Config) CheckFrame(frame uint32) bool {
	c.ProcessReplies()
	c.notifyNodeFrameFinished(frame)
	if c.finishedFrame >= frame {
		return true
	}
	start, ok := c.frameStarts[frame]
	if ok && c.time.Since(start) < c.defaults.FrameTimeout {
		return false
	}
	for _, node := range c.topo.Nodes() {
		if node.IsRunning() && node.FinishedFrame() < frame {
			c.failNode(node, fmt.Sprintf("frame %d timed out", frame))
		}
	}
	c.notifyNodeFrameFinished(frame)
	return true
}
