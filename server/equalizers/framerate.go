package equalizers

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

const (
	// vsyncCap is the frame rate above which no limit is set.
	vsyncCap = float32(60)
	// slowdown keeps the limit slightly below the measured rate.
	slowdown = float32(1.05)

	maxSamples = 100
	maxHistory = 2*maxSamples + 10
)

type frameTime struct {
	frame uint32
	time  float32
}

// framerateListener reports the draw time of one child, normalized by the
// period the child renders with.
type framerateListener struct {
	parent   *FramerateEqualizer
	period   uint32
	channels []*resources.Channel
}

func (l *framerateListener) subscribe(child *compound.Compound) {
	child.Accept(compound.VisitorFunc(func(c *compound.Compound) fabric.VisitorResult {
		ch := c.Channel()
		if ch == nil {
			return fabric.Continue
		}
		for _, known := range l.channels {
			if known == ch {
				return fabric.Continue
			}
		}
		l.channels = append(l.channels, ch)
		ch.AddListener(l)
		return fabric.Continue
	}))
}

func (l *framerateListener) unsubscribe() {
	for _, ch := range l.channels {
		ch.RemoveListener(l)
	}
	l.channels = nil
}

func (l *framerateListener) NotifyLoadData(ch *resources.Channel, frame uint32, statistics []fabric.Statistic,
	region fabric.Viewport) {
	start, end := int64(math.MaxInt64), int64(0)
	for _, stat := range statistics {
		switch stat.Type {
		case fabric.StatChannelClear, fabric.StatChannelDraw, fabric.StatChannelAssemble,
			fabric.StatChannelReadback:
			start = minI64(start, stat.StartTime)
			end = maxI64(end, stat.EndTime)
		}
	}
	if start == math.MaxInt64 {
		return
	}
	if start == end {
		end++
	}

	time := float32(end-start) / float32(l.period)
	for i := range l.parent.times {
		sample := &l.parent.times[i]
		if sample.frame == frame {
			sample.time = max32(sample.time, time)
		}
	}
}

// FramerateEqualizer smooths the frame rate of a compound whose children
// render with different periods: it limits the compound to the average
// per-period frame time of its children, measured over the longest period.
type FramerateEqualizer struct {
	compound.Base

	listeners []*framerateListener
	// newest first, 0 time while a frame is incomplete
	times    []frameTime
	nSamples int
}

func NewFramerateEqualizer(p compound.Params) *FramerateEqualizer {
	return &FramerateEqualizer{Base: compound.NewBase(p)}
}

func (e *FramerateEqualizer) Type() string { return "framerate" }

func (e *FramerateEqualizer) Attach(c *compound.Compound) {
	e.exit()
	e.Base.Attach(c)
}

func (e *FramerateEqualizer) NotifyChildAdded(c *compound.Compound, child *compound.Compound) {
	e.exit()
}

func (e *FramerateEqualizer) NotifyChildRemove(c *compound.Compound, child *compound.Compound) {
	e.exit()
}

func (e *FramerateEqualizer) init(c *compound.Compound) {
	if e.nSamples > 0 {
		return
	}
	e.nSamples = 1
	for _, child := range c.Children() {
		period := child.InheritPeriod()
		if period == 0 || period == compound.Undefined {
			period = 1
		}
		l := &framerateListener{parent: e, period: period}
		l.subscribe(child)
		e.listeners = append(e.listeners, l)
		if int(period) > e.nSamples {
			e.nSamples = int(period)
		}
	}
	if e.nSamples > maxSamples {
		e.nSamples = maxSamples
	}
}

func (e *FramerateEqualizer) exit() {
	for _, l := range e.listeners {
		l.unsubscribe()
	}
	e.listeners = nil
	e.times = nil
	e.nSamples = 0
}

func (e *FramerateEqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
	e.init(c)

	// the samples older than the oldest incomplete frame are contiguous
	from := 0
	for i := len(e.times) - 1; i >= 0; i-- {
		if e.times[i].time == 0 {
			from = i
			break
		}
	}

	var nSamples int
	var sum float32
	for from++; from < len(e.times) && nSamples < e.nSamples; from++ {
		nSamples++
		sum += e.times[from].time
	}
	if nSamples == e.nSamples {
		e.times = e.times[:from]
	}

	if !e.IsActive() || !c.IsActive() {
		c.SetMaxFPS(fabric.DefaultMaxFPS)
		return
	}

	if nSamples > 0 {
		time := sum / float32(nSamples) * slowdown
		fps := 1000 / time
		if fps > vsyncCap {
			c.SetMaxFPS(fabric.DefaultMaxFPS)
		} else {
			c.SetMaxFPS(fps)
		}
		log.WithFields(log.Fields{
			"compound": c.String(),
			"fps":      fps,
			"samples":  nSamples,
		}).Debug("Frame rate limit")
	}

	e.times = append([]frameTime{{frame: frame}}, e.times...)
	if len(e.times) > maxHistory {
		e.times = e.times[:maxHistory]
	}
}
