package resources

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
)

// DestinationActivator turns the rendering of a destination channel on or
// off for the given eyes when the layout it shows is (de)selected.
type DestinationActivator interface {
	ActivateDestination(ch *Channel, eyes fabric.Eye)
	DeactivateDestination(ch *Channel, eyes fabric.Eye)
}

// channelActivator counts the activation on the channel alone.
type channelActivator struct{}

func (channelActivator) ActivateDestination(ch *Channel, eyes fabric.Eye)   { ch.Activate() }
func (channelActivator) DeactivateDestination(ch *Channel, eyes fabric.Eye) { ch.Deactivate() }

// Canvas is a display surface made of segments, showing one of its
// layouts at a time.
type Canvas struct {
	index        int
	name         string
	layouts      []*Layout
	activeLayout int
	segments     []*Segment
	frustum      FrustumSetting
	swapBarrier  string
	activator    DestinationActivator
}

func NewCanvas(index int, name string) *Canvas {
	return &Canvas{index: index, name: name, activeLayout: -1, activator: channelActivator{}}
}

// SetActivator replaces how destination channels are switched on and off.
func (c *Canvas) SetActivator(a DestinationActivator) {
	if a == nil {
		a = channelActivator{}
	}
	c.activator = a
}

func (c *Canvas) Index() int                        { return c.index }
func (c *Canvas) Name() string                      { return c.name }
func (c *Canvas) Layouts() []*Layout                { return c.layouts }
func (c *Canvas) Segments() []*Segment              { return c.segments }
func (c *Canvas) Frustum() FrustumSetting           { return c.frustum }
func (c *Canvas) SetWall(w fabric.Wall)             { c.frustum.SetWall(w) }
func (c *Canvas) SetProjection(p fabric.Projection) { c.frustum.SetProjection(p) }
func (c *Canvas) SwapBarrier() string               { return c.swapBarrier }
func (c *Canvas) SetSwapBarrier(name string)        { c.swapBarrier = name }
func (c *Canvas) AddLayout(l *Layout)               { c.layouts = append(c.layouts, l) }

// ActiveLayout returns the shown layout or nil.
func (c *Canvas) ActiveLayout() *Layout {
	if c.activeLayout < 0 || c.activeLayout >= len(c.layouts) {
		return nil
	}
	return c.layouts[c.activeLayout]
}

// AddSegment appends a segment covering vp of the canvas, rendered by the
// output channel.
func (c *Canvas) AddSegment(name string, vp fabric.Viewport, channel *Channel) *Segment {
	s := &Segment{
		index:   len(c.segments),
		canvas:  c,
		name:    name,
		vp:      vp,
		channel: channel,
		eyes:    fabric.EyesAll,
	}
	c.segments = append(c.segments, s)
	return s
}

// UseLayout switches the canvas to layout index. The destination channels
// of the old layout are deactivated and those of the new one activated.
// It reports whether the switch changed anything, in which case all
// outstanding frames must be finished before the next update.
func (c *Canvas) UseLayout(index int) bool {
	if index == c.activeLayout {
		return false
	}
	if index >= len(c.layouts) {
		log.WithFields(log.Fields{"canvas": c.name, "layout": index}).Warn("Unknown layout")
		return false
	}
	old := c.ActiveLayout()
	c.activeLayout = index
	next := c.ActiveLayout()
	for _, s := range c.segments {
		for _, ch := range s.destinations {
			switch ch.view.layout {
			case old:
				c.activator.DeactivateDestination(ch, s.eyes)
			case next:
				c.activator.ActivateDestination(ch, s.eyes)
			}
		}
	}
	log.WithFields(log.Fields{"canvas": c.name, "layout": index}).Info("Layout activated")
	return true
}

// Exit hides the active layout, deactivating its destination channels.
func (c *Canvas) Exit() {
	old := c.ActiveLayout()
	c.activeLayout = -1
	if old == nil {
		return
	}
	for _, s := range c.segments {
		for _, ch := range s.destinations {
			if ch.view.layout == old {
				c.activator.DeactivateDestination(ch, s.eyes)
			}
		}
	}
}

// Segment is the part of a canvas rendered by one output channel.
type Segment struct {
	index        int
	canvas       *Canvas
	name         string
	vp           fabric.Viewport
	channel      *Channel
	eyes         fabric.Eye
	frustum      FrustumSetting
	swapBarrier  string
	destinations []*Channel
}

func (s *Segment) Index() int                        { return s.index }
func (s *Segment) Name() string                      { return s.name }
func (s *Segment) Canvas() *Canvas                   { return s.canvas }
func (s *Segment) Viewport() fabric.Viewport         { return s.vp }
func (s *Segment) Channel() *Channel                 { return s.channel }
func (s *Segment) Eyes() fabric.Eye                  { return s.eyes }
func (s *Segment) SetEyes(eyes fabric.Eye)           { s.eyes = eyes }
func (s *Segment) SetWall(w fabric.Wall)             { s.frustum.SetWall(w) }
func (s *Segment) SetProjection(p fabric.Projection) { s.frustum.SetProjection(p) }
func (s *Segment) Destinations() []*Channel          { return s.destinations }
func (s *Segment) Path() string                      { return fmt.Sprintf("%d.%d", s.canvas.index, s.index) }
func (s *Segment) SetSwapBarrier(name string)        { s.swapBarrier = name }

// SwapBarrier is the barrier name of the segment, or of its canvas.
func (s *Segment) SwapBarrier() string {
	if s.swapBarrier != "" {
		return s.swapBarrier
	}
	return s.canvas.swapBarrier
}

// Frustum returns the segment's wall, falling back to the canvas wall
// narrowed to the segment.
func (s *Segment) Frustum() FrustumSetting {
	if s.frustum.Type != FrustumNone {
		return s.frustum
	}
	wall, ok := s.canvas.frustum.EffectiveWall()
	if !ok {
		return FrustumSetting{}
	}
	out := FrustumSetting{}
	out.SetWall(wall.Apply(s.vp))
	return out
}

// AddDestination binds channel as the destination showing view on this
// segment. The channel is active while view's layout is shown.
func (s *Segment) AddDestination(channel *Channel, view *View) {
	channel.SetOutput(view, s)
	s.destinations = append(s.destinations, channel)
	if s.canvas.ActiveLayout() == view.layout {
		s.canvas.activator.ActivateDestination(channel, s.eyes)
	}
}

// RemoveDestination unbinds a destination channel.
func (s *Segment) RemoveDestination(channel *Channel) bool {
	for i, cand := range s.destinations {
		if cand == channel {
			if s.canvas.ActiveLayout() == channel.view.layout {
				s.canvas.activator.DeactivateDestination(channel, s.eyes)
			}
			channel.ClearOutput()
			s.destinations = append(s.destinations[:i], s.destinations[i+1:]...)
			return true
		}
	}
	return false
}
