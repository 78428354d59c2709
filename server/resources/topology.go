package resources

import (
	"github.com/pkg/errors"

	"github.com/twitter/equalizer/fabric"
)

// Topology owns every cluster and display entity of a config and resolves
// them by index path.
type Topology struct {
	nodes     []*Node
	observers []*Observer
	layouts   []*Layout
	canvases  []*Canvas
	sender    Sender
	latency   uint32
}

func NewTopology(sender Sender, latency uint32) *Topology {
	return &Topology{sender: sender, latency: latency}
}

func (t *Topology) Nodes() []*Node         { return t.nodes }
func (t *Topology) Observers() []*Observer { return t.observers }
func (t *Topology) Layouts() []*Layout     { return t.layouts }
func (t *Topology) Canvases() []*Canvas    { return t.canvases }
func (t *Topology) Latency() uint32        { return t.latency }

// AddNode creates a node reachable through name on the transport.
func (t *Topology) AddNode(name string) (*Node, error) {
	n, err := NewNode(len(t.nodes), name, t.sender, t.latency)
	if err != nil {
		return nil, err
	}
	t.nodes = append(t.nodes, n)
	return n, nil
}

// RemoveNode drops a node that reached STOPPED.
func (t *Topology) RemoveNode(n *Node) bool {
	for i, cand := range t.nodes {
		if cand == n {
			t.nodes = append(t.nodes[:i], t.nodes[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Topology) AddObserver(name string, eyeBase float32) *Observer {
	o := NewObserver(len(t.observers), name, eyeBase)
	t.observers = append(t.observers, o)
	return o
}

func (t *Topology) AddLayout(name string) *Layout {
	l := NewLayout(len(t.layouts), name)
	t.layouts = append(t.layouts, l)
	return l
}

func (t *Topology) AddCanvas(name string) *Canvas {
	c := NewCanvas(len(t.canvases), name)
	t.canvases = append(t.canvases, c)
	return c
}

// SetLatency propagates a latency change to every node.
func (t *Topology) SetLatency(latency uint32) {
	t.latency = latency
	for _, n := range t.nodes {
		n.SetLatency(latency)
	}
}

// Accept walks nodes, observers, layouts and canvases in that order.
func (t *Topology) Accept(v Visitor) fabric.VisitorResult {
	result := fabric.Continue
	for _, n := range t.nodes {
		var stop bool
		if result, stop = combine(result, n.Accept(v)); stop {
			return result
		}
	}
	for _, o := range t.observers {
		var stop bool
		if result, stop = combine(result, v.VisitObserver(o)); stop {
			return result
		}
	}
	for _, l := range t.layouts {
		var stop bool
		if result, stop = combine(result, l.Accept(v)); stop {
			return result
		}
	}
	for _, c := range t.canvases {
		var stop bool
		if result, stop = combine(result, c.Accept(v)); stop {
			return result
		}
	}
	return result
}

// Entity resolves a node, pipe, window or channel index path.
func (t *Topology) Entity(path string) (Entity, error) {
	idx, err := fabric.ParseIndexPath(path)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 || len(idx) > 4 || idx[0] >= len(t.nodes) {
		return nil, errors.Errorf("no entity %q", path)
	}
	node := t.nodes[idx[0]]
	if len(idx) == 1 {
		return node, nil
	}
	if idx[1] >= len(node.pipes) {
		return nil, errors.Errorf("no pipe %q", path)
	}
	pipe := node.pipes[idx[1]]
	if len(idx) == 2 {
		return pipe, nil
	}
	if idx[2] >= len(pipe.windows) {
		return nil, errors.Errorf("no window %q", path)
	}
	window := pipe.windows[idx[2]]
	if len(idx) == 3 {
		return window, nil
	}
	if idx[3] >= len(window.channels) {
		return nil, errors.Errorf("no channel %q", path)
	}
	return window.channels[idx[3]], nil
}

// FindChannel resolves a node.pipe.window.channel path.
func (t *Topology) FindChannel(path fabric.ChannelPath) *Channel {
	e, err := t.Entity(path.String())
	if err != nil {
		return nil
	}
	c, _ := e.(*Channel)
	return c
}

// FindNode returns the node with the given transport name.
func (t *Topology) FindNode(name string) *Node {
	for _, n := range t.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// FindChannelByName returns the first channel called name.
func (t *Topology) FindChannelByName(name string) *Channel {
	for _, n := range t.nodes {
		for _, p := range n.pipes {
			for _, w := range p.windows {
				for _, c := range w.channels {
					if c.name == name {
						return c
					}
				}
			}
		}
	}
	return nil
}

// FindSegment resolves a canvas.segment path.
func (t *Topology) FindSegment(path fabric.SegmentPath) *Segment {
	if path.Canvas < 0 || path.Canvas >= len(t.canvases) {
		return nil
	}
	c := t.canvases[path.Canvas]
	if path.Segment < 0 || path.Segment >= len(c.segments) {
		return nil
	}
	return c.segments[path.Segment]
}

// FindView resolves a layout.view path.
func (t *Topology) FindView(path fabric.ViewPath) *View {
	if path.Layout < 0 || path.Layout >= len(t.layouts) {
		return nil
	}
	l := t.layouts[path.Layout]
	if path.View < 0 || path.View >= len(l.views) {
		return nil
	}
	return l.views[path.View]
}

// FindViewByName returns the first view called name.
func (t *Topology) FindViewByName(name string) *View {
	for _, l := range t.layouts {
		for _, v := range l.views {
			if v.name == name {
				return v
			}
		}
	}
	return nil
}

// FindObserver returns the observer called name.
func (t *Topology) FindObserver(name string) *Observer {
	for _, o := range t.observers {
		if o.name == name {
			return o
		}
	}
	return nil
}

// ResetFrame clears per-frame tasks and last-draw markers before the
// compounds are updated.
func (t *Topology) ResetFrame() {
	for _, n := range t.nodes {
		n.resetTasks()
		n.lastDrawPipe = nil
		for _, p := range n.pipes {
			p.resetTasks()
			p.lastDrawWindow = nil
			for _, w := range p.windows {
				w.resetTasks()
				w.lastDrawChannel = nil
				w.ResetSwapBarriers()
				for _, c := range w.channels {
					c.ResetFrame()
				}
			}
		}
	}
}

// UpdateLastDraw records, per window, pipe and node, the last child
// drawing this frame. Channels must have their tasks set already.
func (t *Topology) UpdateLastDraw() {
	for _, n := range t.nodes {
		n.lastDrawPipe = nil
		for _, p := range n.pipes {
			p.lastDrawWindow = nil
			for _, w := range p.windows {
				w.lastDrawChannel = nil
				for _, c := range w.channels {
					if c.IsRunning() && c.tasks.Has(fabric.TaskDraw) {
						w.lastDrawChannel = c
					}
				}
				if w.lastDrawChannel != nil {
					p.lastDrawWindow = w
				}
			}
			if p.lastDrawWindow != nil {
				n.lastDrawPipe = p
			}
		}
	}
}
