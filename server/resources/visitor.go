package resources

import "github.com/twitter/equalizer/fabric"

// Visitor walks the resource topology. Pre hooks returning PRUNE skip the
// entity's children and its post hook; TERMINATE stops the whole walk.
type Visitor interface {
	VisitPreNode(n *Node) fabric.VisitorResult
	VisitPostNode(n *Node) fabric.VisitorResult
	VisitPrePipe(p *Pipe) fabric.VisitorResult
	VisitPostPipe(p *Pipe) fabric.VisitorResult
	VisitPreWindow(w *Window) fabric.VisitorResult
	VisitPostWindow(w *Window) fabric.VisitorResult
	VisitChannel(c *Channel) fabric.VisitorResult

	VisitObserver(o *Observer) fabric.VisitorResult
	VisitPreLayout(l *Layout) fabric.VisitorResult
	VisitPostLayout(l *Layout) fabric.VisitorResult
	VisitView(v *View) fabric.VisitorResult
	VisitPreCanvas(c *Canvas) fabric.VisitorResult
	VisitPostCanvas(c *Canvas) fabric.VisitorResult
	VisitSegment(s *Segment) fabric.VisitorResult
}

// NopVisitor continues on every entity. Embed it to implement only the
// hooks a walk needs.
type NopVisitor struct{}

func (NopVisitor) VisitPreNode(*Node) fabric.VisitorResult      { return fabric.Continue }
func (NopVisitor) VisitPostNode(*Node) fabric.VisitorResult     { return fabric.Continue }
func (NopVisitor) VisitPrePipe(*Pipe) fabric.VisitorResult      { return fabric.Continue }
func (NopVisitor) VisitPostPipe(*Pipe) fabric.VisitorResult     { return fabric.Continue }
func (NopVisitor) VisitPreWindow(*Window) fabric.VisitorResult  { return fabric.Continue }
func (NopVisitor) VisitPostWindow(*Window) fabric.VisitorResult { return fabric.Continue }
func (NopVisitor) VisitChannel(*Channel) fabric.VisitorResult   { return fabric.Continue }
func (NopVisitor) VisitObserver(*Observer) fabric.VisitorResult { return fabric.Continue }
func (NopVisitor) VisitPreLayout(*Layout) fabric.VisitorResult  { return fabric.Continue }
func (NopVisitor) VisitPostLayout(*Layout) fabric.VisitorResult { return fabric.Continue }
func (NopVisitor) VisitView(*View) fabric.VisitorResult         { return fabric.Continue }
func (NopVisitor) VisitPreCanvas(*Canvas) fabric.VisitorResult  { return fabric.Continue }
func (NopVisitor) VisitPostCanvas(*Canvas) fabric.VisitorResult { return fabric.Continue }
func (NopVisitor) VisitSegment(*Segment) fabric.VisitorResult   { return fabric.Continue }

// combine folds a child result into the running result of its parent.
func combine(result, child fabric.VisitorResult) (fabric.VisitorResult, bool) {
	switch child {
	case fabric.Terminate:
		return fabric.Terminate, true
	case fabric.Prune:
		return fabric.Prune, false
	}
	return result, false
}

func (n *Node) Accept(v Visitor) fabric.VisitorResult {
	result := v.VisitPreNode(n)
	if result != fabric.Continue {
		return result
	}
	for _, p := range n.pipes {
		var stop bool
		if result, stop = combine(result, p.Accept(v)); stop {
			return result
		}
	}
	if post := v.VisitPostNode(n); post != fabric.Continue {
		return post
	}
	return result
}

func (p *Pipe) Accept(v Visitor) fabric.VisitorResult {
	result := v.VisitPrePipe(p)
	if result != fabric.Continue {
		return result
	}
	for _, w := range p.windows {
		var stop bool
		if result, stop = combine(result, w.Accept(v)); stop {
			return result
		}
	}
	if post := v.VisitPostPipe(p); post != fabric.Continue {
		return post
	}
	return result
}

func (w *Window) Accept(v Visitor) fabric.VisitorResult {
	result := v.VisitPreWindow(w)
	if result != fabric.Continue {
		return result
	}
	for _, c := range w.channels {
		var stop bool
		if result, stop = combine(result, v.VisitChannel(c)); stop {
			return result
		}
	}
	if post := v.VisitPostWindow(w); post != fabric.Continue {
		return post
	}
	return result
}

func (l *Layout) Accept(v Visitor) fabric.VisitorResult {
	result := v.VisitPreLayout(l)
	if result != fabric.Continue {
		return result
	}
	for _, view := range l.views {
		var stop bool
		if result, stop = combine(result, v.VisitView(view)); stop {
			return result
		}
	}
	if post := v.VisitPostLayout(l); post != fabric.Continue {
		return post
	}
	return result
}

func (c *Canvas) Accept(v Visitor) fabric.VisitorResult {
	result := v.VisitPreCanvas(c)
	if result != fabric.Continue {
		return result
	}
	for _, s := range c.segments {
		var stop bool
		if result, stop = combine(result, v.VisitSegment(s)); stop {
			return result
		}
	}
	if post := v.VisitPostCanvas(c); post != fabric.Continue {
		return post
	}
	return result
}
