package compound

import "github.com/twitter/equalizer/fabric"

// Visitor is called for every compound of a walk: VisitPre before the
// children of an internal compound, VisitPost after them, VisitLeaf for
// compounds without children.
type Visitor interface {
	VisitPre(c *Compound) fabric.VisitorResult
	VisitLeaf(c *Compound) fabric.VisitorResult
	VisitPost(c *Compound) fabric.VisitorResult
}

// VisitorFunc visits internal and leaf compounds the same way, pre-order.
type VisitorFunc func(c *Compound) fabric.VisitorResult

func (f VisitorFunc) VisitPre(c *Compound) fabric.VisitorResult  { return f(c) }
func (f VisitorFunc) VisitLeaf(c *Compound) fabric.VisitorResult { return f(c) }
func (f VisitorFunc) VisitPost(*Compound) fabric.VisitorResult   { return fabric.Continue }

// Accept walks the subtree of c. Prune from VisitPre skips the children
// and the VisitPost of that compound; the walk continues with its
// siblings and still exits every ancestor. Any prune makes the result
// Prune. Terminate stops the walk.
func (c *Compound) Accept(v Visitor) fabric.VisitorResult {
	if c.IsLeaf() {
		return v.VisitLeaf(c)
	}
	switch v.VisitPre(c) {
	case fabric.Terminate:
		return fabric.Terminate
	case fabric.Prune:
		return fabric.Prune
	}

	result := fabric.Continue
	for _, id := range c.children {
		switch c.tree.Get(id).Accept(v) {
		case fabric.Terminate:
			return fabric.Terminate
		case fabric.Prune:
			result = fabric.Prune
		}
	}

	switch v.VisitPost(c) {
	case fabric.Terminate:
		return fabric.Terminate
	case fabric.Prune:
		result = fabric.Prune
	}
	return result
}
