package compound

import (
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
)

// Tree is the arena owning every compound of a config. Compounds refer to
// each other by ID; removed slots stay nil so IDs remain stable.
type Tree struct {
	defaults  fabric.Defaults
	compounds []*Compound
	roots     []ID
}

func NewTree(defaults fabric.Defaults) *Tree {
	return &Tree{defaults: defaults}
}

func (t *Tree) Defaults() fabric.Defaults { return t.defaults }

// Get returns nil for unknown or removed IDs.
func (t *Tree) Get(id ID) *Compound {
	if id < 0 || int(id) >= len(t.compounds) {
		return nil
	}
	return t.compounds[id]
}

func (t *Tree) alloc(name string, parent ID) *Compound {
	c := &Compound{
		tree:    t,
		id:      ID(len(t.compounds)),
		parent:  parent,
		name:    name,
		data:    newData(),
		inherit: newData(),
		usage:   1,
	}
	t.compounds = append(t.compounds, c)
	return c
}

// AddRoot creates a top-level compound.
func (t *Tree) AddRoot(name string) *Compound {
	c := t.alloc(name, NoParent)
	t.roots = append(t.roots, c.id)
	return c
}

func (t *Tree) Roots() []*Compound {
	out := make([]*Compound, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.compounds[id])
	}
	return out
}

// Len is the number of live compounds.
func (t *Tree) Len() int {
	n := 0
	for _, c := range t.compounds {
		if c != nil {
			n++
		}
	}
	return n
}

// Remove deletes c and its subtree, releasing their payloads and
// equalizers.
func (t *Tree) Remove(c *Compound) {
	if parent := c.Parent(); parent != nil {
		for _, l := range parent.listeners {
			l.NotifyChildRemove(parent, c)
		}
		parent.children = removeID(parent.children, c.id)
	} else {
		t.roots = removeID(t.roots, c.id)
	}
	t.drop(c)
	log.WithFields(c.fields()).Debug("Removed compound")
}

func (t *Tree) drop(c *Compound) {
	for _, child := range c.Children() {
		t.drop(child)
	}
	c.release()
	t.compounds[c.id] = nil
}

func removeID(ids []ID, id ID) []ID {
	for i, cand := range ids {
		if cand == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Accept walks every root compound in order.
func (t *Tree) Accept(v Visitor) fabric.VisitorResult {
	result := fabric.Continue
	for _, root := range t.Roots() {
		switch root.Accept(v) {
		case fabric.Terminate:
			return fabric.Terminate
		case fabric.Prune:
			result = fabric.Prune
		}
	}
	return result
}

// SetLatency propagates a latency change to every payload.
func (t *Tree) SetLatency(latency uint32) {
	for _, c := range t.compounds {
		if c != nil {
			c.SetLatency(latency)
		}
	}
}
