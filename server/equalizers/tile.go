package equalizers

import (
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/frames"
)

// TileEqualizer feeds the children of its compound from a shared tile
// queue: while active it owns an output queue on the compound and one
// input queue per child, all with the same name.
type TileEqualizer struct {
	compound.Base

	name    string
	session frames.Session
	created bool
}

// NewTileEqualizer creates an equalizer registering its queues in session.
// An empty name uses "tiles" plus the compound name.
func NewTileEqualizer(p compound.Params, name string, session frames.Session) *TileEqualizer {
	return &TileEqualizer{Base: compound.NewBase(p), name: name, session: session}
}

func (e *TileEqualizer) Type() string { return "tile" }

func (e *TileEqualizer) Attach(c *compound.Compound) {
	if old := e.Compound(); old != nil && e.created {
		e.destroyQueues(old)
	}
	e.Base.Attach(c)
}

// QueueName is the name of the queues the equalizer creates on c.
func (e *TileEqualizer) QueueName(c *compound.Compound) string {
	if e.name != "" {
		return e.name
	}
	if c.Name() == "" {
		return "tiles"
	}
	return "tiles." + c.Name()
}

func (e *TileEqualizer) NotifyUpdatePre(c *compound.Compound, frame uint32) {
	if !e.IsActive() || !c.IsActive() {
		if e.created {
			e.destroyQueues(c)
		}
		return
	}
	if !e.created {
		e.createQueues(c)
	}
}

func findQueue(queues []*frames.TileQueue, name string) *frames.TileQueue {
	for _, q := range queues {
		if q.Name() == name {
			return q
		}
	}
	return nil
}

func (e *TileEqualizer) createQueues(c *compound.Compound) {
	e.created = true
	name := e.QueueName(c)
	latency := c.Tree().Defaults().Latency

	for _, child := range c.Children() {
		if findQueue(child.InputQueues(), name) != nil {
			continue
		}
		input := frames.NewTileQueue(name, frames.Input, e.session, latency)
		input.SetTileSize(e.TileSize)
		child.AddInputQueue(input)
	}
	if findQueue(c.OutputQueues(), name) == nil {
		output := frames.NewTileQueue(name, frames.Output, e.session, latency)
		output.SetTileSize(e.TileSize)
		c.AddOutputQueue(output)
	}
	log.WithFields(log.Fields{"compound": c.String(), "queue": name}).Debug("Created tile queues")
}

func (e *TileEqualizer) destroyQueues(c *compound.Compound) {
	name := e.QueueName(c)
	for _, child := range c.Children() {
		if q := findQueue(child.InputQueues(), name); q != nil {
			child.RemoveInputQueue(q)
			q.Deregister()
		}
	}
	if q := findQueue(c.OutputQueues(), name); q != nil {
		c.RemoveOutputQueue(q)
		q.Deregister()
	}
	e.created = false
	log.WithFields(log.Fields{"compound": c.String(), "queue": name}).Debug("Destroyed tile queues")
}
