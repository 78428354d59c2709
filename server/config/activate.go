package config

import (
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/resources"
)

// ActivateDestination enables the destination compounds of ch for the
// eyes its view renders, restricted to segmentEyes.
func (c *Config) ActivateDestination(ch *resources.Channel, segmentEyes fabric.Eye) {
	c.triggerDestination(ch, segmentEyes, true)
}

func (c *Config) DeactivateDestination(ch *resources.Channel, segmentEyes fabric.Eye) {
	c.triggerDestination(ch, segmentEyes, false)
}

func (c *Config) triggerDestination(ch *resources.Channel, segmentEyes fabric.Eye, activate bool) {
	eyes := fabric.EyeCyclop
	if view := ch.View(); view != nil && view.Mode() == resources.ViewStereo {
		eyes = fabric.EyesStereo
	}
	eyes &= segmentEyes
	if eyes == 0 {
		return
	}

	found := false
	c.tree.Accept(compound.VisitorFunc(func(comp *compound.Compound) fabric.VisitorResult {
		if comp.OwnChannel() != ch || !comp.IsDestination() {
			return fabric.Continue
		}
		found = true
		if activate {
			comp.Activate(eyes)
		} else {
			comp.Deactivate(eyes)
		}
		return fabric.Prune
	}))
	if !found {
		log.WithFields(log.Fields{"config": c.name, "channel": ch.Name()}).Warn("No destination compound for channel")
	}
}

// activateCanvases shows the first layout of every canvas without one and
// activates the root destinations no canvas drives.
func (c *Config) activateCanvases() {
	for _, canvas := range c.topo.Canvases() {
		if canvas.ActiveLayout() == nil && len(canvas.Layouts()) > 0 {
			canvas.UseLayout(0)
		}
	}
	for _, root := range c.tree.Roots() {
		root.Accept(compound.VisitorFunc(func(comp *compound.Compound) fabric.VisitorResult {
			ch := comp.OwnChannel()
			if ch == nil {
				return fabric.Continue
			}
			if ch.Segment() == nil && comp.IsDestination() {
				comp.Activate(fabric.EyeCyclop)
				c.autoActive = append(c.autoActive, comp)
			}
			return fabric.Prune
		}))
	}
}

func (c *Config) deactivateCanvases() {
	for _, canvas := range c.topo.Canvases() {
		canvas.Exit()
	}
	for _, comp := range c.autoActive {
		comp.Deactivate(fabric.EyeCyclop)
	}
	c.autoActive = nil
}
