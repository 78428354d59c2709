package compound

import "github.com/twitter/equalizer/fabric"

// Equalizer adapts the parameters of the compound it is attached to once
// per frame, from NotifyUpdatePre. A compound owns its equalizers; an
// equalizer is attached to at most one compound.
type Equalizer interface {
	Listener

	Type() string
	Compound() *Compound
	// Attach is called by the compound. nil detaches.
	Attach(c *Compound)
	IsActive() bool
	SetActive(active bool)
}

// Params are the tuning knobs shared by the equalizer family. Each
// equalizer reads only the ones relevant to it.
type Params struct {
	Damping           float32
	Boundary2i        fabric.Vector2i
	Boundaryf         float32
	Resistance2i      fabric.Vector2i
	Resistancef       float32
	AssembleOnlyLimit float32
	FrameRate         float32
	TileSize          fabric.Vector2i
	Mode              fabric.DecompositionMode
}

// DefaultParams takes the load-balancing defaults of the session.
func DefaultParams(d fabric.Defaults) Params {
	return Params{
		Damping:           d.Damping,
		Boundary2i:        d.Boundary2i,
		Boundaryf:         d.Boundaryf,
		Resistance2i:      d.Resistance2i,
		Resistancef:       d.Resistancef,
		AssembleOnlyLimit: d.AssembleOnlyLimit,
		FrameRate:         d.DFRFrameRate,
		TileSize:          d.TileSize,
		Mode:              fabric.Mode2D,
	}
}

// Base implements the bookkeeping part of Equalizer. Embed it and
// implement NotifyUpdatePre and Type.
type Base struct {
	Params
	compound *Compound
	frozen   bool
}

func NewBase(p Params) Base { return Base{Params: p} }

func (b *Base) Compound() *Compound   { return b.compound }
func (b *Base) Attach(c *Compound)    { b.compound = c }
func (b *Base) IsActive() bool        { return !b.frozen }
func (b *Base) SetActive(active bool) { b.frozen = !active }

func (b *Base) NotifyChildAdded(c *Compound, child *Compound)  {}
func (b *Base) NotifyChildRemove(c *Compound, child *Compound) {}
