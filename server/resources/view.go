package resources

import (
	"fmt"

	"github.com/twitter/equalizer/fabric"
)

// FrustumType tells which description of the projection surface is set.
type FrustumType int

const (
	FrustumNone FrustumType = iota
	FrustumWall
	FrustumProjection
)

// FrustumSetting is the wall or projection configured on a canvas,
// segment or view.
type FrustumSetting struct {
	Type       FrustumType
	Wall       fabric.Wall
	Projection fabric.Projection
}

func (f *FrustumSetting) SetWall(w fabric.Wall) {
	f.Type = FrustumWall
	f.Wall = w
}

func (f *FrustumSetting) SetProjection(p fabric.Projection) {
	f.Type = FrustumProjection
	f.Projection = p
}

// EffectiveWall returns the configured surface as a wall.
func (f FrustumSetting) EffectiveWall() (fabric.Wall, bool) {
	switch f.Type {
	case FrustumWall:
		return f.Wall, true
	case FrustumProjection:
		return f.Projection.ToWall(), true
	}
	return fabric.Wall{}, false
}

// Layout groups the views shown together on a canvas.
type Layout struct {
	index int
	name  string
	views []*View
}

func NewLayout(index int, name string) *Layout {
	return &Layout{index: index, name: name}
}

func (l *Layout) Index() int     { return l.index }
func (l *Layout) Name() string   { return l.name }
func (l *Layout) Views() []*View { return l.views }

// AddView appends a view covering vp of the layout.
func (l *Layout) AddView(name string, vp fabric.Viewport) *View {
	v := &View{
		index:     len(l.views),
		layout:    l,
		name:      name,
		vp:        vp,
		modelUnit: fabric.DefaultModelUnit,
		mode:      ViewMono,
	}
	l.views = append(l.views, v)
	return v
}

// ViewMode selects mono or stereo rendering of a view.
type ViewMode int

const (
	ViewMono ViewMode = iota
	ViewStereo
)

// View is a logical output: a camera into the application scene shown on
// part of a layout.
type View struct {
	index     int
	layout    *Layout
	name      string
	vp        fabric.Viewport
	frustum   FrustumSetting
	overdraw  fabric.Vector2i
	modelUnit float32
	observer  *Observer
	mode      ViewMode
	version   uint32
}

func (v *View) Index() int                    { return v.index }
func (v *View) Name() string                  { return v.name }
func (v *View) Layout() *Layout               { return v.layout }
func (v *View) Viewport() fabric.Viewport     { return v.vp }
func (v *View) Frustum() FrustumSetting       { return v.frustum }
func (v *View) Overdraw() fabric.Vector2i     { return v.overdraw }
func (v *View) ModelUnit() float32            { return v.modelUnit }
func (v *View) Observer() *Observer           { return v.observer }
func (v *View) Mode() ViewMode                { return v.mode }
func (v *View) Version() uint32               { return v.version }
func (v *View) Path() string                  { return fmt.Sprintf("%d.%d", v.layout.index, v.index) }
func (v *View) SetObserver(o *Observer)       { v.observer = o; v.version++ }
func (v *View) SetMode(m ViewMode)            { v.mode = m; v.version++ }
func (v *View) SetOverdraw(o fabric.Vector2i) { v.overdraw = o; v.version++ }

func (v *View) SetWall(w fabric.Wall) {
	v.frustum.SetWall(w)
	v.version++
}

func (v *View) SetProjection(p fabric.Projection) {
	v.frustum.SetProjection(p)
	v.version++
}

func (v *View) SetModelUnit(unit float32) {
	if unit > 0 {
		v.modelUnit = unit
		v.version++
	}
}

// FocusMode selects how the focal plane of an observer is placed.
type FocusMode int

const (
	FocusFixed FocusMode = iota
	FocusRelativeToOrigin
)

// Observer is a tracked viewer whose eyes drive the frusta of its views.
type Observer struct {
	index         int
	name          string
	eyeBase       float32
	eyes          [3]fabric.Vector3
	head          fabric.Matrix4
	focusMode     FocusMode
	focusDistance float32
}

func NewObserver(index int, name string, eyeBase float32) *Observer {
	o := &Observer{
		index:         index,
		name:          name,
		head:          fabric.Identity4,
		focusDistance: 1,
	}
	o.SetEyeBase(eyeBase)
	return o
}

func (o *Observer) Index() int                     { return o.index }
func (o *Observer) Name() string                   { return o.name }
func (o *Observer) EyeBase() float32               { return o.eyeBase }
func (o *Observer) HeadMatrix() fabric.Matrix4     { return o.head }
func (o *Observer) SetHeadMatrix(m fabric.Matrix4) { o.head = m }
func (o *Observer) FocusMode() FocusMode           { return o.focusMode }
func (o *Observer) FocusDistance() float32         { return o.focusDistance }

func (o *Observer) SetFocus(mode FocusMode, distance float32) {
	o.focusMode = mode
	o.focusDistance = distance
}

// SetEyeBase places the stereo eyes symmetrically around the cyclop eye.
func (o *Observer) SetEyeBase(eyeBase float32) {
	o.eyeBase = eyeBase
	o.eyes[fabric.EyeIndex(fabric.EyeCyclop)] = fabric.Vector3{}
	o.eyes[fabric.EyeIndex(fabric.EyeLeft)] = fabric.Vector3{X: -eyeBase / 2}
	o.eyes[fabric.EyeIndex(fabric.EyeRight)] = fabric.Vector3{X: eyeBase / 2}
}

// EyePosition is the eye in head coordinates.
func (o *Observer) EyePosition(eye fabric.Eye) fabric.Vector3 {
	return o.eyes[fabric.EyeIndex(eye)]
}

// EyeWorldPosition is the eye in world coordinates.
func (o *Observer) EyeWorldPosition(eye fabric.Eye) fabric.Vector3 {
	return o.head.TransformPoint(o.EyePosition(eye))
}
