package frames

import (
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
)

// Tile is one rectangle of work with the sub-frusta its renderer uses.
type Tile struct {
	PVP     fabric.PixelViewport
	VP      fabric.Viewport
	Frustum fabric.Frustum
	Ortho   fabric.Frustum
}

// queueMaster holds the tiles of one eye pass of one frame.
type queueMaster struct {
	id          string
	version     uint32
	frameNumber uint32
	tiles       []Tile
}

func (m *queueMaster) ID() string          { return m.id }
func (m *queueMaster) FrameNumber() uint32 { return m.frameNumber }

func (m *queueMaster) reset(frame uint32) {
	m.frameNumber = frame
	m.tiles = m.tiles[:0]
}

// TileQueue distributes tile work from the output compound generating it
// to the input compounds of the same name pulling from it.
type TileQueue struct {
	name     string
	kind     Kind
	id       string
	version  uint32
	session  Session
	latency  uint32
	tileSize fabric.Vector2i

	masters [numEyes]*queueMaster
	pools   [numEyes]pool
	output  *TileQueue
}

func NewTileQueue(name string, kind Kind, session Session, latency uint32) *TileQueue {
	q := &TileQueue{
		name:     name,
		kind:     kind,
		id:       fabric.NewID(),
		session:  session,
		latency:  latency,
		tileSize: fabric.Vector2i{X: fabric.DefaultTileSize, Y: fabric.DefaultTileSize},
	}
	for i := range q.pools {
		q.pools[i].session = session
	}
	session.Register(q.id)
	return q
}

func (q *TileQueue) Name() string                     { return q.name }
func (q *TileQueue) SetName(name string)              { q.name = name }
func (q *TileQueue) Kind() Kind                       { return q.kind }
func (q *TileQueue) ID() string                       { return q.id }
func (q *TileQueue) Version() uint32                  { return q.version }
func (q *TileQueue) SetLatency(latency uint32)        { q.latency = latency }
func (q *TileQueue) TileSize() fabric.Vector2i        { return q.tileSize }
func (q *TileQueue) SetTileSize(size fabric.Vector2i) { q.tileSize = size }
func (q *TileQueue) OutputQueue() *TileQueue          { return q.output }

// CycleData selects the queue master of every eye in eyes for frame.
func (q *TileQueue) CycleData(frame uint32, eyes fabric.Eye) {
	for i, eye := range fabric.EachEye {
		if eyes&eye == 0 {
			q.masters[i] = nil
			continue
		}
		master := q.pools[i].cycle(frame, q.latency, func() payload {
			return &queueMaster{id: fabric.NewID()}
		})
		q.masters[i] = master.(*queueMaster)
	}
}

func (q *TileQueue) UnsetData() {
	for i := range q.masters {
		q.masters[i] = nil
	}
	q.output = nil
}

// AddTile appends a work item to the queue of eye.
func (q *TileQueue) AddTile(tile Tile, eye fabric.Eye) {
	if m := q.masters[fabric.EyeIndex(eye)]; m != nil {
		m.tiles = append(m.tiles, tile)
	}
}

// Tiles lists the work items of eye in generation order.
func (q *TileQueue) Tiles(eye fabric.Eye) []Tile {
	if m := q.masters[fabric.EyeIndex(eye)]; m != nil {
		return m.tiles
	}
	return nil
}

func (q *TileQueue) HasData(eye fabric.Eye) bool { return q.masters[fabric.EyeIndex(eye)] != nil }

// MasterID is the distributed identifier renderers pull tiles of eye from.
// Input queues report the master of the output they are bound to.
func (q *TileQueue) MasterID(eye fabric.Eye) string {
	src := q
	if q.kind == Input {
		src = q.output
	}
	if src == nil {
		return ""
	}
	if m := src.masters[fabric.EyeIndex(eye)]; m != nil {
		return m.id
	}
	return ""
}

// SetOutputQueue binds an input queue to the output producing its tiles.
func (q *TileQueue) SetOutputQueue(output *TileQueue) {
	q.output = output
	if output == nil {
		return
	}
	for _, m := range output.masters {
		if m != nil {
			q.session.Bind(q.id, m.id)
		}
	}
}

// Commit publishes the tile lists of the current frame.
func (q *TileQueue) Commit() uint32 {
	for _, m := range q.masters {
		if m == nil || q.kind != Output {
			continue
		}
		m.version++
		q.session.Commit(m.id, m.version)
	}
	q.version++
	q.session.Commit(q.id, q.version)
	return q.version
}

func (q *TileQueue) LiveData() int {
	n := 0
	for i := range q.pools {
		n += q.pools[i].len()
	}
	return n
}

func (q *TileQueue) Flush() {
	q.UnsetData()
	for i := range q.pools {
		q.pools[i].flush()
	}
	log.WithFields(log.Fields{"queue": q.name, "kind": q.kind}).Debug("Flushed tile queue")
}

func (q *TileQueue) Deregister() {
	q.Flush()
	q.session.Deregister(q.id)
}

// Zigzag orders the cells of a dim.X x dim.Y grid row by row, alternating
// direction: even rows left to right, odd rows right to left.
func Zigzag(dim fabric.Vector2i) []fabric.Vector2i {
	if dim.X <= 0 || dim.Y <= 0 {
		return nil
	}
	out := make([]fabric.Vector2i, 0, dim.X*dim.Y)
	for y := int32(0); y < dim.Y; y++ {
		for i := int32(0); i < dim.X; i++ {
			x := i
			if y%2 == 1 {
				x = dim.X - 1 - i
			}
			out = append(out, fabric.Vector2i{X: x, Y: y})
		}
	}
	return out
}

// TileGrid is the number of tiles of size covering pvp, partial tiles
// included.
func TileGrid(pvp fabric.PixelViewport, size fabric.Vector2i) fabric.Vector2i {
	if size.X <= 0 || size.Y <= 0 {
		return fabric.Vector2i{}
	}
	dim := fabric.Vector2i{X: pvp.W / size.X, Y: pvp.H / size.Y}
	if pvp.W%size.X != 0 {
		dim.X++
	}
	if pvp.H%size.Y != 0 {
		dim.Y++
	}
	return dim
}

// TileRects returns the pixel and fractional rectangle of every tile of a
// zig-zag walk over pvp, clipping the partial tiles at the far edges.
func TileRects(pvp fabric.PixelViewport, size fabric.Vector2i) []Tile {
	if !pvp.HasArea() {
		return nil
	}
	xFraction := 1 / float64(pvp.W)
	yFraction := 1 / float64(pvp.H)
	cells := Zigzag(TileGrid(pvp, size))
	out := make([]Tile, 0, len(cells))
	for _, cell := range cells {
		rect := fabric.PixelViewport{X: cell.X * size.X, Y: cell.Y * size.Y, W: size.X, H: size.Y}
		if rect.X+size.X > pvp.W {
			rect.W = pvp.W - rect.X
		}
		if rect.Y+size.Y > pvp.H {
			rect.H = pvp.H - rect.Y
		}
		out = append(out, Tile{
			PVP: rect,
			VP: fabric.Viewport{
				X: float32(float64(rect.X) * xFraction),
				Y: float32(float64(rect.Y) * yFraction),
				W: float32(float64(rect.W) * xFraction),
				H: float32(float64(rect.H) * yFraction),
			},
		})
	}
	return out
}
