package loader

import (
	"github.com/hashicorp/hcl/v2"
)

// clusterFile is the top level of a cluster description.
type clusterFile struct {
	Name       string           `hcl:"name,optional"`
	Latency    *int             `hcl:"latency,optional"`
	Robustness string           `hcl:"robustness,optional"`
	Nodes      []*nodeBlock     `hcl:"node,block"`
	Observers  []*observerBlock `hcl:"observer,block"`
	Layouts    []*layoutBlock   `hcl:"layout,block"`
	Canvases   []*canvasBlock   `hcl:"canvas,block"`
	Compounds  []*compoundBlock `hcl:"compound,block"`
}

type nodeBlock struct {
	Name        string       `hcl:"name,label"`
	ThreadModel string       `hcl:"thread_model,optional"`
	Pipes       []*pipeBlock `hcl:"pipe,block"`
}

type pipeBlock struct {
	Name     string         `hcl:"name,label"`
	Device   *int           `hcl:"device,optional"`
	Threaded *bool          `hcl:"threaded,optional"`
	Windows  []*windowBlock `hcl:"window,block"`
}

type windowBlock struct {
	Name         string          `hcl:"name,label"`
	Viewport     []float64       `hcl:"viewport,optional"`
	Stereo       string          `hcl:"stereo,optional"`
	Doublebuffer string          `hcl:"doublebuffer,optional"`
	FBO          bool            `hcl:"fbo,optional"`
	Channels     []*channelBlock `hcl:"channel,block"`
}

type channelBlock struct {
	Name     string    `hcl:"name,label"`
	Viewport []float64 `hcl:"viewport,optional"`
	MaxSize  []float64 `hcl:"max_size,optional"`
	Overdraw []float64 `hcl:"overdraw,optional"`
}

type observerBlock struct {
	Name    string   `hcl:"name,label"`
	EyeBase *float64 `hcl:"eye_base,optional"`
}

type layoutBlock struct {
	Name  string       `hcl:"name,label"`
	Views []*viewBlock `hcl:"view,block"`
}

type viewBlock struct {
	Name       string           `hcl:"name,label"`
	Viewport   []float64        `hcl:"viewport,optional"`
	Observer   string           `hcl:"observer,optional"`
	Mode       string           `hcl:"mode,optional"`
	Overdraw   []float64        `hcl:"overdraw,optional"`
	ModelUnit  *float64         `hcl:"model_unit,optional"`
	Wall       *wallBlock       `hcl:"wall,block"`
	Projection *projectionBlock `hcl:"projection,block"`
}

type canvasBlock struct {
	Name        string           `hcl:"name,label"`
	Layouts     []string         `hcl:"layouts,optional"`
	SwapBarrier string           `hcl:"swap_barrier,optional"`
	Wall        *wallBlock       `hcl:"wall,block"`
	Projection  *projectionBlock `hcl:"projection,block"`
	Segments    []*segmentBlock  `hcl:"segment,block"`
}

type segmentBlock struct {
	Name         string              `hcl:"name,label"`
	Channel      string              `hcl:"channel"`
	Viewport     []float64           `hcl:"viewport,optional"`
	Eyes         []string            `hcl:"eyes,optional"`
	SwapBarrier  string              `hcl:"swap_barrier,optional"`
	Wall         *wallBlock          `hcl:"wall,block"`
	Projection   *projectionBlock    `hcl:"projection,block"`
	Destinations []*destinationBlock `hcl:"destination,block"`
}

type destinationBlock struct {
	Channel string `hcl:"channel"`
	View    string `hcl:"view"`
}

type wallBlock struct {
	BottomLeft  []float64 `hcl:"bottom_left"`
	BottomRight []float64 `hcl:"bottom_right"`
	TopLeft     []float64 `hcl:"top_left"`
	Type        string    `hcl:"type,optional"`
}

type projectionBlock struct {
	Origin   []float64 `hcl:"origin,optional"`
	Distance float64   `hcl:"distance"`
	FOV      []float64 `hcl:"fov"`
	HPR      []float64 `hcl:"hpr,optional"`
}

type compoundBlock struct {
	Name         string            `hcl:"name,optional"`
	Channel      string            `hcl:"channel,optional"`
	Tasks        []string          `hcl:"tasks,optional"`
	Eyes         []string          `hcl:"eyes,optional"`
	Buffers      []string          `hcl:"buffers,optional"`
	StereoMode   string            `hcl:"stereo_mode,optional"`
	Viewport     []float64         `hcl:"viewport,optional"`
	Range        []float64         `hcl:"range,optional"`
	Pixel        []float64         `hcl:"pixel,optional"`
	SubPixel     []float64         `hcl:"subpixel,optional"`
	Zoom         []float64         `hcl:"zoom,optional"`
	Period       *int              `hcl:"period,optional"`
	Phase        *int              `hcl:"phase,optional"`
	MaxFPS       *float64          `hcl:"max_fps,optional"`
	Wall         *wallBlock        `hcl:"wall,block"`
	Projection   *projectionBlock  `hcl:"projection,block"`
	SwapBarrier  *swapBarrierBlock `hcl:"swap_barrier,block"`
	Equalizers   []*equalizerBlock `hcl:"equalizer,block"`
	InputFrames  []*frameBlock     `hcl:"input_frame,block"`
	OutputFrames []*frameBlock     `hcl:"output_frame,block"`
	InputTiles   []*tilesBlock     `hcl:"input_tiles,block"`
	OutputTiles  []*tilesBlock     `hcl:"output_tiles,block"`
	Children     []*compoundBlock  `hcl:"compound,block"`
}

type swapBarrierBlock struct {
	Name string `hcl:"name,optional"`
}

// equalizerBlock keeps its attributes undecoded, each equalizer type
// reads the ones it understands.
type equalizerBlock struct {
	Type   string   `hcl:"type,label"`
	Config hcl.Body `hcl:",remain"`
}

type frameBlock struct {
	Name     string    `hcl:"name,optional"`
	Viewport []float64 `hcl:"viewport,optional"`
	Buffers  []string  `hcl:"buffers,optional"`
	Storage  string    `hcl:"storage,optional"`
	Zoom     []float64 `hcl:"zoom,optional"`
	Offset   []float64 `hcl:"offset,optional"`
}

type tilesBlock struct {
	Name string    `hcl:"name,optional"`
	Size []float64 `hcl:"size,optional"`
}
