package fabric

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultLatency           = 1
	DefaultEyeBase           = float32(.05)
	DefaultLaunchTimeout     = 60 * time.Second
	DefaultDamping           = float32(.5)
	DefaultDFRFrameRate      = float32(10)
	DefaultTileSize          = int32(64)
	DefaultModelUnit         = float32(1)
	DefaultMaxFPS            = float32(math.MaxFloat32)
	DefaultFrameTimeout      = 5 * time.Second
	DefaultRobustness        = On
	DefaultAssembleOnlyLimit = float32(math.MaxFloat32)
	DefaultBoundaryf         = Epsilon
	DefaultStopNodesWait     = 10 * time.Second
)

// Defaults is the attribute policy of one server session. It is created
// once, read only afterwards, and handed to every entity that needs a
// fallback value.
type Defaults struct {
	Latency       uint32
	EyeBase       float32
	ModelUnit     float32
	Robustness    IAttr
	LaunchTimeout time.Duration
	FrameTimeout  time.Duration
	StopNodesWait time.Duration

	// Window capabilities assumed when a window does not state them.
	HintStereo       IAttr
	HintDoublebuffer IAttr
	HintFBO          IAttr

	// Load-balancing parameters for equalizers that do not override them.
	Damping           float32
	Boundary2i        Vector2i
	Boundaryf         float32
	Resistance2i      Vector2i
	Resistancef       float32
	AssembleOnlyLimit float32
	DFRFrameRate      float32
	TileSize          Vector2i

	FrameStorage      FrameStorage
	AnaglyphLeftMask  ColorMask
	AnaglyphRightMask ColorMask
	SwapBarrierPrefix string
	OutputFramePrefix string
}

// NewDefaults returns the stock policy.
func NewDefaults() Defaults {
	return Defaults{
		Latency:           DefaultLatency,
		EyeBase:           DefaultEyeBase,
		ModelUnit:         DefaultModelUnit,
		Robustness:        DefaultRobustness,
		LaunchTimeout:     DefaultLaunchTimeout,
		FrameTimeout:      DefaultFrameTimeout,
		StopNodesWait:     DefaultStopNodesWait,
		HintStereo:        Auto,
		HintDoublebuffer:  Auto,
		HintFBO:           Off,
		Damping:           DefaultDamping,
		Boundary2i:        Vector2i{1, 1},
		Boundaryf:         DefaultBoundaryf,
		Resistance2i:      Vector2i{0, 0},
		Resistancef:       0,
		AssembleOnlyLimit: DefaultAssembleOnlyLimit,
		DFRFrameRate:      DefaultDFRFrameRate,
		TileSize:          Vector2i{DefaultTileSize, DefaultTileSize},
		FrameStorage:      StorageMemory,
		AnaglyphLeftMask:  ColorMaskRed,
		AnaglyphRightMask: ColorMaskCyan,
		SwapBarrierPrefix: "barrier",
		OutputFramePrefix: "frame",
	}
}

func (d Defaults) String() string {
	return fmt.Sprintf("Defaults{Latency: %d, Robustness: %d, Damping: %g, LaunchTimeout: %s}",
		d.Latency, d.Robustness, d.Damping, d.LaunchTimeout)
}
