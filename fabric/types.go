package fabric

import "strings"

// Eye is a bitmask of eye passes.
type Eye uint32

const (
	EyeUndefined Eye = 0
	EyeCyclop    Eye = 1 << 0
	EyeLeft      Eye = 1 << 1
	EyeRight     Eye = 1 << 2
	EyesStereo       = EyeLeft | EyeRight
	EyesAll          = EyeCyclop | EyeLeft | EyeRight
)

// EyeIndex returns the array slot used for per-eye state.
func EyeIndex(eye Eye) int {
	switch eye {
	case EyeLeft:
		return 1
	case EyeRight:
		return 2
	default:
		return 0
	}
}

// EachEye lists the single-eye values in pass order.
var EachEye = []Eye{EyeCyclop, EyeLeft, EyeRight}

func (e Eye) String() string {
	var parts []string
	if e&EyeCyclop != 0 {
		parts = append(parts, "CYCLOP")
	}
	if e&EyeLeft != 0 {
		parts = append(parts, "LEFT")
	}
	if e&EyeRight != 0 {
		parts = append(parts, "RIGHT")
	}
	if len(parts) == 0 {
		return "UNDEFINED"
	}
	return strings.Join(parts, "|")
}

// Task is a bitmask of the rendering tasks a compound executes.
type Task uint32

const (
	TaskNone     Task = 0
	TaskDefault  Task = 1 << 0
	TaskClear    Task = 1 << 1
	TaskCull     Task = 1 << 2
	TaskDraw     Task = 1 << 3
	TaskAssemble Task = 1 << 4
	TaskReadback Task = 1 << 5
	TaskView     Task = 1 << 6
	TaskAll      Task = TaskClear | TaskCull | TaskDraw | TaskAssemble | TaskReadback | TaskView
)

func (t Task) Has(mask Task) bool { return t&mask != 0 }

func (t Task) String() string {
	if t == TaskNone {
		return "NONE"
	}
	if t == TaskDefault {
		return "DEFAULT"
	}
	names := []struct {
		bit  Task
		name string
	}{
		{TaskClear, "CLEAR"}, {TaskCull, "CULL"}, {TaskDraw, "DRAW"},
		{TaskAssemble, "ASSEMBLE"}, {TaskReadback, "READBACK"}, {TaskView, "VIEW"},
	}
	var parts []string
	for _, n := range names {
		if t&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Buffer is a bitmask of frame buffer attachments.
type Buffer uint32

const (
	BufferUndefined Buffer = 0
	BufferColor     Buffer = 1 << 0
	BufferDepth     Buffer = 1 << 1
)

// FrameStorage selects where a frame keeps its pixels during transport.
type FrameStorage int

const (
	StorageMemory FrameStorage = iota
	StorageTexture
)

func (s FrameStorage) String() string {
	if s == StorageTexture {
		return "texture"
	}
	return "memory"
}

// IAttr is a tri-state integer attribute value.
type IAttr int32

const (
	Undefined IAttr = -0xfffffff
	Off       IAttr = 0
	On        IAttr = 1
	Auto      IAttr = -0xffffffe
)

// StereoMode selects how stereo passes reach the display.
type StereoMode int

const (
	StereoUndefined StereoMode = -1
	StereoAuto      StereoMode = iota - 1
	StereoMono
	StereoQuad
	StereoAnaglyph
	StereoPassive
)

func (m StereoMode) String() string {
	switch m {
	case StereoMono:
		return "MONO"
	case StereoQuad:
		return "QUAD"
	case StereoAnaglyph:
		return "ANAGLYPH"
	case StereoPassive:
		return "PASSIVE"
	case StereoUndefined:
		return "UNDEFINED"
	default:
		return "AUTO"
	}
}

// DecompositionMode is the axis or dimension a load equalizer splits.
type DecompositionMode int

const (
	Mode2D DecompositionMode = iota
	ModeVertical
	ModeHorizontal
	ModeDB
)

func (m DecompositionMode) String() string {
	switch m {
	case ModeVertical:
		return "VERTICAL"
	case ModeHorizontal:
		return "HORIZONTAL"
	case ModeDB:
		return "DB"
	default:
		return "2D"
	}
}

// ParseDecompositionMode maps a configuration keyword to a mode.
func ParseDecompositionMode(s string) (DecompositionMode, bool) {
	switch strings.ToUpper(s) {
	case "2D", "":
		return Mode2D, true
	case "VERTICAL":
		return ModeVertical, true
	case "HORIZONTAL":
		return ModeHorizontal, true
	case "DB":
		return ModeDB, true
	}
	return Mode2D, false
}

// ColorMask enables the RGB channels written by a draw pass.
type ColorMask struct {
	Red, Green, Blue bool
}

var (
	ColorMaskAll  = ColorMask{true, true, true}
	ColorMaskRed  = ColorMask{Red: true}
	ColorMaskCyan = ColorMask{Green: true, Blue: true}
)

// DrawBuffer values use the OpenGL enumerants render clients expect.
const (
	DrawBufferFrontLeft  uint32 = 0x0400
	DrawBufferFrontRight uint32 = 0x0401
	DrawBufferBackLeft   uint32 = 0x0402
	DrawBufferBackRight  uint32 = 0x0403
	DrawBufferFront      uint32 = 0x0404
	DrawBufferBack       uint32 = 0x0405
)

// VisitorResult steers a tree traversal.
type VisitorResult int

const (
	Continue VisitorResult = iota
	Prune
	Terminate
)

func (r VisitorResult) String() string {
	switch r {
	case Prune:
		return "PRUNE"
	case Terminate:
		return "TERMINATE"
	default:
		return "CONTINUE"
	}
}
