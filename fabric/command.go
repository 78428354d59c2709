package fabric

import "github.com/luci/go-render/render"

// Opcode identifies a command sent to, or a reply received from, a render
// client.
type Opcode int

const (
	OpConfigInit Opcode = iota
	OpConfigExit
	OpConfigUpdate
	OpConfigStartFrame
	OpConfigStopFrames
	OpConfigFinishAllFrames
	OpConfigCheckFrame

	OpNodeConfigInit
	OpNodeConfigExit
	OpNodeFrameStart
	OpNodeFrameFinish
	OpNodeFrameDrawFinish
	OpNodeFrameTasksFinish
	OpPipeConfigInit
	OpPipeConfigExit
	OpPipeFrameStartClock
	OpPipeFrameStart
	OpPipeFrameDrawFinish
	OpPipeFrameFinish
	OpWindowConfigInit
	OpWindowConfigExit
	OpWindowFrameStart
	OpWindowFrameDrawFinish
	OpWindowThrottleFramerate
	OpWindowBarrier
	OpWindowFrameFinish
	OpChannelConfigInit
	OpChannelConfigExit

	OpChannelFrameStart
	OpChannelFrameClear
	OpChannelFrameDraw
	OpChannelFrameTiles
	OpChannelFrameAssemble
	OpChannelFrameReadback
	OpChannelFrameViewStart
	OpChannelFrameViewFinish
	OpChannelFrameDrawFinish
	OpChannelFrameFinish
	OpChannelStopFrame

	// Replies from render clients.
	OpConfigInitReply
	OpConfigExitReply
	OpFrameFinishReply
	OpChannelFrameStatistics
	OpDisconnect
)

var opcodeNames = map[Opcode]string{
	OpConfigInit:              "CONFIG_INIT",
	OpConfigExit:              "CONFIG_EXIT",
	OpConfigUpdate:            "CONFIG_UPDATE",
	OpConfigStartFrame:        "CONFIG_START_FRAME",
	OpConfigStopFrames:        "CONFIG_STOP_FRAMES",
	OpConfigFinishAllFrames:   "CONFIG_FINISH_ALL_FRAMES",
	OpConfigCheckFrame:        "CONFIG_CHECK_FRAME",
	OpNodeConfigInit:          "NODE_CONFIG_INIT",
	OpNodeConfigExit:          "NODE_CONFIG_EXIT",
	OpNodeFrameStart:          "NODE_FRAME_START",
	OpNodeFrameFinish:         "NODE_FRAME_FINISH",
	OpNodeFrameDrawFinish:     "NODE_FRAME_DRAW_FINISH",
	OpNodeFrameTasksFinish:    "NODE_FRAME_TASKS_FINISH",
	OpPipeConfigInit:          "PIPE_CONFIG_INIT",
	OpPipeConfigExit:          "PIPE_CONFIG_EXIT",
	OpPipeFrameStartClock:     "PIPE_FRAME_START_CLOCK",
	OpPipeFrameStart:          "PIPE_FRAME_START",
	OpPipeFrameDrawFinish:     "PIPE_FRAME_DRAW_FINISH",
	OpPipeFrameFinish:         "PIPE_FRAME_FINISH",
	OpWindowConfigInit:        "WINDOW_CONFIG_INIT",
	OpWindowConfigExit:        "WINDOW_CONFIG_EXIT",
	OpWindowFrameStart:        "WINDOW_FRAME_START",
	OpWindowFrameDrawFinish:   "WINDOW_FRAME_DRAW_FINISH",
	OpWindowThrottleFramerate: "WINDOW_THROTTLE_FRAMERATE",
	OpWindowBarrier:           "WINDOW_BARRIER",
	OpWindowFrameFinish:       "WINDOW_FRAME_FINISH",
	OpChannelConfigInit:       "CHANNEL_CONFIG_INIT",
	OpChannelConfigExit:       "CHANNEL_CONFIG_EXIT",
	OpChannelFrameStart:       "CHANNEL_FRAME_START",
	OpChannelFrameClear:       "CHANNEL_FRAME_CLEAR",
	OpChannelFrameDraw:        "CHANNEL_FRAME_DRAW",
	OpChannelFrameTiles:       "CHANNEL_FRAME_TILES",
	OpChannelFrameAssemble:    "CHANNEL_FRAME_ASSEMBLE",
	OpChannelFrameReadback:    "CHANNEL_FRAME_READBACK",
	OpChannelFrameViewStart:   "CHANNEL_FRAME_VIEW_START",
	OpChannelFrameViewFinish:  "CHANNEL_FRAME_VIEW_FINISH",
	OpChannelFrameDrawFinish:  "CHANNEL_FRAME_DRAW_FINISH",
	OpChannelFrameFinish:      "CHANNEL_FRAME_FINISH",
	OpChannelStopFrame:        "CHANNEL_STOP_FRAME",
	OpConfigInitReply:         "CONFIG_INIT_REPLY",
	OpConfigExitReply:         "CONFIG_EXIT_REPLY",
	OpFrameFinishReply:        "FRAME_FINISH_REPLY",
	OpChannelFrameStatistics:  "CHANNEL_FRAME_STATISTICS",
	OpDisconnect:              "DISCONNECT",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsReply tells whether the opcode travels from render clients to the
// server.
func (o Opcode) IsReply() bool { return o >= OpConfigInitReply }

// FrameRef names one distributed frame or tile queue payload referenced by
// an assemble, readback or tiles command.
type FrameRef struct {
	Name    string
	ID      string
	Version uint32
	Offset  Vector2i
	Zoom    Zoom
}

// Command is one message for a render client. Entity is the index path of
// the addressed resource; Context is set for channel task commands.
type Command struct {
	Op          Opcode
	Entity      string
	Frame       uint32
	FrameID     string
	Context     *RenderContext
	Frames      []FrameRef
	Finish      bool
	Latency     uint32
	BarrierID   string
	BarrierSize uint32

	// Tasks restricts the work a CHANNEL_FRAME_TILES command does per tile.
	Tasks Task

	// MinFrameTime throttles swap for WINDOW_THROTTLE_FRAMERATE, in ms.
	MinFrameTime float32
}

func (c Command) String() string { return render.Render(c) }

// Reply is one message from a render client. Entity identifies the
// resource whose state is resolved by an init or exit reply, or the channel
// whose statistics are reported.
type Reply struct {
	Op         Opcode
	Node       string
	Entity     string
	Frame      uint32
	Success    bool
	Error      string
	Statistics []Statistic
	Region     Viewport
}

func (r Reply) String() string { return render.Render(r) }
