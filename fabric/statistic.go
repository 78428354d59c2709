package fabric

// StatisticType names the phase a render client measured.
type StatisticType int

const (
	StatChannelClear StatisticType = iota
	StatChannelDraw
	StatChannelDrawFinish
	StatChannelAssemble
	StatChannelFrameWaitReady
	StatChannelReadback
	StatChannelAsyncReadback
	StatChannelViewFinish
	StatChannelFrameTransmit
	StatChannelFrameCompress
	StatChannelFrameWaitSendToken
	StatWindowFinish
	StatWindowSwapBarrier
	StatWindowSwap
	StatNodeFrameDecompress
	StatConfigStartFrame
	StatConfigFinishFrame
)

var statisticNames = map[StatisticType]string{
	StatChannelClear:              "clear",
	StatChannelDraw:               "draw",
	StatChannelDrawFinish:         "draw_finish",
	StatChannelAssemble:           "assemble",
	StatChannelFrameWaitReady:     "wait_frame",
	StatChannelReadback:           "readback",
	StatChannelAsyncReadback:      "async_readback",
	StatChannelViewFinish:         "view_finish",
	StatChannelFrameTransmit:      "transmit",
	StatChannelFrameCompress:      "compress",
	StatChannelFrameWaitSendToken: "wait_send_token",
	StatWindowFinish:              "finish",
	StatWindowSwapBarrier:         "swap_barrier",
	StatWindowSwap:                "swap",
	StatNodeFrameDecompress:       "decompress",
	StatConfigStartFrame:          "start_frame",
	StatConfigFinishFrame:         "finish_frame",
}

func (t StatisticType) String() string {
	if name, ok := statisticNames[t]; ok {
		return name
	}
	return "unknown"
}

// Statistic is one timed event, in milliseconds, reported by a render
// client for the compound identified by Task.
type Statistic struct {
	Type      StatisticType
	Task      uint32
	Frame     uint32
	StartTime int64
	EndTime   int64
	Resource  string
}

// Duration is EndTime - StartTime.
func (s Statistic) Duration() int64 { return s.EndTime - s.StartTime }
