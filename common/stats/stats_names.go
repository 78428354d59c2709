package stats

/*
This file defines all the metrics being collected.   As new metrics are added please follow this pattern.
*/

const (
	/****************************** Server metrics ****************************************/
	/*
		record the start of the control loop
	*/
	ServerStartedGauge = "serverStartGauge"

	/*
		time the server has been running
	*/
	ServerUptime_ms = "serverUptime_ms"

	/*
		number of requests (init, exit, frame, finish...) handed to the control loop
	*/
	ServerRequestCounter = "serverRequestCounter"

	/*
		1 while the config is running, 0 otherwise
	*/
	ConfigRunningGauge = "configRunningGauge"

	/****************************** Frame metrics ****************************************/
	/*
		number of frames started
	*/
	FrameStartCounter = "frameStartCounter"

	/*
		number of frames every running node reported finished
	*/
	FrameFinishCounter = "frameFinishCounter"

	/*
		time from start frame until the frame finished on all running nodes
	*/
	FrameLatency_ms = "frameLatency_ms"

	/*
		the current frame number and the last finished frame number
	*/
	FrameCurrentGauge  = "frameCurrentGauge"
	FrameFinishedGauge = "frameFinishedGauge"

	/*
		number of frame starts delayed by the max fps limit
	*/
	FrameThrottledCounter = "frameThrottledCounter"

	/****************************** Resource sync metrics ****************************************/
	/*
		number of resources whose init or exit failed during a sync
	*/
	SyncFailureCounter = "syncFailureCounter"

	/*
		time spent blocked on resource syncs per update
	*/
	SyncLatency_ms = "syncLatency_ms"

	/*
		number of nodes marked failed, because of disconnect, launch timeout or frame lag
	*/
	NodeFailedCounter = "nodeFailedCounter"

	/*
		number of channels running after the last update
	*/
	RunningChannelsGauge = "runningChannelsGauge"

	/****************************** Equalizer metrics ****************************************/
	/*
		the root split position of a load equalizer
	*/
	EqualizerSplitGauge = "equalizerSplitGauge"

	/*
		the total time of the load sample a load equalizer balanced with
	*/
	EqualizerLoadHistogram_ms = "equalizerLoadHistogram_ms"

	/*
		per channel render time reported in load statistics
	*/
	ChannelLoadHistogram_ms = "channelLoadHistogram_ms"

	/****************************** Transport metrics ****************************************/
	/*
		commands sent to render clients, and commands that could not be delivered
	*/
	TransportCommandCounter    = "transportCommandCounter"
	TransportCommandErrCounter = "transportCommandErrCounter"

	/*
		replies received from render clients
	*/
	TransportReplyCounter = "transportReplyCounter"

	/*
		number of node launch attempts, including retries
	*/
	TransportLaunchCounter = "transportLaunchCounter"
)
