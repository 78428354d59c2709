package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceiver(t *testing.T) (StatsReceiver, StatsRegistry) {
	reg := NewFinagleStatsRegistry()
	stat, cancel := NewCustomStatsReceiver(func() StatsRegistry { return reg }, 0)
	t.Cleanup(cancel)
	return stat, reg
}

func withClock(t *testing.T, c Clock) {
	old := DefaultClock
	DefaultClock = c
	t.Cleanup(func() { DefaultClock = old })
}

func TestScope(t *testing.T) {
	stat, reg := newReceiver(t)
	compound := stat.Scope("compound", "c0/left")
	compound.Counter(FrameStartCounter).Inc(1)
	compound.Scope("load").GaugeFloat(EqualizerSplitGauge).Update(0.25)
	stat.Counter(FrameStartCounter).Inc(3)

	VerifyStats("scope", reg, t, map[string]Rule{
		"compound/c0_SLASH_left/" + FrameStartCounter:        {Checker: Int64EqTest, Value: 1},
		"compound/c0_SLASH_left/load/" + EqualizerSplitGauge: {Checker: FloatEqTest, Value: 0.25},
		FrameStartCounter: {Checker: Int64EqTest, Value: 3},
		"c0/" + FrameStartCounter: {Checker: DoesNotExistTest},
	})
}

func TestScope_DoesNotAlias(t *testing.T) {
	stat, reg := newReceiver(t)
	base := stat.Scope("node")
	a := base.Scope("n0")
	b := base.Scope("n1")
	a.Counter(NodeFailedCounter).Inc(1)
	b.Counter(NodeFailedCounter).Inc(2)

	VerifyStats("alias", reg, t, map[string]Rule{
		"node/n0/" + NodeFailedCounter: {Checker: Int64EqTest, Value: 1},
		"node/n1/" + NodeFailedCounter: {Checker: Int64EqTest, Value: 2},
	})
}

func TestRender_Finagle(t *testing.T) {
	withClock(t, NewFixedClock(time.Unix(0, 0), 4*time.Millisecond, nil))
	stat, _ := newReceiver(t)
	stat.Counter(FrameFinishCounter).Inc(2)
	stat.Gauge(FrameCurrentGauge).Update(7)
	ms := stat.Precision(time.Millisecond)
	ms.Latency(SyncLatency_ms).Time().Stop()
	withClock(t, NewFixedClock(time.Unix(0, 0), 8*time.Millisecond, nil))
	ms.Latency(SyncLatency_ms).Time().Stop()

	var got map[string]float64
	require.NoError(t, json.Unmarshal(stat.Render(false), &got))
	assert.Equal(t, 2.0, got[FrameFinishCounter])
	assert.Equal(t, 7.0, got[FrameCurrentGauge])
	assert.Equal(t, 2.0, got[SyncLatency_ms+".count"])
	assert.Equal(t, 6.0, got[SyncLatency_ms+".avg"])
	assert.Equal(t, 4.0, got[SyncLatency_ms+".min"])
	assert.Equal(t, 8.0, got[SyncLatency_ms+".max"])
	assert.Equal(t, 12.0, got[SyncLatency_ms+".sum"])

	// histograms reset once rendered, counters keep counting
	require.NoError(t, json.Unmarshal(stat.Render(true), &got))
	assert.Equal(t, 0.0, got[SyncLatency_ms+".count"])
	assert.Equal(t, 2.0, got[FrameFinishCounter])
}

func TestHistogram(t *testing.T) {
	stat, reg := newReceiver(t)
	for _, ms := range []int64{10, 20, 30, 40} {
		stat.Histogram(ChannelLoadHistogram_ms, "c0").Update(ms)
	}
	VerifyStats("histogram", reg, t, map[string]Rule{
		ChannelLoadHistogram_ms + "/c0.count": {Checker: Int64EqTest, Value: 4},
		ChannelLoadHistogram_ms + "/c0.min":   {Checker: Int64EqTest, Value: 10},
		ChannelLoadHistogram_ms + "/c0.max":   {Checker: Int64EqTest, Value: 40},
		ChannelLoadHistogram_ms + "/c0.avg":   {Checker: FloatEqTest, Value: 25.0},
	})
}

func TestLatching(t *testing.T) {
	ticks := make(chan time.Time)
	withClock(t, NewFixedClock(time.Unix(0, 0), time.Nanosecond, ticks))

	stat, cancel := NewCustomStatsReceiver(NewFinagleStatsRegistry, 5*time.Nanosecond)
	defer cancel()
	stat.Counter(FrameStartCounter).Inc(1)

	// ticks before the first latch boundary keep the initial, empty snapshot
	ticks <- time.Unix(0, 0)
	assert.Equal(t, "{}", string(stat.Render(false)))

	ticks <- time.Unix(60, 0)
	var got map[string]int64
	require.NoError(t, json.Unmarshal(stat.Render(false), &got))
	assert.Equal(t, int64(1), got[FrameStartCounter])

	// the snapshot does not follow live updates until the next tick
	stat.Counter(FrameStartCounter).Inc(1)
	require.NoError(t, json.Unmarshal(stat.Render(false), &got))
	assert.Equal(t, int64(1), got[FrameStartCounter])
}

func TestNilStatsReceiver(t *testing.T) {
	stat := NilStatsReceiver().Scope("compound").Precision(time.Millisecond)
	stat.Counter(FrameStartCounter).Inc(1)
	stat.Gauge(FrameCurrentGauge).Update(3)
	stat.Latency(SyncLatency_ms).Time().Stop()
	assert.Equal(t, int64(0), stat.Counter(FrameStartCounter).Count())
	assert.Equal(t, "{}", string(stat.Render(true)))
}

func TestVerifyStats_Reports(t *testing.T) {
	_, reg := newReceiver(t)
	reg.GetOrRegister(FrameStartCounter, NewCounter()).(Counter).Inc(2)

	rec := &recordingT{TB: t}
	VerifyStats("report", reg, rec, map[string]Rule{
		FrameStartCounter:  {Checker: Int64EqTest, Value: 3},
		FrameFinishCounter: {Checker: DoesNotExistTest},
	})
	assert.True(t, rec.failed)
}

type recordingT struct {
	testing.TB
	failed bool
}

func (r *recordingT) Errorf(string, ...interface{}) { r.failed = true }
