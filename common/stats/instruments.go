package stats

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

// histogramSamples bounds the reservoir of every histogram and latency.
const histogramSamples = 1024

// Counter counts events such as started frames or failed nodes.
type Counter interface {
	Capture() Counter
	Clear()
	Count() int64
	Inc(int64)
	Update(int64)
}

type counter struct{ metrics.Counter }

func (c counter) Capture() Counter { return counter{c.Snapshot()} }
func (c counter) Update(n int64)   { c.Inc(n - c.Count()) }

// Gauge holds the latest value of something like the current frame number.
type Gauge interface {
	Capture() Gauge
	Update(int64)
	Value() int64
}

type gauge struct{ metrics.Gauge }

func (g gauge) Capture() Gauge { return gauge{g.Snapshot()} }

// GaugeFloat holds a float value, e.g. a load equalizer's split position.
type GaugeFloat interface {
	Capture() GaugeFloat
	Update(float64)
	Value() float64
}

type gaugeFloat struct{ metrics.GaugeFloat64 }

func (g gaugeFloat) Capture() GaugeFloat { return gaugeFloat{g.Snapshot()} }

// HistogramView is the read side of a histogram snapshot.
type HistogramView interface {
	Mean() float64
	Count() int64
	Max() int64
	Min() int64
	Sum() int64
	Percentiles(ps []float64) []float64
}

// Histogram samples values such as per channel draw times.
type Histogram interface {
	HistogramView
	Capture() Histogram
	Update(int64)
}

type histogram struct{ metrics.Histogram }

func (h histogram) Capture() Histogram { return histogram{h.Snapshot()} }

// Latency is a histogram of durations measured between Time and Stop.
// Values are kept in nanoseconds and rendered in the precision of the
// receiver that created them.
type Latency interface {
	Capture() Latency
	Time() Latency
	Stop()
	GetPrecision() time.Duration
	Precision(time.Duration) Latency
}

type latency struct {
	metrics.Histogram
	start     time.Time
	precision time.Duration
}

func (l *latency) Time() Latency { l.start = DefaultClock.Now(); return l }
func (l *latency) Stop()         { l.Update(DefaultClock.Since(l.start).Nanoseconds()) }

func (l *latency) Capture() Latency {
	return &latency{Histogram: l.Histogram.Snapshot(), start: l.start, precision: l.precision}
}

func (l *latency) GetPrecision() time.Duration { return l.precision }

func (l *latency) Precision(p time.Duration) Latency {
	if p < 1 {
		p = 1
	}
	l.precision = p
	return l
}

type nilLatency struct{}

func (l nilLatency) Time() Latency                   { return l }
func (l nilLatency) Stop()                           {}
func (l nilLatency) Capture() Latency                { return l }
func (l nilLatency) GetPrecision() time.Duration     { return 0 }
func (l nilLatency) Precision(time.Duration) Latency { return l }

// Instrument constructors, replaceable to record elsewhere.
var (
	NewCounter    = func() Counter { return counter{metrics.NewCounter()} }
	NewGauge      = func() Gauge { return gauge{metrics.NewGauge()} }
	NewGaugeFloat = func() GaugeFloat { return gaugeFloat{metrics.NewGaugeFloat64()} }
	NewHistogram  = func() Histogram {
		return histogram{metrics.NewHistogram(metrics.NewUniformSample(histogramSamples))}
	}
	NewLatency = func() Latency {
		return &latency{
			Histogram: metrics.NewHistogram(metrics.NewUniformSample(histogramSamples)),
			precision: time.Nanosecond,
		}
	}
)
