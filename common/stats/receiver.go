package stats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

// DefaultClock times latencies and drives latching.
var DefaultClock = SystemClock()

// StatsRegistry holds named instruments. GetOrRegister accepts either an
// instrument or a func returning one.
type StatsRegistry interface {
	GetOrRegister(string, interface{}) interface{}
	Unregister(string)
	Each(func(string, interface{}))
}

// MarshalerPretty is implemented by registries that can render indented.
type MarshalerPretty interface {
	MarshalJSONPretty() ([]byte, error)
}

// StatsReceiver creates instruments under a '/' separated scope.
//
//   stat.Scope("compound", "c0").Counter("frameStartCounter")
//
// records to "compound/c0/frameStartCounter". A '/' inside a name element
// is replaced with "_SLASH_" so channel and node names cannot add levels.
type StatsReceiver interface {
	Scope(scope ...string) StatsReceiver

	// Precision sets the display unit of latencies created through the
	// returned receiver. It does not change the recorded values.
	Precision(time.Duration) StatsReceiver

	Counter(name ...string) Counter
	Gauge(name ...string) Gauge
	GaugeFloat(name ...string) GaugeFloat
	Histogram(name ...string) Histogram
	Latency(name ...string) Latency
	Remove(name ...string)

	// Render marshals the registry, or its latest snapshot when latched.
	Render(pretty bool) []byte
}

type snapshot struct {
	registry StatsRegistry
	at       time.Time
}

type receiver struct {
	newRegistry func() StatsRegistry
	registry    StatsRegistry
	snapshots   chan chan snapshot
	precision   time.Duration
	scope       []string
}

// NewCustomStatsReceiver returns a receiver over a registry made by
// newRegistry, a plain go-metrics registry when nil. With latch > 0 a
// goroutine snapshots the registry every latch interval until cancel is
// called. Render must not be called after cancel.
func NewCustomStatsReceiver(newRegistry func() StatsRegistry, latch time.Duration) (stat StatsReceiver, cancel func()) {
	if newRegistry == nil {
		newRegistry = func() StatsRegistry { return metrics.NewRegistry() }
	}
	r := &receiver{
		newRegistry: newRegistry,
		registry:    newRegistry(),
		precision:   time.Nanosecond,
	}
	cancel = func() {}
	if latch > 0 {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		r.snapshots = make(chan chan snapshot)
		first := DefaultClock.Now().Add(latch).Truncate(latch)
		initial := snapshot{capture(r.registry, r.newRegistry()), DefaultClock.Now()}
		go r.latch(ctx, DefaultClock.NewTicker(latch), first, initial)
	}
	return r, cancel
}

func (r *receiver) latch(ctx context.Context, ticker Ticker, first time.Time, current snapshot) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C():
			if t.Before(first) {
				continue
			}
			current = snapshot{capture(r.registry, r.newRegistry()), t}
			clearHistograms(r.registry)
			log.WithFields(log.Fields{"at": t}).Trace("Latched stats")
		case req := <-r.snapshots:
			req <- current
		}
	}
}

func capture(src, dst StatsRegistry) StatsRegistry {
	src.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case Counter:
			dst.GetOrRegister(name, m.Capture())
		case Gauge:
			dst.GetOrRegister(name, m.Capture())
		case GaugeFloat:
			dst.GetOrRegister(name, m.Capture())
		case Histogram:
			dst.GetOrRegister(name, m.Capture())
		case Latency:
			dst.GetOrRegister(name, m.Capture())
		default:
			log.WithFields(log.Fields{"stat": name}).Info("Unrecognized instrument, not captured")
		}
	})
	return dst
}

func clearHistograms(reg StatsRegistry) {
	reg.Each(func(_ string, i interface{}) {
		if h, ok := i.(metrics.Histogram); ok {
			h.Clear()
		}
	})
}

func (r *receiver) derive(precision time.Duration, scope []string) *receiver {
	return &receiver{r.newRegistry, r.registry, r.snapshots, precision, scope}
}

func (r *receiver) Scope(scope ...string) StatsReceiver {
	return r.derive(r.precision, r.scoped(scope...))
}

func (r *receiver) Precision(precision time.Duration) StatsReceiver {
	if precision < 1 {
		precision = 1
	}
	return r.derive(precision, r.scope)
}

func (r *receiver) Counter(name ...string) Counter {
	return r.registry.GetOrRegister(r.name(name...), NewCounter).(Counter)
}

func (r *receiver) Gauge(name ...string) Gauge {
	return r.registry.GetOrRegister(r.name(name...), NewGauge).(Gauge)
}

func (r *receiver) GaugeFloat(name ...string) GaugeFloat {
	return r.registry.GetOrRegister(r.name(name...), NewGaugeFloat).(GaugeFloat)
}

func (r *receiver) Histogram(name ...string) Histogram {
	return r.registry.GetOrRegister(r.name(name...), NewHistogram).(Histogram)
}

// Latency registers an instance rather than a constructor: a go-metrics
// registry cannot convert the constructor's result back to a Latency.
func (r *receiver) Latency(name ...string) Latency {
	return r.registry.GetOrRegister(r.name(name...), NewLatency().Precision(r.precision)).(Latency)
}

func (r *receiver) Remove(name ...string) {
	r.registry.Unregister(r.name(name...))
}

func (r *receiver) Render(pretty bool) []byte {
	reg := r.registry
	if r.snapshots != nil {
		req := make(chan snapshot)
		r.snapshots <- req
		reg = (<-req).registry
	}

	var out []byte
	var err error
	if mp, ok := reg.(MarshalerPretty); ok && pretty {
		out, err = mp.MarshalJSONPretty()
	} else {
		out, err = json.Marshal(reg)
	}
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Error("Cannot marshal stats registry")
		return []byte("{}")
	}
	if r.snapshots == nil {
		clearHistograms(r.registry)
	}
	return out
}

func (r *receiver) scoped(elems ...string) []string {
	scope := make([]string, len(r.scope), len(r.scope)+len(elems))
	copy(scope, r.scope)
	for _, e := range elems {
		scope = append(scope, strings.Replace(e, "/", "_SLASH_", -1))
	}
	return scope
}

func (r *receiver) name(elems ...string) string {
	return strings.Join(r.scoped(elems...), "/")
}

// NilStatsReceiver drops everything recorded to it.
func NilStatsReceiver() StatsReceiver { return nilReceiver{} }

type nilReceiver struct{}

func (n nilReceiver) Scope(...string) StatsReceiver         { return n }
func (n nilReceiver) Precision(time.Duration) StatsReceiver { return n }
func (nilReceiver) Counter(...string) Counter               { return counter{metrics.NilCounter{}} }
func (nilReceiver) Gauge(...string) Gauge                   { return gauge{metrics.NilGauge{}} }
func (nilReceiver) GaugeFloat(...string) GaugeFloat         { return gaugeFloat{metrics.NilGaugeFloat64{}} }
func (nilReceiver) Histogram(...string) Histogram           { return histogram{metrics.NilHistogram{}} }
func (nilReceiver) Latency(...string) Latency               { return nilLatency{} }
func (nilReceiver) Remove(...string)                        {}
func (nilReceiver) Render(bool) []byte                      { return []byte("{}") }

// ReportServerRestart raises statName to 1 and drops it back to 0 after
// spike, so dashboards can mark restarts.
func ReportServerRestart(stat StatsReceiver, statName string, spike time.Duration) {
	stat.Gauge(statName).Update(1)
	time.AfterFunc(spike, func() { stat.Gauge(statName).Update(0) })
}
