package stats

import (
	"encoding/json"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

var (
	percentiles      = []float64{0.5, 0.9, 0.95, 0.99, 0.999}
	percentileLabels = []string{"p50", "p90", "p95", "p99", "p999"}
)

// finagleRegistry renders a flat name to number map. Histograms and
// latencies expand into one key per summary statistic.
type finagleRegistry struct {
	metrics.Registry
}

// NewFinagleStatsRegistry is the registry served by the admin endpoint.
func NewFinagleStatsRegistry() StatsRegistry {
	return &finagleRegistry{metrics.NewRegistry()}
}

func (r *finagleRegistry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.flatten())
}

func (r *finagleRegistry) MarshalJSONPretty() ([]byte, error) {
	return json.MarshalIndent(r.flatten(), "", "  ")
}

func (r *finagleRegistry) flatten() map[string]interface{} {
	data := make(map[string]interface{})
	r.Each(func(name string, i interface{}) {
		switch stat := i.(type) {
		case Counter:
			data[name] = stat.Count()
		case Gauge:
			data[name] = stat.Value()
		case GaugeFloat:
			data[name] = stat.Value()
		case Histogram:
			summarize(data, name, stat.Capture(), time.Nanosecond)
		case Latency:
			l := stat.Capture()
			summarize(data, name, l.(HistogramView), l.GetPrecision())
		default:
			log.WithFields(log.Fields{"stat": name}).Info("Unrecognized instrument, not rendered")
		}
	})
	return data
}

func summarize(data map[string]interface{}, name string, h HistogramView, precision time.Duration) {
	unit := int64(precision)
	data[name+".count"] = h.Count()
	data[name+".avg"] = h.Mean() / float64(unit)
	data[name+".min"] = h.Min() / unit
	data[name+".max"] = h.Max() / unit
	data[name+".sum"] = h.Sum() / unit
	for i, p := range h.Percentiles(percentiles) {
		data[name+"."+percentileLabels[i]] = p / float64(unit)
	}
}
