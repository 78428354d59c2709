// Package stats records the server's frame, sync, equalizer and transport
// instruments on top of go-metrics.
//
// A StatsReceiver is handed down the component tree and scoped at each
// level, so a load equalizer under compound "c0" records to
// "equalizer/c0/equalizerSplitGauge". Receivers built with a latch
// interval snapshot their registry on every tick and render that snapshot,
// which keeps /admin/metrics.json stable between scrapes. Histograms are
// cleared after each snapshot.
//
// The finagle registry flattens histograms into avg/count/min/max/sum and
// percentile keys, the format the admin endpoint serves.
package stats
