package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FlowStats is a point-in-time view of one flow's counters.
type FlowStats struct {
	Flow      string
	Received  int64
	Processed int64
	Failed    int64
	InFlight  int64
	// Rejected counts admission refusals by back-pressure reason code.
	Rejected map[string]int64
}

// StatsSource supplies flow statistics to a StatsCollector.
type StatsSource interface {
	FlowStats() []FlowStats
}

// StatsSourceFunc adapts a function to StatsSource.
type StatsSourceFunc func() []FlowStats

// FlowStats implements StatsSource.
func (f StatsSourceFunc) FlowStats() []FlowStats {
	return f()
}

// StatsCollector exports flow statistics as Prometheus metrics. Values are
// read from the source on every scrape.
type StatsCollector struct {
	source StatsSource

	received  *prometheus.Desc
	processed *prometheus.Desc
	failed    *prometheus.Desc
	rejected  *prometheus.Desc
	inFlight  *prometheus.Desc
}

// Compile-time interface check.
var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector creates a collector reading from source.
func NewStatsCollector(source StatsSource) *StatsCollector {
	flow := []string{"flow"}
	return &StatsCollector{
		source: source,
		received: prometheus.NewDesc("flowline_events_received_total",
			"The total number of events that entered a flow", flow, nil),
		processed: prometheus.NewDesc("flowline_events_processed_total",
			"The total number of events that completed successfully", flow, nil),
		failed: prometheus.NewDesc("flowline_events_failed_total",
			"The total number of events that completed with an error", flow, nil),
		rejected: prometheus.NewDesc("flowline_events_rejected_total",
			"The total number of events refused by back-pressure", []string{"flow", "reason"}, nil),
		inFlight: prometheus.NewDesc("flowline_events_in_flight",
			"Events admitted and not yet completed", flow, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.processed
	ch <- c.failed
	ch <- c.rejected
	ch <- c.inFlight
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.FlowStats() {
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(s.Received), s.Flow)
		ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(s.Processed), s.Flow)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(s.Failed), s.Flow)
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight), s.Flow)
		for reason, n := range s.Rejected {
			ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(n), s.Flow, reason)
		}
	}
}
