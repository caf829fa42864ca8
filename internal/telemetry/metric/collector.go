package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a snapshot of the live server state.
type Stats struct {
	OpenConnections int
	PendingRequests int
}

// Collector samples a stats source on every scrape.
type Collector struct {
	stats func() Stats

	connections *prometheus.Desc
	requests    *prometheus.Desc
}

// NewCollector creates a collector reading from stats.
func NewCollector(stats func() Stats) *Collector {
	return &Collector{
		stats: stats,
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "server", "connections_open"),
			"Number of currently open connections",
			nil, nil,
		),
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "server", "requests_pending"),
			"Number of requests without a finished response",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.requests
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.GaugeValue, float64(s.PendingRequests))
}
