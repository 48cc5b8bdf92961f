package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HubStats is the view of the hub the collector scrapes.
type HubStats interface {
	ClientCount() int
	PublishedTotal() uint64
	DroppedTotal() uint64
}

// HubCollector exposes Prometheus metrics for the notification gateway.
type HubCollector struct {
	hub HubStats

	connectedClients *prometheus.Desc
	framesPublished  *prometheus.Desc
	framesDropped    *prometheus.Desc
}

// NewHubCollector creates a collector reading live counters from the hub.
func NewHubCollector(hub HubStats) *HubCollector {
	return &HubCollector{
		hub: hub,
		connectedClients: prometheus.NewDesc(
			"pulse_connected_clients",
			"Number of currently connected dashboard sessions",
			nil, nil,
		),
		framesPublished: prometheus.NewDesc(
			"pulse_frames_published_total",
			"Total number of frames delivered to client send buffers",
			nil, nil,
		),
		framesDropped: prometheus.NewDesc(
			"pulse_frames_dropped_total",
			"Total number of frames dropped on full buffers",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectedClients
	ch <- c.framesPublished
	ch <- c.framesDropped
}

// Collect implements prometheus.Collector.
func (c *HubCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.connectedClients,
		prometheus.GaugeValue,
		float64(c.hub.ClientCount()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.framesPublished,
		prometheus.CounterValue,
		float64(c.hub.PublishedTotal()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.framesDropped,
		prometheus.CounterValue,
		float64(c.hub.DroppedTotal()),
	)
}
