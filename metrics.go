package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this service exports. All
// gauges rather than counters where the underlying value is itself a
// point-in-time measurement (queue depth, client count); true counters
// for monotonically increasing events (drops, sweeps completed).
type Metrics struct {
	connectedClients  prometheus.Gauge
	liveBridgeDepth   prometheus.Gauge
	liveBridgeDropped prometheus.Counter
	sweepsCompleted   prometheus.Counter
	sweepsAborted     prometheus.Counter
	sweepDurationSec  prometheus.Histogram
	detectorEvents    *prometheus.CounterVec
	recordingBytes    prometheus.Gauge
	slowClientDrops   prometheus.Counter
}

// NewMetrics registers every collector against the default registry. One
// Metrics instance lives for the process lifetime.
func NewMetrics() *Metrics {
	return &Metrics{
		connectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spectrumd_connected_clients",
			Help: "Number of WebSocket clients currently connected.",
		}),
		liveBridgeDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spectrumd_live_bridge_depth",
			Help: "Current occupancy of the live Sample Bridge ring buffer.",
		}),
		liveBridgeDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spectrumd_live_bridge_dropped_total",
			Help: "Sample blocks dropped by the live Sample Bridge under backpressure.",
		}),
		sweepsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spectrumd_sweeps_completed_total",
			Help: "Sweeps that reached their final step.",
		}),
		sweepsAborted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spectrumd_sweeps_aborted_total",
			Help: "Sweeps that ended early via stop, error, or timeout.",
		}),
		sweepDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "spectrumd_sweep_duration_seconds",
			Help:    "Wall-clock duration of a completed sweep.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		detectorEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "spectrumd_detector_events_total",
			Help: "Signal Detector lifecycle events, by kind.",
		}, []string{"kind"}),
		recordingBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "spectrumd_recording_bytes",
			Help: "Cumulative bytes used by recordings under the configured directory.",
		}),
		slowClientDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "spectrumd_slow_client_disconnects_total",
			Help: "Clients disconnected for falling behind their outbound queue.",
		}),
	}
}

func (m *Metrics) ObserveDetectorEvent(kind SignalEventKind) {
	m.detectorEvents.WithLabelValues(kind.String()).Inc()
}

// Handler returns the Prometheus /metrics handler; the caller mounts it on
// its own HTTP server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
