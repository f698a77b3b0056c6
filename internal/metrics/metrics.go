// Package metrics exposes poller and buffer activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements poller.Metrics and tracks source sizes.
type Collector struct {
	registry *prometheus.Registry

	polls       *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec
	skipped     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	bufferLen   *prometheus.GaugeVec
	trailLen    prometheus.Gauge
}

// New creates a collector registered on its own registry
func New() *Collector {
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_polls_total",
		Help: "Completed poll requests by result.",
	}, []string{"poller", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_poll_duration_seconds",
		Help:    "Fetch and parse latency of one poll.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"poller"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_poll_skipped_total",
		Help: "Ticks skipped because a request was still in flight.",
	}, []string{"poller"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_samples_rejected_total",
		Help: "Samples rejected by buffers or the trail as invalid.",
	}, []string{"poller"})
	bufferLen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "telemetry_buffer_length",
		Help: "Current number of samples held per stream.",
	}, []string{"stream"})
	trailLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_trail_points",
		Help: "Current number of points in the movement trail.",
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(polls, latency, skipped, rejected, bufferLen, trailLen)

	return &Collector{
		registry:    reg,
		polls:       polls,
		pollLatency: latency,
		skipped:     skipped,
		rejected:    rejected,
		bufferLen:   bufferLen,
		trailLen:    trailLen,
	}
}

// Registry is what /metrics serves
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ObservePoll(poller, result string, d time.Duration) {
	c.polls.WithLabelValues(poller, result).Inc()
	c.pollLatency.WithLabelValues(poller).Observe(d.Seconds())
}

func (c *Collector) IncSkipped(poller string) {
	c.skipped.WithLabelValues(poller).Inc()
}

func (c *Collector) IncRejected(poller string) {
	c.rejected.WithLabelValues(poller).Inc()
}

// SetBufferLen records the size of a stream buffer
func (c *Collector) SetBufferLen(stream string, n int) {
	c.bufferLen.WithLabelValues(stream).Set(float64(n))
}

// SetTrailLen records the trail size
func (c *Collector) SetTrailLen(n int) {
	c.trailLen.Set(float64(n))
}
