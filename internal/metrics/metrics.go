package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the station's steady-state counters. A nil *Metrics is
// valid and turns every method into a no-op, so wiring stays optional.
type Metrics struct {
	registry *prometheus.Registry

	samples         prometheus.Counter
	sampleFailures  prometheus.Counter
	publishes       prometheus.Counter
	publishFailures prometheus.Counter
	reconnects      prometheus.Counter
	bufferFill      prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		samples: factory.NewCounter(prometheus.CounterOpts{
			Name: "station_samples_total",
			Help: "Successful sensor samples.",
		}),
		sampleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "station_sample_failures_total",
			Help: "Sensor reads that produced no data.",
		}),
		publishes: factory.NewCounter(prometheus.CounterOpts{
			Name: "station_publishes_total",
			Help: "Successful broker publishes.",
		}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "station_publish_failures_total",
			Help: "Broker publishes that failed.",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "station_reconnects_total",
			Help: "Broker reconnections triggered by publish failures.",
		}),
		bufferFill: factory.NewGauge(prometheus.GaugeOpts{
			Name: "station_batch_buffer_fill",
			Help: "Samples currently held in the batch buffer.",
		}),
	}
}

func (m *Metrics) IncSample() {
	if m != nil {
		m.samples.Inc()
	}
}

func (m *Metrics) IncSampleFailure() {
	if m != nil {
		m.sampleFailures.Inc()
	}
}

func (m *Metrics) IncPublish() {
	if m != nil {
		m.publishes.Inc()
	}
}

func (m *Metrics) IncPublishFailure() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

func (m *Metrics) IncReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) SetBufferFill(n int) {
	if m != nil {
		m.bufferFill.Set(float64(n))
	}
}
