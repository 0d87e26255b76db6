// Package metrics exposes Prometheus collectors for each pipeline stage.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gostt"

// Metrics holds the registered collectors.
type Metrics struct {
	utterances      *prometheus.CounterVec
	framesDiscarded *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	deliveries      *prometheus.CounterVec
	submitAttempts  prometheus.Counter
	submitFailures  *prometheus.CounterVec
	submitDuration  prometheus.Histogram
	salvageWrites   *prometheus.CounterVec
	endpointHealthy prometheus.Gauge
	recording       prometheus.Gauge
	bufferDraining  prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances emitted by the segmenter, by flush reason",
		}, []string{"reason"}),
		framesDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_discarded_total",
			Help:      "Captured frames dropped before segmentation",
		}, []string{"cause"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Utterances waiting for delivery",
		}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Finished utterances, by outcome",
		}, []string{"outcome"}),
		submitAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_attempts_total",
			Help:      "Transcription requests sent to the endpoint",
		}),
		submitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_failures_total",
			Help:      "Failed transcription requests, by error kind",
		}, []string{"kind"}),
		submitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Transcription request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
		salvageWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salvage_writes_total",
			Help:      "Utterances written to disk, by kind",
		}, []string{"kind"}),
		endpointHealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_healthy",
			Help:      "1 while the transcription endpoint is considered healthy",
		}),
		recording: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording",
			Help:      "1 while captured audio is being segmented",
		}),
		bufferDraining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_draining",
			Help:      "1 while recording is off and queued audio is still being delivered",
		}),
	}
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

// Utterance counts an emitted utterance.
func (m *Metrics) Utterance(reason string) {
	if m == nil {
		return
	}
	m.utterances.WithLabelValues(reason).Inc()
}

// FramesDiscarded counts n dropped frames.
func (m *Metrics) FramesDiscarded(cause string, n int) {
	if m == nil {
		return
	}
	m.framesDiscarded.WithLabelValues(cause).Add(float64(n))
}

// QueueDepth records the current backlog.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Delivery counts a finished utterance.
func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// SubmitDone records one request. kind is empty on success.
func (m *Metrics) SubmitDone(d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.submitAttempts.Inc()
	m.submitDuration.Observe(d.Seconds())
	if kind != "" {
		m.submitFailures.WithLabelValues(kind).Inc()
	}
}

// SalvageWrite counts a persisted chunk.
func (m *Metrics) SalvageWrite(kind string) {
	if m == nil {
		return
	}
	m.salvageWrites.WithLabelValues(kind).Inc()
}

// EndpointHealthy records endpoint health.
func (m *Metrics) EndpointHealthy(v bool) {
	if m == nil {
		return
	}
	boolGauge(m.endpointHealthy, v)
}

// Recording records the recording flag.
func (m *Metrics) Recording(v bool) {
	if m == nil {
		return
	}
	boolGauge(m.recording, v)
}

// BufferDraining records the draining flag.
func (m *Metrics) BufferDraining(v bool) {
	if m == nil {
		return
	}
	boolGauge(m.bufferDraining, v)
}
