// Package metrics exposes Prometheus instrumentation for the fill pipeline,
// the notification channels and the exchange feeds. Every method is safe to
// call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the application, registered on
// a private registry so tests can build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Intake
	BatchesReceived  *prometheus.CounterVec
	FillsProcessed   prometheus.Counter
	SignalsEmitted   *prometheus.CounterVec
	FillsSuppressed  *prometheus.CounterVec
	QueueEvictions   *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	DispatchFailures prometheus.Counter
	DispatchLatency  prometheus.Histogram

	// Notification channels
	SenderFailures *prometheus.CounterVec

	// Feeds
	FeedReconnects *prometheus.CounterVec
}

// New creates a Metrics instance. An empty namespace defaults to "hypejk".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hypejk"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BatchesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batches_received_total",
			Help:      "Subscription batches handed to the pipeline, by snapshot flag",
		}, []string{"snapshot"}),
		FillsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "fills_processed_total",
			Help:      "Live fills run through the classifier",
		}),
		SignalsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "signals_emitted_total",
			Help:      "Transition events produced, by kind",
		}, []string{"kind"}),
		FillsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "fills_suppressed_total",
			Help:      "Fills that produced no signal, by reason",
		}, []string{"reason"}),
		QueueEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_evictions_total",
			Help:      "Backpressure events on account queues, by outcome",
		}, []string{"outcome"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Batches waiting in each account queue",
		}, []string{"account"}),
		DispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dispatch_failures_total",
			Help:      "Transition events the notification sink failed to accept",
		}),
		DispatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handing one event to the notification sink",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		SenderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sender_failures_total",
			Help:      "Failed deliveries, by notification channel",
		}, []string{"sender"}),

		FeedReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Feed reconnect attempts, by account",
		}, []string{"account"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBatch counts a batch handed to the pipeline.
func (m *Metrics) ObserveBatch(snapshot bool) {
	if m == nil {
		return
	}
	label := "false"
	if snapshot {
		label = "true"
	}
	m.BatchesReceived.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveFill() {
	if m == nil {
		return
	}
	m.FillsProcessed.Inc()
}

func (m *Metrics) ObserveSignal(kind string) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(kind).Inc()
}

// ObserveSuppressed counts a fill that produced no signal.
func (m *Metrics) ObserveSuppressed(reason string) {
	if m == nil {
		return
	}
	m.FillsSuppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveEviction(outcome string) {
	if m == nil {
		return
	}
	m.QueueEvictions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetQueueDepth(account string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(account).Set(float64(depth))
}

// ObserveDispatch records one sink call and whether it failed.
func (m *Metrics) ObserveDispatch(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.DispatchLatency.Observe(d.Seconds())
	if failed {
		m.DispatchFailures.Inc()
	}
}

func (m *Metrics) ObserveSenderFailure(sender string) {
	if m == nil {
		return
	}
	m.SenderFailures.WithLabelValues(sender).Inc()
}

func (m *Metrics) ObserveReconnect(account string) {
	if m == nil {
		return
	}
	m.FeedReconnects.WithLabelValues(account).Inc()
}
