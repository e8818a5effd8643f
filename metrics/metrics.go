// Package metrics exposes Prometheus collectors for the notifier.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modnotifier"

// Cycle results.
const (
	CycleOK        = "ok"
	CycleFailed    = "failed"
	CycleOverrun   = "overrun"
	CycleAbandoned = "abandoned"
)

// Message outcomes.
const (
	MessageSent    = "sent"
	MessageFailed  = "failed"
	MessageSkipped = "skipped"
)

type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	events        *prometheus.CounterVec
	messages      *prometheus.CounterVec
	sendDuration  prometheus.Histogram
	retries       prometheus.Counter
	catalogSize   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Update cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed update cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events produced by the diff, by kind.",
		}, []string{"kind"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Notification messages by outcome.",
		}, []string{"outcome"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Latency of single message sends, including failed attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_retries_total",
			Help:      "Message send attempts that were retried.",
		}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_mods",
			Help:      "Number of mods in the last fetched catalog.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that committed.",
		}),
	}
	m.Registry.MustRegister(
		m.cycles, m.cycleDuration, m.events, m.messages,
		m.sendDuration, m.retries, m.catalogSize, m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) CycleFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	if result == CycleOK {
		m.cycleDuration.Observe(d.Seconds())
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) Events(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.events.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Messages(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.messages.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) SendObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.Observe(d.Seconds())
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) CatalogSize(n int) {
	if m == nil {
		return
	}
	m.catalogSize.Set(float64(n))
}
