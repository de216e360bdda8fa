package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderflow"

type OutboxMetrics struct {
	Published     *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	Pruned        prometheus.Counter
	CycleDuration prometheus.Histogram
}

// NewOutboxMetrics registers the publisher collectors with reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox records handed to the broker and marked processed.",
	}, []string{"event_type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_failures_total",
		Help:      "Outbox records that failed to publish and stay pending.",
	}, []string{"event_type"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "pruned_total",
		Help:      "Processed outbox records deleted by retention.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one outbox publishing cycle.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	reg.MustRegister(published, failures, pruned, duration)

	return &OutboxMetrics{
		Published:     published,
		Failures:      failures,
		Pruned:        pruned,
		CycleDuration: duration,
	}
}

type ReaperMetrics struct {
	Cancelled prometheus.Counter
	Errors    prometheus.Counter
}

func NewReaperMetrics(reg prometheus.Registerer) *ReaperMetrics {
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reaper",
		Name:      "cancelled_total",
		Help:      "Stale PENDING orders cancelled.",
	})
	errs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reaper",
		Name:      "errors_total",
		Help:      "Orders the reaper failed to cancel.",
	})

	reg.MustRegister(cancelled, errs)

	return &ReaperMetrics{Cancelled: cancelled, Errors: errs}
}

type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	reg.MustRegister(requests, latency)

	return &HTTPMetrics{Requests: requests, Latency: latency}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
