// Package metrics holds the Prometheus collectors for ingestion, fan-out and
// ticket automation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ergonaut"

type Metrics struct {
	registry *prometheus.Registry

	recordsIngested  prometheus.Counter
	recordsDropped   prometheus.Counter
	payloadsRejected *prometheus.CounterVec
	busDelivered     prometheus.Counter
	busEvicted       prometheus.Counter
	dedupHits        prometheus.Counter
	filterDecisions  *prometheus.CounterVec
	ticketsCreated   prometheus.Counter
	ticketFailures   prometheus.Counter
	queueErrors      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recordsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Log records converted into events and published.",
		}),
		recordsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_dropped_total",
			Help:      "Log records dropped during conversion.",
		}),
		payloadsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_payloads_rejected_total",
			Help:      "Payloads rejected before conversion, by reason.",
		}, []string{"reason"}),
		busDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_deliveries_total",
			Help:      "Events enqueued onto subscriber queues.",
		}),
		busEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_evictions_total",
			Help:      "Subscribers evicted for repeated backpressure.",
		}),
		dedupHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentinel_duplicates_total",
			Help:      "Events suppressed by the deduplication cache.",
		}),
		filterDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentinel_filter_decisions_total",
			Help:      "Filter outcomes by decision.",
		}, []string{"decision"}),
		ticketsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentinel_tickets_created_total",
			Help:      "Work items created by Sentinel.",
		}),
		ticketFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentinel_ticket_failures_total",
			Help:      "Work item creations that failed.",
		}),
		queueErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_errors_total",
			Help:      "Broker errors by transport and operation.",
		}, []string{"transport", "op"}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) RecordsIngested(n int) {
	if m == nil {
		return
	}
	m.recordsIngested.Add(float64(n))
}

func (m *Metrics) RecordsDropped(n int) {
	if m == nil {
		return
	}
	m.recordsDropped.Add(float64(n))
}

func (m *Metrics) PayloadRejected(reason string) {
	if m == nil {
		return
	}
	m.payloadsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) BusDelivered() {
	if m == nil {
		return
	}
	m.busDelivered.Inc()
}

func (m *Metrics) BusEvicted() {
	if m == nil {
		return
	}
	m.busEvicted.Inc()
}

func (m *Metrics) DuplicateSuppressed() {
	if m == nil {
		return
	}
	m.dedupHits.Inc()
}

func (m *Metrics) FilterDecision(accepted bool) {
	if m == nil {
		return
	}
	decision := "rejected"
	if accepted {
		decision = "accepted"
	}
	m.filterDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) TicketCreated() {
	if m == nil {
		return
	}
	m.ticketsCreated.Inc()
}

func (m *Metrics) TicketFailed() {
	if m == nil {
		return
	}
	m.ticketFailures.Inc()
}

func (m *Metrics) QueueError(transport, op string) {
	if m == nil {
		return
	}
	m.queueErrors.WithLabelValues(transport, op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
