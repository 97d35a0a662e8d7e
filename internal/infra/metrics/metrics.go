// Package metrics exposes ledger operation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	flagged    *prometheus.CounterVec
	httpTotal  *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconledger",
			Name:      "operations_total",
			Help:      "Ledger operations by ledger, operation and result code.",
		}, []string{"ledger", "op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reconledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"ledger", "op"}),
		flagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconledger",
			Name:      "variances_flagged_total",
			Help:      "Variances classified as flagged.",
		}, []string{"ledger"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reconledger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	c.registry.MustRegister(
		c.operations,
		c.duration,
		c.flagged,
		c.httpTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveOperation(ledger, op, result string, elapsed time.Duration) {
	c.operations.WithLabelValues(ledger, op, result).Inc()
	c.duration.WithLabelValues(ledger, op).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveFlagged(ledger string) {
	c.flagged.WithLabelValues(ledger).Inc()
}

func (c *Collector) ObserveRequest(method, route, status string) {
	c.httpTotal.WithLabelValues(method, route, status).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
