// Package metrics collects and exposes Prometheus metrics for the
// fingerprint management API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the handlers and the enrollment runner report into.
type Recorder interface {
	RecordEnrollStarted()
	RecordEnrollFinished(success bool)
	RecordScan(code string)
	RecordDeletion()
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	enrollStarted  prometheus.Counter
	enrollFinished *prometheus.CounterVec
	scans          *prometheus.CounterVec
	deletions      prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		enrollStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fprintman_enrollments_started_total",
			Help: "Number of enrollment sessions started",
		}),
		enrollFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fprintman_enrollments_finished_total",
			Help: "Number of enrollment sessions finished, by outcome",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fprintman_scans_total",
			Help: "Number of scan events reported by the daemon, by status code",
		}, []string{"code"}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fprintman_deletions_total",
			Help: "Number of fingerprint deletion operations",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fprintman_http_requests_total",
			Help: "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fprintman_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP handlers",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.enrollStarted,
		c.enrollFinished,
		c.scans,
		c.deletions,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) RecordEnrollStarted() {
	c.enrollStarted.Inc()
}

func (c *Collector) RecordEnrollFinished(success bool) {
	outcome := "failed"
	if success {
		outcome = "completed"
	}
	c.enrollFinished.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordScan(code string) {
	c.scans.WithLabelValues(code).Inc()
}

func (c *Collector) RecordDeletion() {
	c.deletions.Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards all metrics; used in tests.
type Noop struct{}

func (Noop) RecordEnrollStarted()                                 {}
func (Noop) RecordEnrollFinished(bool)                            {}
func (Noop) RecordScan(string)                                    {}
func (Noop) RecordDeletion()                                      {}
func (Noop) RecordHTTPRequest(string, string, int, time.Duration) {}
