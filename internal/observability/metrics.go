package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPErrors         *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram
	Notifications      *prometheus.CounterVec
	JobRuns            *prometheus.CounterVec
	JobItems           *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestpass_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestpass_http_errors_total",
			Help: "HTTP error responses by error code",
		}, []string{"route", "code"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestpass_submissions_total",
			Help: "Portal submissions by outcome and trigger",
		}, []string{"outcome", "trigger"}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "guestpass_submission_duration_seconds",
			Help:    "Duration of portal submissions",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestpass_notifications_total",
			Help: "Owner notifications by kind and outcome",
		}, []string{"kind", "outcome"}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestpass_job_runs_total",
			Help: "Scheduler job runs by job and outcome",
		}, []string{"job", "outcome"}),
		JobItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestpass_job_items_total",
			Help: "Registrations processed by scheduler jobs",
		}, []string{"job", "outcome"}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register adds an externally owned collector, such as the database pool stats.
func (m *Metrics) Register(c prometheus.Collector) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(c)
}

// Gatherer returns the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, code string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(route, code).Inc()
}

// ObserveSubmission records one executor attempt. Call with the attempt's start time.
func (m *Metrics) ObserveSubmission(trigger string, ok bool, start time.Time) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome(ok), trigger).Inc()
	m.SubmissionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordNotification(kind string, ok bool) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, outcome(ok)).Inc()
}

func (m *Metrics) RecordJobRun(job string, ok bool) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, outcome(ok)).Inc()
}

func (m *Metrics) RecordJobItem(job, result string) {
	if m == nil {
		return
	}
	m.JobItems.WithLabelValues(job, result).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
