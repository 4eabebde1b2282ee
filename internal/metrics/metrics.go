// Package metrics exposes Prometheus collectors for the HTTP server and the
// report pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimited      prometheus.Counter
	reportCache      *prometheus.CounterVec
	emailsTotal      *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	expenseWrites    *prometheus.CounterVec
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spesa_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spesa_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		rateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Name: "spesa_http_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
		reportCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spesa_report_cache_total",
				Help: "Monthly report lookups by cache result",
			},
			[]string{"result"},
		),
		emailsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spesa_report_emails_total",
				Help: "Report emails by outcome",
			},
			[]string{"status"},
		),
		uploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spesa_drive_uploads_total",
				Help: "Drive uploads by outcome",
			},
			[]string{"status"},
		),
		tokenRefreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spesa_drive_token_refreshes_total",
				Help: "OAuth token refresh attempts by outcome",
			},
			[]string{"status"},
		),
		expenseWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spesa_expense_writes_total",
				Help: "Expense writes by operation",
			},
			[]string{"operation"},
		),
	}
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// ReportCache records a report cache hit or miss.
func (m *Metrics) ReportCache(hit bool) {
	m.reportCache.WithLabelValues(outcome(hit, "hit", "miss")).Inc()
}

func (m *Metrics) Email(err error) {
	m.emailsTotal.WithLabelValues(outcome(err == nil, "sent", "failed")).Inc()
}

func (m *Metrics) Upload(err error) {
	m.uploadsTotal.WithLabelValues(outcome(err == nil, "uploaded", "failed")).Inc()
}

func (m *Metrics) TokenRefresh(err error) {
	m.tokenRefreshes.WithLabelValues(outcome(err == nil, "success", "failed")).Inc()
}

func (m *Metrics) ExpenseWrite(operation string) {
	m.expenseWrites.WithLabelValues(operation).Inc()
}

func outcome(ok bool, good, bad string) string {
	if ok {
		return good
	}
	return bad
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests and observes their latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveRequest(r.Method, rec.status, time.Since(start))
	})
}
