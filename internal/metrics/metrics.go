package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"careerpath-api/internal/auth"
)

// Metrics holds the Prometheus collectors exported by the API.
type Metrics struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	AuthDecisions *prometheus.CounterVec
	MailEnqueued  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpath_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "careerpath_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpath_auth_decisions_total",
				Help: "Authorization outcomes by middleware mode and reason",
			},
			[]string{"mode", "reason"},
		),
		MailEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpath_mail_enqueued_total",
				Help: "Outbound emails handed to the dispatcher",
			},
			[]string{"kind", "success"},
		),
	}
}

// NewRegistry creates a private registry with the API metrics and the Go
// runtime collectors.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg)
}

// HandlerFor serves reg in the Prometheus exposition format.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordAuthDecision(mode string, reason auth.Reason) {
	m.AuthDecisions.WithLabelValues(mode, string(reason)).Inc()
}

func (m *Metrics) RecordMail(kind string, err error) {
	m.MailEnqueued.WithLabelValues(kind, strconv.FormatBool(err == nil)).Inc()
}

// Middleware observes every request. Unmatched routes share one label so
// scanners cannot blow up cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

var _ auth.DecisionRecorder = (*Metrics)(nil)
