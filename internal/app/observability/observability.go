package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const unmatchedRoute = "unmatched"

// Collector owns the process metrics registry and writes access logs.
type Collector struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	answers   *prometheus.CounterVec
	expiries  prometheus.Counter
	examLoads *prometheus.CounterVec

	sessionCookie string
	startedAt     time.Time
}

type CollectorConfig struct {
	Logger *zap.Logger
	// SessionCookie is read for the session_id field of access logs.
	SessionCookie string
}

func NewCollector(cfg CollectorConfig) *Collector {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger:        logger,
		registry:      prometheus.NewRegistry(),
		sessionCookie: cfg.SessionCookie,
		startedAt:     time.Now(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examprep_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "examprep_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"method", "route"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examprep_answers_total",
			Help: "Checked answers by result.",
		}, []string{"result"}),
		expiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "examprep_session_expiries_total",
			Help: "Sessions wiped after idling past the timeout.",
		}),
		examLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "examprep_exam_loads_total",
			Help: "Question table loads by outcome.",
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(
		c.requests,
		c.latency,
		c.answers,
		c.expiries,
		c.examLoads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "examprep_uptime_seconds",
			Help: "Seconds since the process started.",
		}, func() float64 { return time.Since(c.startedAt).Seconds() }),
	)
	return c
}

// RegisterSessionGauge exposes the live session count reported by fn.
func (c *Collector) RegisterSessionGauge(fn func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "examprep_sessions_active",
		Help: "Sessions currently held in memory.",
	}, func() float64 { return float64(fn()) }))
}

func (c *Collector) ObserveAnswer(result string) {
	c.answers.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveExpiry() {
	c.expiries.Inc()
}

func (c *Collector) ObserveExamLoad(outcome string) {
	c.examLoads.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routePattern(r)
		status := strconv.Itoa(rec.status)

		c.requests.WithLabelValues(r.Method, route, status).Inc()
		c.latency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		c.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("session_id", c.sessionID(r)),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", normalizedPath(r.URL.Path)),
			zap.Int("status", rec.status),
			zap.Float64("latency_ms", float64(elapsed.Microseconds())/1000.0),
			zap.String("remote_ip", strings.TrimSpace(r.RemoteAddr)),
		)
	})
}

func (c *Collector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) sessionID(r *http.Request) string {
	if c.sessionCookie == "" {
		return ""
	}
	ck, err := r.Cookie(c.sessionCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}

// routePattern is the matched chi pattern, so label cardinality stays
// bounded by the route table.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{n}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
