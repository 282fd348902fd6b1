package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modelstation"

// PrometheusRecorder exports Recorder events as Prometheus collectors.
type PrometheusRecorder struct {
	logins         *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	sessionsIssued prometheus.Counter
	sessionsExpire prometheus.Counter
	logouts        prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	sessionsPurged prometheus.Counter
	modelWrites    *prometheus.CounterVec
	upstreamCalls  *prometheus.CounterVec
	upstreamTime   *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewPrometheus registers collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		sessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_issued_total",
			Help:      "Sessions issued on login or registration.",
		}),
		sessionsExpire: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_expired_total",
			Help:      "Sessions rejected and deleted because they had expired.",
		}),
		logouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Sessions ended by logout.",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_cache_lookups_total",
			Help:      "Session cache lookups by result.",
		}, []string{"result"}),
		sessionsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "sessions_purged_total",
			Help:      "Expired sessions removed by the background sweep.",
		}),
		modelWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "writes_total",
			Help:      "Model mutations by operation.",
		}, []string{"operation"}),
		upstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Proxied upstream calls by operation and status code (0 for transport failure).",
		}, []string{"operation", "status"}),
		upstreamTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Proxied upstream call duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Served HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusRecorder) IncLogin(outcome string)        { p.logins.WithLabelValues(outcome).Inc() }
func (p *PrometheusRecorder) IncRegistration(outcome string) { p.registrations.WithLabelValues(outcome).Inc() }
func (p *PrometheusRecorder) IncSessionIssued()              { p.sessionsIssued.Inc() }
func (p *PrometheusRecorder) IncSessionExpired()             { p.sessionsExpire.Inc() }
func (p *PrometheusRecorder) IncLogout()                     { p.logouts.Inc() }
func (p *PrometheusRecorder) IncSessionCacheHit()            { p.cacheLookups.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncSessionCacheMiss()           { p.cacheLookups.WithLabelValues("miss").Inc() }
func (p *PrometheusRecorder) AddSessionsPurged(n int64)      { p.sessionsPurged.Add(float64(n)) }
func (p *PrometheusRecorder) IncModelCreated()               { p.modelWrites.WithLabelValues("create").Inc() }
func (p *PrometheusRecorder) IncModelUpdated()               { p.modelWrites.WithLabelValues("update").Inc() }
func (p *PrometheusRecorder) IncModelDeleted()               { p.modelWrites.WithLabelValues("delete").Inc() }

func (p *PrometheusRecorder) ObserveUpstreamCall(operation string, status int, d time.Duration) {
	p.upstreamCalls.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	p.upstreamTime.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
