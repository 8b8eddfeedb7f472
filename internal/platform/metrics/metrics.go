package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	SessionsIssued     prometheus.Counter
	SessionsRevoked    prometheus.Counter
	ConsentTransitions *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ResolutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namegate_resolutions_total",
			Help: "Name resolutions by the tier that produced the disclosed name",
		}, []string{"tier"}),
		SessionsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namegate_sessions_issued_total",
			Help: "Bearer sessions minted by Authorize",
		}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namegate_sessions_revoked_total",
			Help: "Bearer sessions expired by bulk revocation",
		}),
		ConsentTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namegate_consent_transitions_total",
			Help: "Consent state machine transitions by outcome",
		}, []string{"transition"}),
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "namegate_audit_write_failures_total",
			Help: "Disclosure audit writes that failed; resolutions are never blocked by these",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "namegate_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(elapsed.Seconds())
}

// IncResolution counts one successful resolution for the winning tier.
func (m *Metrics) IncResolution(tier string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(tier).Inc()
}

// IncConsentTransition counts one consent transition (requested, granted,
// revoked, duplicate_request, noop).
func (m *Metrics) IncConsentTransition(transition string) {
	if m == nil {
		return
	}
	m.ConsentTransitions.WithLabelValues(transition).Inc()
}

// IncSessionIssued counts one minted session.
func (m *Metrics) IncSessionIssued() {
	if m == nil {
		return
	}
	m.SessionsIssued.Inc()
}

// AddSessionsRevoked counts sessions killed by one revocation call.
func (m *Metrics) AddSessionsRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsRevoked.Add(float64(n))
}

// IncAuditWriteFailure counts one dropped or failed audit write.
func (m *Metrics) IncAuditWriteFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}
