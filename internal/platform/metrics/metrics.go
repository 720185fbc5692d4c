package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing, so services can leave it unset in tests.
type Metrics struct {
	RequestsCreated      *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	Conflicts            *prometheus.CounterVec
	SLABreaches          prometheus.Counter
	Expirations          prometheus.Counter
	ExpiryFailures       prometheus.Counter
	NearBreach           prometheus.Gauge
	Reveals              prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	OutboxPublished      prometheus.Counter
	MatchCandidates      prometheus.Histogram
	OperationDuration    *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Pass prometheus.NewRegistry()
// in tests to avoid collisions on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplant_requests_created_total",
			Help: "Total number of transplant requests created, by urgency",
		}, []string{"urgency"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplant_request_transitions_total",
			Help: "Lifecycle transitions applied, by source and target stage",
		}, []string{"from", "to"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplant_conflicts_total",
			Help: "Conditional updates lost to a concurrent writer or illegal transitions, by operation",
		}, []string{"operation"}),
		SLABreaches: f.NewCounter(prometheus.CounterOpts{
			Name: "transplant_sla_breaches_recorded_total",
			Help: "SLA breaches recorded for the first time",
		}),
		Expirations: f.NewCounter(prometheus.CounterOpts{
			Name: "transplant_requests_expired_total",
			Help: "Pending requests moved to expired by the sweeper",
		}),
		ExpiryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "transplant_request_expiry_failures_total",
			Help: "Requests the sweeper failed to expire",
		}),
		NearBreach: f.NewGauge(prometheus.GaugeOpts{
			Name: "transplant_critical_requests_near_breach",
			Help: "Critical pending requests past the early-warning threshold",
		}),
		Reveals: f.NewCounter(prometheus.CounterOpts{
			Name: "transplant_confidential_reveals_total",
			Help: "Requests whose confidential donor data was revealed",
		}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transplant_notification_failures_total",
			Help: "Notifications that could not be delivered, by audience",
		}, []string{"audience"}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "transplant_audit_outbox_published_total",
			Help: "Audit outbox rows produced to Kafka",
		}),
		MatchCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transplant_match_candidates",
			Help:    "Compatible candidates returned per match query",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transplant_operation_duration_seconds",
			Help:    "Duration of lifecycle operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncRequestCreated(urgency string) {
	if m == nil {
		return
	}
	m.RequestsCreated.WithLabelValues(urgency).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncConflict(operation string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncSLABreach() {
	if m == nil {
		return
	}
	m.SLABreaches.Inc()
}

func (m *Metrics) IncExpired() {
	if m == nil {
		return
	}
	m.Expirations.Inc()
}

func (m *Metrics) IncExpiryFailure() {
	if m == nil {
		return
	}
	m.ExpiryFailures.Inc()
}

func (m *Metrics) SetNearBreach(n int) {
	if m == nil {
		return
	}
	m.NearBreach.Set(float64(n))
}

func (m *Metrics) IncReveal() {
	if m == nil {
		return
	}
	m.Reveals.Inc()
}

func (m *Metrics) IncNotificationFailure(audience string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(audience).Inc()
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) ObserveMatchCandidates(n int) {
	if m == nil {
		return
	}
	m.MatchCandidates.Observe(float64(n))
}

// ObserveOperation records the duration of a lifecycle operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
