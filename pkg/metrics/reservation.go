package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeBusy     = "busy"
	OutcomeError    = "error"
)

// ReservationMetrics tracks request lifecycle transitions and ledger health.
type ReservationMetrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	corruption  *prometheus.CounterVec
	notifyFail  prometheus.Counter
}

// NewReservationMetrics registers the reservation collectors. A nil registerer yields a no-op recorder.
func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolcrib_request_transitions_total",
		Help: "Request lifecycle operations by event and outcome.",
	}, []string{"event", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "toolcrib_request_transition_duration_seconds",
		Help:    "Duration of request lifecycle operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})
	corruption := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolcrib_ledger_corruption_total",
		Help: "Ledger invariant violations that quarantined a tool.",
	}, []string{"source"})
	notifyFail := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toolcrib_notification_delivery_failures_total",
		Help: "Post-commit notification inserts that failed.",
	})
	reg.MustRegister(transitions, duration, corruption, notifyFail)
	return &ReservationMetrics{
		transitions: transitions,
		duration:    duration,
		corruption:  corruption,
		notifyFail:  notifyFail,
	}
}

// ObserveTransition records one lifecycle operation.
func (m *ReservationMetrics) ObserveTransition(event, outcome string, took time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(event)).Observe(took.Seconds())
}

// IncLedgerCorruption counts a quarantine triggered by the given source (request flow or reconcile sweep).
func (m *ReservationMetrics) IncLedgerCorruption(source string) {
	if m == nil || m.corruption == nil {
		return
	}
	m.corruption.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *ReservationMetrics) IncNotificationFailure() {
	if m == nil || m.notifyFail == nil {
		return
	}
	m.notifyFail.Inc()
}
