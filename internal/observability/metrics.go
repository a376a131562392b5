package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bot's Prometheus series. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	outcomes         *prometheus.CounterVec
	degraded         prometheus.Counter
	classifierErrors *prometheus.CounterVec
	ticketCreates    *prometheus.CounterVec
	sessionsExpired  prometheus.Counter
	statusRefreshes  *prometheus.CounterVec
	statusChanges    prometheus.Counter
	portLatency      *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "triage",
			Name:      "outcomes_total",
			Help:      "Triage outcomes returned to reporters",
		}, []string{"kind"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "triage",
			Name:      "degraded_classifications_total",
			Help:      "Reports that fell back to the fail-safe classification",
		}),
		classifierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "classifier",
			Name:      "errors_total",
			Help:      "Classifier call failures by kind",
		}, []string{"kind"}),
		ticketCreates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "tickets",
			Name:      "confirmations_total",
			Help:      "Confirmed escalations by result",
		}, []string{"result"}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "triage",
			Name:      "sessions_expired_total",
			Help:      "Escalation offers that lapsed without confirmation",
		}),
		statusRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "status",
			Name:      "refreshes_total",
			Help:      "Remote status refresh attempts by result",
		}, []string{"result"}),
		statusChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "supportbot",
			Subsystem: "status",
			Name:      "changes_total",
			Help:      "Observed remote status changes",
		}),
		portLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supportbot",
			Subsystem: "port",
			Name:      "call_seconds",
			Help:      "Latency of classifier and tracker calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"port", "op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.outcomes,
		m.degraded,
		m.classifierErrors,
		m.ticketCreates,
		m.sessionsExpired,
		m.statusRefreshes,
		m.statusChanges,
		m.portLatency,
	)
	return m
}

func (m *Metrics) ObserveOutcome(kind string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) DegradedClassification() {
	if m == nil {
		return
	}
	m.degraded.Inc()
}

func (m *Metrics) ClassifierError(kind string) {
	if m == nil {
		return
	}
	m.classifierErrors.WithLabelValues(kind).Inc()
}

// TicketConfirmation records created, reused or failed.
func (m *Metrics) TicketConfirmation(result string) {
	if m == nil {
		return
	}
	m.ticketCreates.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Inc()
}

// StatusRefresh records ok, failed or throttled.
func (m *Metrics) StatusRefresh(result string) {
	if m == nil {
		return
	}
	m.statusRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) StatusChanged() {
	if m == nil {
		return
	}
	m.statusChanges.Inc()
}

func (m *Metrics) ObservePortCall(port, op string, started time.Time) {
	if m == nil {
		return
	}
	m.portLatency.WithLabelValues(port, op).Observe(time.Since(started).Seconds())
}
