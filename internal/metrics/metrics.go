package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the arena's prometheus collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	reg *prometheus.Registry

	sessionsCreated  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	movesApplied     prometheus.Counter
	requestsRejected *prometheus.CounterVec
	connectedUsers   prometheus.Gauge
	activeSessions   prometheus.Gauge
	storeSaveErrors  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sessionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "arena_sessions_created_total", Help: "Sessions created by origin"},
			[]string{"origin"},
		),
		sessionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "arena_sessions_finished_total", Help: "Sessions finished by reason"},
			[]string{"reason"},
		),
		movesApplied: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "arena_moves_applied_total", Help: "Moves accepted by the rules engine"},
		),
		requestsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "arena_requests_rejected_total", Help: "Rejected requests by error code"},
			[]string{"code"},
		),
		connectedUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "arena_connected_users", Help: "Users holding at least one live connection"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "arena_active_sessions", Help: "Sessions currently in progress"},
		),
		storeSaveErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "arena_store_save_errors_total", Help: "Failed durable saves"},
		),
	}
	m.reg.MustRegister(m.sessionsCreated, m.sessionsFinished, m.movesApplied, m.requestsRejected,
		m.connectedUsers, m.activeSessions, m.storeSaveErrors)
	m.reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionCreated(origin string) {
	if m != nil {
		m.sessionsCreated.WithLabelValues(origin).Inc()
	}
}

func (m *Metrics) SessionFinished(reason string) {
	if m != nil {
		m.sessionsFinished.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MoveApplied() {
	if m != nil {
		m.movesApplied.Inc()
	}
}

func (m *Metrics) RequestRejected(code string) {
	if m != nil {
		m.requestsRejected.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) SetConnectedUsers(n int) {
	if m != nil {
		m.connectedUsers.Set(float64(n))
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m != nil {
		m.activeSessions.Set(float64(n))
	}
}

func (m *Metrics) StoreSaveFailed() {
	if m != nil {
		m.storeSaveErrors.Inc()
	}
}
