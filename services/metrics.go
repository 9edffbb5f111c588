package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts session lifecycle events. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	sessionsOpened prometheus.Counter
	sessionsReused prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	validations    *prometheus.CounterVec
	pushes         *prometheus.CounterVec
}

// NewMetrics membuat registry sendiri supaya aman dipakai berulang di test
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "restaurant_qr",
			Name:      "sessions_opened_total",
			Help:      "QR sessions created from a table scan.",
		}),
		sessionsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "restaurant_qr",
			Name:      "sessions_reused_total",
			Help:      "Scans that joined the table's already active session.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_qr",
			Name:      "sessions_closed_total",
			Help:      "Sessions leaving ACTIVE, by resulting status.",
		}, []string{"status"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_qr",
			Name:      "session_validations_total",
			Help:      "Validation calls by verdict.",
		}, []string{"result"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "restaurant_qr",
			Name:      "push_messages_total",
			Help:      "Push messages published, by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.sessionsOpened, m.sessionsReused, m.sessionsClosed, m.validations, m.pushes)
	reg.MustRegister(prometheus.NewGoCollector())
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) sessionOpened(reused bool) {
	if m == nil {
		return
	}
	if reused {
		m.sessionsReused.Inc()
		return
	}
	m.sessionsOpened.Inc()
}

func (m *Metrics) sessionClosed(status string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(status).Inc()
}

func (m *Metrics) validation(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}

func (m *Metrics) push(msgType string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(msgType).Inc()
}
