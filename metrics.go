package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the payment wait service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionsOpened  prometheus.Counter
	SessionOutcomes *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	WaitDuration    prometheus.Histogram

	DroppedEvents     prometheus.Counter
	ReconnectAttempts prometheus.Counter

	NotificationsPublished  prometheus.Counter
	NotificationsDuplicated prometheus.Counter
	NotificationErrors      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywait_sessions_opened_total",
			Help: "Total number of payment wait sessions opened",
		}),
		SessionOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywait_session_outcomes_total",
				Help: "Terminal outcomes of payment wait sessions",
			},
			[]string{"state", "kind"},
		),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "paywait_active_sessions",
			Help: "Current number of registered wait sessions",
		}),
		WaitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paywait_wait_duration_seconds",
			Help:    "Time from subscription to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		}),
		DroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywait_dropped_events_total",
			Help: "Payment completed events without a resolvable booking id",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywait_reconnect_attempts_total",
			Help: "Scheduled resubscriptions after channel failures",
		}),
		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywait_notifications_published_total",
			Help: "Payment completed events published to transaction channels",
		}),
		NotificationsDuplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywait_notifications_duplicated_total",
			Help: "Payment notifications skipped because the transaction was already notified",
		}),
		NotificationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "paywait_notification_errors_total",
			Help: "Failed payment notification publishes",
		}),
	}
}

func (m *Metrics) RecordOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

func (m *Metrics) RecordOutcome(state WaitState, kind ErrorKind, seconds float64) {
	if m == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "none"
	}
	m.SessionOutcomes.WithLabelValues(string(state), label).Inc()
	if seconds >= 0 {
		m.WaitDuration.Observe(seconds)
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) RecordDroppedEvent() {
	if m == nil {
		return
	}
	m.DroppedEvents.Inc()
}

func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) RecordNotification(duplicate bool) {
	if m == nil {
		return
	}
	if duplicate {
		m.NotificationsDuplicated.Inc()
		return
	}
	m.NotificationsPublished.Inc()
}

func (m *Metrics) RecordNotificationError() {
	if m == nil {
		return
	}
	m.NotificationErrors.Inc()
}
