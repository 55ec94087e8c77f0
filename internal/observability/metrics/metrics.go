package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "perishables"

const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
	ResultFailed   = "failed"

	SweepSuccess = "success"
	SweepFailure = "failure"
)

// Metrics exposes application-level instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	broadcastEvents   *prometheus.CounterVec
	droppedSessions   prometheus.Counter
	realtimeSessions  prometheus.Gauge
	markdownsApplied  *prometheus.CounterVec
	markdownDiscounts prometheus.Histogram
	expirySweeps      *prometheus.CounterVec
}

// New registers the domain collectors on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		broadcastEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_events_total",
			Help:      "Events fanned out to store sessions, by event type.",
		}, []string{"type"}),
		droppedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_sessions_total",
			Help:      "Sessions removed because a broadcast could not be delivered.",
		}),
		realtimeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_sessions",
			Help:      "Open realtime sessions across all stores.",
		}),
		markdownsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markdowns_applied_total",
			Help:      "Markdown applications by result.",
		}, []string{"result"}),
		markdownDiscounts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "markdown_discount_percent",
			Help:      "Discount percentages of applied markdowns.",
			Buckets:   []float64{5, 10, 15, 20, 25, 30, 40, 50, 75, 100},
		}),
		expirySweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweeps_total",
			Help:      "Expiry sweep runs by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.broadcastEvents,
		m.droppedSessions,
		m.realtimeSessions,
		m.markdownsApplied,
		m.markdownDiscounts,
		m.expirySweeps,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.broadcastEvents.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *Metrics) RecordDroppedSession() {
	if m == nil {
		return
	}
	m.droppedSessions.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.realtimeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.realtimeSessions.Dec()
}

func (m *Metrics) RecordMarkdown(result string, discountPercent float64) {
	if m == nil {
		return
	}
	m.markdownsApplied.WithLabelValues(normalizeLabel(result)).Inc()
	if result == ResultApplied {
		m.markdownDiscounts.Observe(discountPercent)
	}
}

func (m *Metrics) RecordSweep(result string) {
	if m == nil {
		return
	}
	m.expirySweeps.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
