// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 抓人结果标签
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	LiveGames        *prometheus.GaugeVec
	TrackedPlayers   prometheus.Gauge
	FlaggedPlayers   prometheus.Gauge
	TagAttempts      *prometheus.CounterVec
	Violations       *prometheus.CounterVec
	GamesArchived    *prometheus.CounterVec
	MessagesReceived prometheus.Counter
	MessageLatency   prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors with reg. A nil reg gets a private registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected player sessions",
		}),
		LiveGames: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_games",
			Help:      "Number of games in the registry by status",
		}, []string{"status"}),
		TrackedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anticheat_tracked_players",
			Help:      "Players with a movement history",
		}),
		FlaggedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anticheat_flagged_players",
			Help:      "Players currently flagged for review",
		}),
		TagAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_attempts_total",
			Help:      "Tag attempts by result and reason",
		}, []string{"result", "reason"}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anticheat_violations_total",
			Help:      "Movement violations by type and severity",
		}, []string{"type", "severity"}),
		GamesArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_archived_total",
			Help:      "Ended games handed to the archive store by result",
		}, []string{"result"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.LiveGames,
		m.TrackedPlayers,
		m.FlaggedPlayers,
		m.TagAttempts,
		m.Violations,
		m.GamesArchived,
		m.MessagesReceived,
		m.MessageLatency,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}

	return m
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// 以下方法在 m 为 nil 时为空操作，方便测试不接入指标

func (m *Metrics) IncOnlinePlayers() {
	if m != nil {
		m.OnlinePlayers.Inc()
	}
}

func (m *Metrics) DecOnlinePlayers() {
	if m != nil {
		m.OnlinePlayers.Dec()
	}
}

// SetGames publishes per-status game counts.
func (m *Metrics) SetGames(waiting, active, ended int) {
	if m == nil {
		return
	}
	m.LiveGames.WithLabelValues("waiting").Set(float64(waiting))
	m.LiveGames.WithLabelValues("active").Set(float64(active))
	m.LiveGames.WithLabelValues("ended").Set(float64(ended))
}

func (m *Metrics) SetAnticheat(tracked, flagged int) {
	if m == nil {
		return
	}
	m.TrackedPlayers.Set(float64(tracked))
	m.FlaggedPlayers.Set(float64(flagged))
}

// ObserveTag counts a tag attempt; reason is empty for accepted tags.
func (m *Metrics) ObserveTag(accepted bool, reason string) {
	if m == nil {
		return
	}
	result := ResultAccepted
	if !accepted {
		result = ResultRejected
	}
	m.TagAttempts.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) ObserveViolation(typ, severity string) {
	if m != nil {
		m.Violations.WithLabelValues(typ, severity).Inc()
	}
}

func (m *Metrics) ObserveArchive(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.GamesArchived.WithLabelValues(result).Inc()
}

func (m *Metrics) IncMessagesReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) ObserveMessageLatency(duration time.Duration) {
	if m != nil {
		m.MessageLatency.Observe(duration.Seconds())
	}
}
