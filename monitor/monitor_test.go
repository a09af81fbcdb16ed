package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("tag", prometheus.NewRegistry())

	m.ObserveTag(true, "")
	m.ObserveTag(false, "target_out_of_range")
	m.ObserveTag(false, "target_out_of_range")
	m.ObserveViolation("teleport", "high")
	m.ObserveArchive(true)
	m.IncMessagesReceived()

	if got := testutil.ToFloat64(m.TagAttempts.WithLabelValues(ResultAccepted, "")); got != 1 {
		t.Errorf("Expected 1 accepted tag, got %v", got)
	}
	if got := testutil.ToFloat64(m.TagAttempts.WithLabelValues(ResultRejected, "target_out_of_range")); got != 2 {
		t.Errorf("Expected 2 rejected tags, got %v", got)
	}
	if got := testutil.ToFloat64(m.Violations.WithLabelValues("teleport", "high")); got != 1 {
		t.Errorf("Expected 1 violation, got %v", got)
	}
	if got := testutil.ToFloat64(m.GamesArchived.WithLabelValues("ok")); got != 1 {
		t.Errorf("Expected 1 archived game, got %v", got)
	}
	if got := testutil.ToFloat64(m.MessagesReceived); got != 1 {
		t.Errorf("Expected 1 message, got %v", got)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics("tag", prometheus.NewRegistry())

	m.SetGames(2, 3, 1)
	m.SetAnticheat(10, 1)
	m.IncOnlinePlayers()
	m.IncOnlinePlayers()
	m.DecOnlinePlayers()

	if got := testutil.ToFloat64(m.LiveGames.WithLabelValues("active")); got != 3 {
		t.Errorf("Expected 3 active games, got %v", got)
	}
	if got := testutil.ToFloat64(m.FlaggedPlayers); got != 1 {
		t.Errorf("Expected 1 flagged player, got %v", got)
	}
	if got := testutil.ToFloat64(m.OnlinePlayers); got != 1 {
		t.Errorf("Expected 1 online player, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTag(true, "")
	m.SetGames(1, 1, 1)
	m.ObserveMessageLatency(time.Millisecond)
	m.IncOnlinePlayers()
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("tag", prometheus.NewRegistry())
	m.ObserveViolation("speed_hack", "medium")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tag_anticheat_violations_total{severity="medium",type="speed_hack"} 1`) {
		t.Errorf("Expected violation counter in output, got:\n%s", body)
	}
}
