package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/models"
	"github.com/wfunc/tagserver/monitor"
	"github.com/wfunc/tagserver/persistence"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/state"
	"github.com/wfunc/tagserver/tagging"
)

var base = geo.Point{Lat: 40.0, Lng: -74.0}

func north(p geo.Point, d float64) geo.Point {
	return geo.Point{Lat: p.Lat + d/(geo.EarthRadius*math.Pi/180), Lng: p.Lng}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockNotifier records every event.
type MockNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *MockNotifier) Notify(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *MockNotifier) ofType(typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// MockArchive collects submitted records.
type MockArchive struct {
	mu      sync.Mutex
	records []string
}

func (a *MockArchive) Submit(rec models.GameRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec.ID)
	return nil
}

type fixture struct {
	svc      *GameService
	clock    *fakeClock
	notifier *MockNotifier
	archive  *MockArchive
	metrics  *monitor.Metrics
	monitor  *anticheat.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := room.NewRegistry(room.WithClock(clock.Now), room.WithPicker(func(int) int { return 0 }))
	mon := anticheat.NewMonitor(anticheat.DefaultConfig(), anticheat.WithClock(clock.Now))
	f := &fixture{
		clock:    clock,
		notifier: &MockNotifier{},
		archive:  &MockArchive{},
		metrics:  monitor.NewMetrics("test", prometheus.NewRegistry()),
		monitor:  mon,
	}
	f.svc = NewGameService(reg, mon, tagging.NewProtocol(mon, time.UTC),
		WithNotifier(f.notifier), WithArchive(f.archive), WithMetrics(f.metrics))
	return f
}

func settings() room.Settings {
	return room.Settings{TagRadius: 20, GPSInterval: 5 * time.Second, MaxPlayers: 4}
}

func (f *fixture) report(t *testing.T, playerID string, p geo.Point) anticheat.Report {
	t.Helper()
	report, err := f.svc.ReportLocation(playerID, geo.Location{Point: p}, "")
	if err != nil {
		t.Fatalf("ReportLocation failed: %v", err)
	}
	return report
}

func TestGameService_FullGame(t *testing.T) {
	f := newFixture(t)
	alice := room.Player{ID: "alice", Name: "Alice"}
	bob := room.Player{ID: "bob", Name: "Bob"}

	g, err := f.svc.CreateGame(alice, settings())
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := f.svc.JoinGame(g.Code, bob); err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	started, err := f.svc.StartGame(g.ID, "alice")
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if started.ItPlayerID != "alice" {
		t.Fatalf("Expected alice as IT, got %s", started.ItPlayerID)
	}

	f.report(t, "alice", base)
	f.report(t, "bob", north(base, 10))

	f.clock.Advance(60 * time.Second)
	out, err := f.svc.TagPlayer(g.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("TagPlayer failed: %v", err)
	}
	if out.Game.ItPlayerID != "bob" || *out.TagTime != 60*time.Second {
		t.Errorf("Unexpected outcome: IT %s, tag time %v", out.Game.ItPlayerID, out.TagTime)
	}

	f.clock.Advance(30 * time.Second)
	ended, err := f.svc.EndGame(g.ID, "alice")
	if err != nil {
		t.Fatalf("EndGame failed: %v", err)
	}
	if ended.Status != state.Ended || ended.WinnerID != "alice" {
		t.Errorf("Expected alice to win an ended game, got %s / %s", ended.Status, ended.WinnerID)
	}

	if len(f.notifier.ofType(EventPlayerJoined)) != 1 || len(f.notifier.ofType(EventGameStarted)) != 1 {
		t.Error("Expected one join and one start event")
	}
	its := f.notifier.ofType(EventYouAreIt)
	if len(its) != 2 || its[0].Recipients[0] != "alice" || its[1].Recipients[0] != "bob" {
		t.Errorf("Expected you_are_it for alice then bob, got %+v", its)
	}
	tagged := f.notifier.ofType(EventPlayerTagged)
	if len(tagged) != 1 || tagged[0].Payload.Tag == nil || tagged[0].Payload.Tag.TaggedID != "bob" {
		t.Errorf("Unexpected tag event %+v", tagged)
	}
	endedEvents := f.notifier.ofType(EventGameEnded)
	if len(endedEvents) != 1 || endedEvents[0].Payload.Reason != EndReasonHost || len(endedEvents[0].Recipients) != 2 {
		t.Errorf("Unexpected end event %+v", endedEvents)
	}
	if len(f.archive.records) != 1 || f.archive.records[0] != g.ID {
		t.Errorf("Expected the game to be archived, got %v", f.archive.records)
	}
	if got := testutil.ToFloat64(f.metrics.TagAttempts.WithLabelValues(monitor.ResultAccepted, "")); got != 1 {
		t.Errorf("Expected 1 accepted tag metric, got %v", got)
	}
}

func TestGameService_TagRejections(t *testing.T) {
	f := newFixture(t)
	g, _ := f.svc.CreateGame(room.Player{ID: "a"}, settings())
	_, _ = f.svc.JoinGame(g.Code, room.Player{ID: "b"})
	_, _ = f.svc.StartGame(g.ID, "a")

	if _, err := f.svc.TagPlayer(g.ID, "a", "b"); !errors.Is(err, gameerr.ErrLocationUnavailable) {
		t.Fatalf("Expected ErrLocationUnavailable, got %v", err)
	}

	f.report(t, "a", base)
	f.report(t, "b", north(base, 30))
	_, err := f.svc.TagPlayer(g.ID, "a", "b")
	var gerr *gameerr.Error
	if !errors.As(err, &gerr) || gerr.Kind != gameerr.KindOutOfRange || gerr.Distance < 29 {
		t.Fatalf("Expected out of range with distance, got %v", err)
	}
	if _, err := f.svc.TagPlayer(g.ID, "b", "a"); !errors.Is(err, gameerr.ErrNotIt) {
		t.Errorf("Expected ErrNotIt, got %v", err)
	}

	if got := testutil.ToFloat64(f.metrics.TagAttempts.WithLabelValues(monitor.ResultRejected, "target_out_of_range")); got != 1 {
		t.Errorf("Expected 1 out-of-range metric, got %v", got)
	}
	if len(f.notifier.ofType(EventPlayerTagged)) != 0 {
		t.Error("Rejected tags must not notify")
	}
}

func TestGameService_ReportLocation(t *testing.T) {
	f := newFixture(t)
	g, _ := f.svc.CreateGame(room.Player{ID: "a"}, settings())

	if _, err := f.svc.ReportLocation("a", geo.Location{Point: geo.Point{Lat: 100}}, ""); !errors.Is(err, gameerr.ErrInvalidCoordinate) {
		t.Fatalf("Expected ErrInvalidCoordinate, got %v", err)
	}

	f.report(t, "a", base)
	f.clock.Advance(time.Second)
	report := f.report(t, "a", north(base, 500))
	if len(report.Violations) == 0 || report.Violations[0].Type != anticheat.ViolationTeleport {
		t.Fatalf("Expected teleport violation, got %+v", report.Violations)
	}

	game, _ := f.svc.GetGame(g.ID)
	p, _ := game.Player("a")
	if p.Location == nil || p.Location.Lat != north(base, 500).Lat {
		t.Error("Latest location should be stored even with violations")
	}
	if got := testutil.ToFloat64(f.metrics.Violations.WithLabelValues("teleport", "high")); got != 1 {
		t.Errorf("Expected teleport metric, got %v", got)
	}
	if len(f.svc.Violations("a")) != 1 {
		t.Errorf("Expected 1 logged violation, got %d", len(f.svc.Violations("a")))
	}
}

func TestGameService_ValidateTagDistance(t *testing.T) {
	f := newFixture(t)

	valid, d, err := f.svc.ValidateTagDistance(base, north(base, 23), 20)
	if err != nil || !valid || math.Abs(d-23) > 0.1 {
		t.Errorf("Expected valid ~23m, got %v %f %v", valid, d, err)
	}
	if _, _, err := f.svc.ValidateTagDistance(base, base, 0); !errors.Is(err, gameerr.ErrInvalidSettings) {
		t.Errorf("Expected ErrInvalidSettings, got %v", err)
	}
}

func TestGameService_LeaveReassignsIt(t *testing.T) {
	f := newFixture(t)
	g, _ := f.svc.CreateGame(room.Player{ID: "a"}, settings())
	_, _ = f.svc.JoinGame(g.Code, room.Player{ID: "b"})
	_, _ = f.svc.JoinGame(g.Code, room.Player{ID: "c"})
	_, _ = f.svc.StartGame(g.ID, "a")

	res, err := f.svc.LeaveGame("a")
	if err != nil {
		t.Fatalf("LeaveGame failed: %v", err)
	}
	left := f.notifier.ofType(EventPlayerLeft)
	if len(left) != 1 || len(left[0].Recipients) != 2 {
		t.Errorf("Expected player_left to the two remaining players, got %+v", left)
	}
	its := f.notifier.ofType(EventYouAreIt)
	if last := its[len(its)-1]; last.Recipients[0] != res.Game.ItPlayerID {
		t.Errorf("Expected you_are_it for the new IT %s, got %v", res.Game.ItPlayerID, last.Recipients)
	}
}

func TestGameService_ExpireGames(t *testing.T) {
	f := newFixture(t)
	s := settings()
	s.Duration = time.Minute
	g, _ := f.svc.CreateGame(room.Player{ID: "a"}, s)
	_, _ = f.svc.JoinGame(g.Code, room.Player{ID: "b"})
	_, _ = f.svc.StartGame(g.ID, "a")

	f.clock.Advance(time.Minute)
	ended := f.svc.ExpireGames()
	if len(ended) != 1 {
		t.Fatalf("Expected 1 expired game, got %d", len(ended))
	}
	events := f.notifier.ofType(EventGameEnded)
	if len(events) != 1 || events[0].Payload.Reason != EndReasonExpired {
		t.Errorf("Expected expired game_ended event, got %+v", events)
	}
	if len(f.archive.records) != 1 {
		t.Error("Expired games should be archived")
	}
}

func TestGameService_Moderation(t *testing.T) {
	f := newFixture(t)
	cfg := f.monitor.Config()

	// 每 30 秒瞬移 5km，第 FlagThreshold 次触发 flag
	p := base
	f.report(t, "cheater", p)
	for i := 0; i < cfg.FlagThreshold; i++ {
		f.clock.Advance(30 * time.Second)
		p = north(p, 5000)
		f.report(t, "cheater", p)
	}

	flagged := f.svc.Flagged()
	if len(flagged) != 1 || flagged[0].PlayerID != "cheater" {
		t.Fatalf("Expected cheater flagged, got %+v", flagged)
	}
	if st := f.svc.Stats(); st.Anticheat.FlaggedPlayers != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if !f.svc.UnflagPlayer("cheater") {
		t.Error("UnflagPlayer should report true")
	}
	if f.svc.UnflagPlayer("cheater") {
		t.Error("Second UnflagPlayer should report false")
	}
}

func TestGameService_History(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.PlayerHistory(context.Background(), "a", 10); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("Expected ErrHistoryUnavailable, got %v", err)
	}

	db := persistence.NewMemoryDatabase()
	archiver := NewArchiver(db, 4, time.Second)
	archiver.Start(context.Background())
	f.svc = NewGameService(f.svc.registry, f.monitor, f.svc.protocol, WithArchive(archiver), WithHistory(db))

	g, _ := f.svc.CreateGame(room.Player{ID: "a"}, settings())
	_, _ = f.svc.JoinGame(g.Code, room.Player{ID: "b"})
	_, _ = f.svc.StartGame(g.ID, "a")
	_, _ = f.svc.EndGame(g.ID, "a")
	archiver.Stop()

	games, err := f.svc.PlayerHistory(context.Background(), "b", 10)
	if err != nil || len(games) != 1 || games[0].ID != g.ID {
		t.Fatalf("Expected archived game in history, got %v %v", games, err)
	}
	stats, _ := f.svc.PlayerStats(context.Background(), "b")
	if stats.TotalGames != 1 || stats.Wins != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if rec, err := f.svc.ArchivedGame(context.Background(), g.ID); err != nil || rec.WinnerID != "b" {
		t.Errorf("Unexpected archived game %+v %v", rec, err)
	}
}
