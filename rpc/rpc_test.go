package rpc

import (
	"math"
	"net/rpc"
	"testing"
	"time"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/services"
	"github.com/wfunc/tagserver/tagging"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func flaggedService(t *testing.T) *services.GameService {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	mon := anticheat.NewMonitor(anticheat.DefaultConfig(), anticheat.WithClock(clock.Now))
	svc := services.NewGameService(room.NewRegistry(), mon, tagging.NewProtocol(mon, nil))

	p := geo.Point{Lat: 40, Lng: -74}
	for i := 0; i <= mon.Config().FlagThreshold; i++ {
		if _, err := svc.ReportLocation("cheater", geo.Location{Point: p}, ""); err != nil {
			t.Fatalf("ReportLocation failed: %v", err)
		}
		clock.now = clock.now.Add(30 * time.Second)
		p.Lat += 5000 / (geo.EarthRadius * math.Pi / 180)
	}
	return svc
}

func TestModerationService_OverRPC(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", NewModerationService(flaggedService(t)))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go srv.Start()
	defer srv.Stop()

	client, err := rpc.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	var flagged FlaggedReply
	if err := client.Call(ServiceName+".Flagged", &FlaggedArgs{}, &flagged); err != nil {
		t.Fatalf("Flagged failed: %v", err)
	}
	if len(flagged.Players) != 1 || flagged.Players[0].PlayerID != "cheater" {
		t.Fatalf("Expected cheater flagged, got %+v", flagged.Players)
	}

	var violations ViolationsReply
	if err := client.Call(ServiceName+".Violations", &PlayerArgs{PlayerID: "cheater"}, &violations); err != nil {
		t.Fatalf("Violations failed: %v", err)
	}
	if len(violations.Violations) == 0 || violations.Violations[0].Type != anticheat.ViolationSpeedHack {
		t.Errorf("Expected speed_hack violations, got %+v", violations.Violations)
	}

	var stats StatsReply
	if err := client.Call(ServiceName+".Stats", &StatsArgs{}, &stats); err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Stats.Anticheat.FlaggedPlayers != 1 {
		t.Errorf("Unexpected stats %+v", stats.Stats)
	}

	var unflag UnflagReply
	if err := client.Call(ServiceName+".Unflag", &PlayerArgs{PlayerID: "cheater"}, &unflag); err != nil || !unflag.Unflagged {
		t.Fatalf("Unflag failed: %v %v", unflag, err)
	}
	unflag = UnflagReply{}
	if err := client.Call(ServiceName+".Unflag", &PlayerArgs{PlayerID: "cheater"}, &unflag); err != nil || unflag.Unflagged {
		t.Errorf("Second Unflag should report false, got %v %v", unflag, err)
	}

	if err := client.Call(ServiceName+".Unflag", &PlayerArgs{}, &unflag); err == nil {
		t.Error("Expected an error for a missing player id")
	}
}
