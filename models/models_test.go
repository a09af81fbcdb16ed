package models

import (
	"testing"
	"time"

	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/room"
	"github.com/wfunc/tagserver/state"
)

func endedSnapshot() room.Snapshot {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	winnerSurvival := 30 * time.Second
	var zero time.Duration
	tagTime := 60 * time.Second

	return room.Snapshot{
		ID:       "game-1",
		Code:     "ABC234",
		HostID:   "a",
		HostName: "Alice",
		Status:   state.Ended,
		Settings: room.Settings{
			TagRadius:   20,
			GPSInterval: 5 * time.Second,
			MaxPlayers:  4,
			SafeZones:   []geo.SafeZone{{Name: "base", Center: geo.Point{Lat: 1, Lng: 2}, Radius: 50}},
			QuietHours:  []geo.QuietHoursRule{{Days: []time.Weekday{time.Saturday}, Start: 1320, End: 360}},
		},
		Players: []room.PlayerInGame{
			{Player: room.Player{ID: "a", Name: "Alice"}, JoinedAt: start, TagCount: 1, TimeAsIt: 60 * time.Second, SurvivalTime: 30 * time.Second, FinalSurvivalTime: &winnerSurvival},
			{Player: room.Player{ID: "b", Name: "Bob"}, JoinedAt: start, TimeAsIt: 30 * time.Second, SurvivalTime: 60 * time.Second, FinalSurvivalTime: &zero},
		},
		Tags: []room.TagRecord{
			{ID: "t1", TaggerID: "a", TaggedID: "b", Timestamp: start.Add(tagTime), TagTime: &tagTime, Location: geo.Point{Lat: 1, Lng: 2}, Distance: 4.5},
		},
		ItPlayerID: "b",
		WinnerID:   "a",
		WinnerName: "Alice",
		CreatedAt:  start,
		StartedAt:  &start,
		EndedAt:    &end,
		Duration:   90 * time.Second,
	}
}

func TestFromSnapshot(t *testing.T) {
	rec := FromSnapshot(endedSnapshot())

	if rec.Status != "ended" || rec.DurationMs != 90000 {
		t.Errorf("Unexpected status/duration: %s %d", rec.Status, rec.DurationMs)
	}
	if rec.Settings.GPSIntervalMs != 5000 || len(rec.Settings.SafeZones) != 1 {
		t.Errorf("Unexpected settings %+v", rec.Settings)
	}
	a, ok := rec.Player("a")
	if !ok || a.TimeAsItMs != 60000 || *a.FinalSurvivalTimeMs != 30000 || a.TagCount != 1 {
		t.Errorf("Unexpected player record %+v", a)
	}
	if len(rec.Tags) != 1 || *rec.Tags[0].TagTimeMs != 60000 || rec.Tags[0].Lat != 1 {
		t.Errorf("Unexpected tags %+v", rec.Tags)
	}
}

func TestSettingsRecord_ToSettings(t *testing.T) {
	in := endedSnapshot().Settings
	out := FromSnapshot(endedSnapshot()).Settings.ToSettings()

	if out.GPSInterval != in.GPSInterval || out.TagRadius != in.TagRadius {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
	if len(out.QuietHours) != 1 || out.QuietHours[0].Days[0] != time.Saturday {
		t.Errorf("Quiet hours not restored: %+v", out.QuietHours)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("Restored settings should validate: %v", err)
	}
}

func TestGormRoundTrip(t *testing.T) {
	rec := FromSnapshot(endedSnapshot())

	row, participants, err := rec.ToGorm()
	if err != nil {
		t.Fatalf("ToGorm failed: %v", err)
	}
	if len(participants) != 2 || participants[1].PlayerID != "b" || !participants[1].EndedAt.Equal(*rec.EndedAt) {
		t.Errorf("Unexpected participants %+v", participants)
	}

	back, err := FromGorm(row)
	if err != nil {
		t.Fatalf("FromGorm failed: %v", err)
	}
	if back.WinnerID != "a" || len(back.Players) != 2 || len(back.Tags) != 1 {
		t.Errorf("Record not restored: %+v", back)
	}
}

func TestPlayerStats_Accumulate(t *testing.T) {
	rec := FromSnapshot(endedSnapshot())

	stats := PlayerStats{PlayerID: "a"}
	stats.Accumulate(rec)
	stats.Accumulate(GameRecord{ID: "other"})

	if stats.TotalGames != 1 || stats.Wins != 1 || stats.TotalTags != 1 || stats.TotalSurvivalMs != 30000 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
