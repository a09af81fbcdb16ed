// models/models.go
package models

import (
	"time"

	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/room"
)

// GameRecord 已结束游戏的归档快照，时长字段统一用毫秒
type GameRecord struct {
	ID         string         `json:"id"`
	Code       string         `json:"code"`
	HostID     string         `json:"host_id"`
	HostName   string         `json:"host_name"`
	Status     string         `json:"status"`
	Settings   SettingsRecord `json:"settings"`
	Players    []PlayerRecord `json:"players"`
	Tags       []TagEntry     `json:"tags"`
	ItPlayerID string         `json:"it_player_id,omitempty"`
	WinnerID   string         `json:"winner_id,omitempty"`
	WinnerName string         `json:"winner_name,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// SettingsRecord 游戏设置
type SettingsRecord struct {
	TagRadius     float64            `json:"tag_radius"`
	GPSIntervalMs int64              `json:"gps_interval_ms"`
	MaxPlayers    int                `json:"max_players"`
	DurationMs    int64              `json:"duration_ms,omitempty"`
	SafeZones     []SafeZoneRecord   `json:"safe_zones"`
	QuietHours    []QuietHoursRecord `json:"quiet_hours"`
}

type SafeZoneRecord struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius"`
}

type QuietHoursRecord struct {
	Days  []int `json:"days"` // 0 = Sunday
	Start int   `json:"start"`
	End   int   `json:"end"`
}

// PlayerRecord 玩家在一局中的计数
type PlayerRecord struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Avatar              string    `json:"avatar,omitempty"`
	JoinedAt            time.Time `json:"joined_at"`
	TagCount            int       `json:"tag_count"`
	TimeAsItMs          int64     `json:"time_as_it_ms"`
	SurvivalTimeMs      int64     `json:"survival_time_ms"`
	FinalSurvivalTimeMs *int64    `json:"final_survival_time_ms,omitempty"`
}

// TagEntry 抓人记录
type TagEntry struct {
	ID        string    `json:"id"`
	TaggerID  string    `json:"tagger_id"`
	TaggedID  string    `json:"tagged_id"`
	Timestamp time.Time `json:"timestamp"`
	TagTimeMs *int64    `json:"tag_time_ms,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Distance  float64   `json:"distance"`
}

// PlayerStats 玩家历史统计
type PlayerStats struct {
	PlayerID        string `json:"player_id"`
	TotalGames      int    `json:"total_games"`
	Wins            int    `json:"wins"`
	TotalTags       int    `json:"total_tags"`
	TotalSurvivalMs int64  `json:"total_survival_ms"`
}

func ms(d time.Duration) int64 { return d.Milliseconds() }

func msPtr(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	v := d.Milliseconds()
	return &v
}

// FromSnapshot converts a game snapshot into its archive form.
func FromSnapshot(s room.Snapshot) GameRecord {
	rec := GameRecord{
		ID:         s.ID,
		Code:       s.Code,
		HostID:     s.HostID,
		HostName:   s.HostName,
		Status:     s.Status.String(),
		Settings:   settingsRecord(s.Settings),
		Players:    make([]PlayerRecord, len(s.Players)),
		Tags:       make([]TagEntry, len(s.Tags)),
		ItPlayerID: s.ItPlayerID,
		WinnerID:   s.WinnerID,
		WinnerName: s.WinnerName,
		CreatedAt:  s.CreatedAt,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		DurationMs: ms(s.Duration),
	}
	for i, p := range s.Players {
		rec.Players[i] = PlayerRecord{
			ID:                  p.ID,
			Name:                p.Name,
			Avatar:              p.Avatar,
			JoinedAt:            p.JoinedAt,
			TagCount:            p.TagCount,
			TimeAsItMs:          ms(p.TimeAsIt),
			SurvivalTimeMs:      ms(p.SurvivalTime),
			FinalSurvivalTimeMs: msPtr(p.FinalSurvivalTime),
		}
	}
	for i, t := range s.Tags {
		rec.Tags[i] = TagEntry{
			ID:        t.ID,
			TaggerID:  t.TaggerID,
			TaggedID:  t.TaggedID,
			Timestamp: t.Timestamp,
			TagTimeMs: msPtr(t.TagTime),
			Lat:       t.Location.Lat,
			Lng:       t.Location.Lng,
			Distance:  t.Distance,
		}
	}
	return rec
}

func settingsRecord(s room.Settings) SettingsRecord {
	out := SettingsRecord{
		TagRadius:     s.TagRadius,
		GPSIntervalMs: ms(s.GPSInterval),
		MaxPlayers:    s.MaxPlayers,
		DurationMs:    ms(s.Duration),
		SafeZones:     make([]SafeZoneRecord, len(s.SafeZones)),
		QuietHours:    make([]QuietHoursRecord, len(s.QuietHours)),
	}
	for i, z := range s.SafeZones {
		out.SafeZones[i] = SafeZoneRecord{Name: z.Name, Lat: z.Center.Lat, Lng: z.Center.Lng, Radius: z.Radius}
	}
	for i, r := range s.QuietHours {
		days := make([]int, len(r.Days))
		for j, d := range r.Days {
			days[j] = int(d)
		}
		out.QuietHours[i] = QuietHoursRecord{Days: days, Start: r.Start, End: r.End}
	}
	return out
}

// ToSettings converts the record back into game settings.
func (s SettingsRecord) ToSettings() room.Settings {
	out := room.Settings{
		TagRadius:   s.TagRadius,
		GPSInterval: time.Duration(s.GPSIntervalMs) * time.Millisecond,
		MaxPlayers:  s.MaxPlayers,
		Duration:    time.Duration(s.DurationMs) * time.Millisecond,
	}
	for _, z := range s.SafeZones {
		out.SafeZones = append(out.SafeZones, geo.SafeZone{Name: z.Name, Center: geo.Point{Lat: z.Lat, Lng: z.Lng}, Radius: z.Radius})
	}
	for _, r := range s.QuietHours {
		rule := geo.QuietHoursRule{Start: r.Start, End: r.End}
		for _, d := range r.Days {
			rule.Days = append(rule.Days, time.Weekday(d))
		}
		out.QuietHours = append(out.QuietHours, rule)
	}
	return out
}

// Player returns the roster entry for id.
func (r GameRecord) Player(id string) (PlayerRecord, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerRecord{}, false
}

// Accumulate folds one archived game into the stats of s.PlayerID.
func (s *PlayerStats) Accumulate(r GameRecord) {
	p, ok := r.Player(s.PlayerID)
	if !ok {
		return
	}
	s.TotalGames++
	if r.WinnerID == s.PlayerID {
		s.Wins++
	}
	s.TotalTags += p.TagCount
	if p.FinalSurvivalTimeMs != nil {
		s.TotalSurvivalMs += *p.FinalSurvivalTimeMs
	}
}
