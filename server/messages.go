package server

import (
	"time"

	"github.com/wfunc/tagserver/anticheat"
	"github.com/wfunc/tagserver/geo"
	"github.com/wfunc/tagserver/models"
	"github.com/wfunc/tagserver/room"
)

// 客户端请求

// settingsRequest 未设置的字段使用服务器默认值
type settingsRequest struct {
	TagRadius     *float64                  `json:"tag_radius,omitempty"`
	GPSIntervalMs *int64                    `json:"gps_interval_ms,omitempty"`
	MaxPlayers    *int                      `json:"max_players,omitempty"`
	DurationMs    int64                     `json:"duration_ms,omitempty"`
	SafeZones     []models.SafeZoneRecord   `json:"safe_zones,omitempty"`
	QuietHours    []models.QuietHoursRecord `json:"quiet_hours,omitempty"`
}

func (r settingsRequest) apply(defaults room.Settings) room.Settings {
	rec := models.SettingsRecord{
		TagRadius:     defaults.TagRadius,
		GPSIntervalMs: defaults.GPSInterval.Milliseconds(),
		MaxPlayers:    defaults.MaxPlayers,
		DurationMs:    r.DurationMs,
		SafeZones:     r.SafeZones,
		QuietHours:    r.QuietHours,
	}
	if r.TagRadius != nil {
		rec.TagRadius = *r.TagRadius
	}
	if r.GPSIntervalMs != nil {
		rec.GPSIntervalMs = *r.GPSIntervalMs
	}
	if r.MaxPlayers != nil {
		rec.MaxPlayers = *r.MaxPlayers
	}
	return rec.ToSettings()
}

type createGameRequest struct {
	Settings settingsRequest `json:"settings"`
}

type joinGameRequest struct {
	Code string `json:"code"`
}

// gameRequest is shared by start, end and get. An empty GameID means the sender's current game.
type gameRequest struct {
	GameID string `json:"game_id"`
}

type tagRequest struct {
	GameID   string `json:"game_id"`
	TargetID string `json:"target_id"`
}

type locationRequest struct {
	GameID   string   `json:"game_id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	// Timestamp is the device clock in unix milliseconds; kept for audit only.
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (r locationRequest) location() geo.Location {
	loc := geo.Location{
		Point:    geo.Point{Lat: r.Lat, Lng: r.Lng},
		Accuracy: r.Accuracy,
		Altitude: r.Altitude,
		Speed:    r.Speed,
		Heading:  r.Heading,
	}
	if r.Timestamp > 0 {
		loc.Timestamp = time.UnixMilli(r.Timestamp)
	}
	return loc
}

type checkTagRequest struct {
	Tagger geo.Point `json:"tagger"`
	Target geo.Point `json:"target"`
	Radius float64   `json:"radius"`
}

// 服务器响应

type tagResponse struct {
	Game          *models.GameRecord `json:"game"`
	Tag           models.TagEntry    `json:"tag"`
	TagTimeMs     *int64             `json:"tag_time_ms,omitempty"`
	TaggerFlagged bool               `json:"tagger_flagged"`
}

type leaveResponse struct {
	Game    *models.GameRecord `json:"game,omitempty"`
	Deleted bool               `json:"deleted"`
}

type checkTagResponse struct {
	Valid    bool    `json:"valid"`
	Distance float64 `json:"distance"`
}

type locationResponse struct {
	GameID string `json:"game_id,omitempty"`
	anticheat.Report
}

type errorResponse struct {
	Kind     string  `json:"kind"`
	Reason   string  `json:"reason,omitempty"`
	Message  string  `json:"message"`
	Distance float64 `json:"distance,omitempty"`
	Allowed  float64 `json:"allowed,omitempty"`
	// Request is the message id that failed; zero over HTTP.
	Request uint16 `json:"request,omitempty"`
}
