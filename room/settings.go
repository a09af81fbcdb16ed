// room/settings.go
package room

import (
	"time"

	"github.com/wfunc/tagserver/gameerr"
	"github.com/wfunc/tagserver/geo"
)

const (
	MinPlayers        = 2
	MaxPlayersLimit   = 100
	CodeLength        = 6
	DefaultTagRadius  = 20.0
	DefaultMaxPlayers = 10
)

// Settings 游戏设置
type Settings struct {
	TagRadius   float64 // meters
	GPSInterval time.Duration
	MaxPlayers  int
	// Duration is optional; zero means the game runs until the host ends it.
	Duration   time.Duration
	SafeZones  []geo.SafeZone
	QuietHours []geo.QuietHoursRule
}

// Validate rejects settings a game cannot be played with.
func (s Settings) Validate() error {
	if s.TagRadius <= 0 || s.MaxPlayers < MinPlayers || s.MaxPlayers > MaxPlayersLimit {
		return gameerr.ErrInvalidSettings
	}
	if s.GPSInterval < 0 || s.Duration < 0 {
		return gameerr.ErrInvalidSettings
	}
	for _, z := range s.SafeZones {
		if err := z.Validate(); err != nil {
			return gameerr.ErrInvalidSettings
		}
	}
	for _, r := range s.QuietHours {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.SafeZones = append([]geo.SafeZone(nil), s.SafeZones...)
	out.QuietHours = make([]geo.QuietHoursRule, len(s.QuietHours))
	for i, r := range s.QuietHours {
		r.Days = append([]time.Weekday(nil), r.Days...)
		out.QuietHours[i] = r
	}
	return out
}
