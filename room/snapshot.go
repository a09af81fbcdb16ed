package room

import (
	"time"

	"github.com/wfunc/tagserver/state"
)

// Snapshot is a point-in-time copy of a Game, safe to hand outside the lock.
type Snapshot struct {
	ID         string
	Code       string
	HostID     string
	HostName   string
	Status     state.Status
	Settings   Settings
	Players    []PlayerInGame
	ItPlayerID string
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Tags       []TagRecord
	WinnerID   string
	WinnerName string
	Duration   time.Duration
}

// Player returns the roster entry for id.
func (s Snapshot) Player(id string) (PlayerInGame, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerInGame{}, false
}

// PlayerIDs returns roster ids in order.
func (s Snapshot) PlayerIDs() []string {
	ids := make([]string, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.ID
	}
	return ids
}

// ItCount counts players flagged as IT.
func (s Snapshot) ItCount() int {
	n := 0
	for _, p := range s.Players {
		if p.IsIt {
			n++
		}
	}
	return n
}
