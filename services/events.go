// services/events.go
package services

import (
	"github.com/wfunc/tagserver/models"
)

// EventType 推送给玩家的事件类型
type EventType string

const (
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventGameStarted  EventType = "game_started"
	EventYouAreIt     EventType = "you_are_it"
	EventPlayerTagged EventType = "player_tagged"
	EventGameEnded    EventType = "game_ended"

	// EventServerShutdown is sent to every session, not through a Notifier.
	EventServerShutdown EventType = "server_shutdown"
)

// Event is delivered to every id in Recipients.
type Event struct {
	Type       EventType    `json:"type"`
	GameID     string       `json:"game_id"`
	Recipients []string     `json:"-"`
	Payload    EventPayload `json:"payload"`
}

// EventPayload 事件内容，按事件类型填充
type EventPayload struct {
	Game     *models.GameRecord `json:"game,omitempty"`
	PlayerID string             `json:"player_id,omitempty"`
	Tag      *models.TagEntry   `json:"tag,omitempty"`
	Deleted  bool               `json:"deleted,omitempty"`
	// Reason is "host" or "expired" for game_ended.
	Reason string `json:"reason,omitempty"`
}

// Notifier delivers events. Implementations must not block the caller on I/O.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
