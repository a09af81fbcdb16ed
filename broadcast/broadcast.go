// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/wfunc/tagserver/logger"
	"github.com/wfunc/tagserver/network"
	"github.com/wfunc/tagserver/services"
	"github.com/wfunc/tagserver/session"
)

// DefaultQueueSize 待发送事件队列长度
const DefaultQueueSize = 256

// 广播接口
type Broadcaster interface {
	BroadcastToAll(msgID uint16, data []byte) error
	BroadcastToPlayers(playerIDs []string, msgID uint16, data []byte) error
}

// SessionBroadcaster delivers game events to the sessions of their recipients.
// Notify only enqueues; a single worker does the socket writes.
type SessionBroadcaster struct {
	sessionManager *session.Manager
	queue          chan services.Event

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewSessionBroadcaster(sessionManager *session.Manager, queueSize int) *SessionBroadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &SessionBroadcaster{
		sessionManager: sessionManager,
		queue:          make(chan services.Event, queueSize),
	}
}

// Start launches the delivery worker.
func (b *SessionBroadcaster) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range b.queue {
			b.deliver(e)
		}
	}()
}

// Stop flushes queued events and waits for the worker.
func (b *SessionBroadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.queue)
	b.mu.Unlock()
	b.wg.Wait()
}

// Notify implements services.Notifier.
func (b *SessionBroadcaster) Notify(e services.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	select {
	case b.queue <- e:
	default:
		logger.Log.Errorw("event queue full, dropping event", "type", e.Type, "game_id", e.GameID)
	}
}

func (b *SessionBroadcaster) deliver(e services.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Log.Errorw("marshal event failed", "type", e.Type, "error", err)
		return
	}
	if err := b.BroadcastToPlayers(e.Recipients, network.MsgTypeEvent, data); err != nil {
		logger.Log.Warnw("event delivery incomplete", "type", e.Type, "game_id", e.GameID, "error", err)
	}
}

func (b *SessionBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	var sessions []*session.Session
	b.sessionManager.Range(func(s *session.Session) {
		sessions = append(sessions, s)
	})
	return sendAll(sessions, msgID, data)
}

func (b *SessionBroadcaster) BroadcastToPlayers(playerIDs []string, msgID uint16, data []byte) error {
	var sessions []*session.Session
	for _, playerID := range playerIDs {
		sessions = append(sessions, b.sessionManager.GetByPlayerID(playerID)...)
	}
	return sendAll(sessions, msgID, data)
}

// sendAll keeps going past failed sessions and returns the first error.
func sendAll(sessions []*session.Session, msgID uint16, data []byte) error {
	var firstErr error
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugw("send failed", "session_id", s.GetID(), "player_id", s.PlayerID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
