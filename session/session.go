// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/tagserver/network"
)

type Session struct {
	ID        string
	Conn      network.Connection
	PlayerID  string
	Name      string
	Avatar    string
	CreatedAt time.Time

	data       map[string]interface{} // 自定义数据
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		data:       make(map[string]interface{}),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.data[key]
}

// Touch records activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器，按玩家建立二级索引
type Manager struct {
	sessions map[string]*Session
	byPlayer map[string]map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
	if session.PlayerID != "" {
		m.index(session)
	}
}

func (m *Manager) index(session *Session) {
	set, ok := m.byPlayer[session.PlayerID]
	if !ok {
		set = make(map[string]*Session)
		m.byPlayer[session.PlayerID] = set
	}
	set[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	if set, ok := m.byPlayer[session.PlayerID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.byPlayer, session.PlayerID)
		}
	}
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetByPlayerID returns every live session of the player; a player may be connected from several devices.
func (m *Manager) GetByPlayerID(playerID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	set := m.byPlayer[playerID]
	result := make([]*Session, 0, len(set))
	for _, session := range set {
		result = append(result, session)
	}
	return result
}

// Range calls fn for every session outside the manager lock.
func (m *Manager) Range(fn func(*Session)) {
	m.mutex.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mutex.RUnlock()

	for _, s := range all {
		fn(s)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
