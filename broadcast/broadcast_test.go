package broadcast

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/tagserver/network"
	"github.com/wfunc/tagserver/services"
	"github.com/wfunc/tagserver/session"
)

// MockConnection records frames; Fail makes every send error.
type MockConnection struct {
	mu   sync.Mutex
	Fail bool
	msgs [][]byte
	ids  []uint16
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errors.New("broken pipe")
	}
	m.ids = append(m.ids, msgID)
	m.msgs = append(m.msgs, append([]byte(nil), data...))
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

func connect(manager *session.Manager, id, playerID string) *MockConnection {
	conn := &MockConnection{}
	sess := session.NewSession(id, conn)
	sess.PlayerID = playerID
	manager.Add(sess)
	return conn
}

func TestSessionBroadcaster_DeliversToRecipients(t *testing.T) {
	manager := session.NewManager()
	alice := connect(manager, "s1", "alice")
	aliceTablet := connect(manager, "s2", "alice")
	bob := connect(manager, "s3", "bob")
	carol := connect(manager, "s4", "carol")

	b := NewSessionBroadcaster(manager, 8)
	b.Start()
	b.Notify(services.Event{Type: services.EventYouAreIt, GameID: "g1", Recipients: []string{"alice"}, Payload: services.EventPayload{PlayerID: "alice"}})
	b.Notify(services.Event{Type: services.EventGameStarted, GameID: "g1", Recipients: []string{"alice", "bob"}})
	b.Stop()

	if alice.count() != 2 || aliceTablet.count() != 2 {
		t.Errorf("Expected both alice sessions to get 2 events, got %d and %d", alice.count(), aliceTablet.count())
	}
	if bob.count() != 1 || carol.count() != 0 {
		t.Errorf("Expected bob 1 and carol 0 events, got %d and %d", bob.count(), carol.count())
	}

	var e struct {
		Type   string `json:"type"`
		GameID string `json:"game_id"`
	}
	if err := json.Unmarshal(alice.msgs[0], &e); err != nil {
		t.Fatalf("Event payload is not JSON: %v", err)
	}
	if e.Type != "you_are_it" || e.GameID != "g1" || alice.ids[0] != network.MsgTypeEvent {
		t.Errorf("Unexpected event %+v (msg %d)", e, alice.ids[0])
	}
}

func TestSessionBroadcaster_FailedSessionDoesNotStopOthers(t *testing.T) {
	manager := session.NewManager()
	broken := connect(manager, "s1", "alice")
	broken.Fail = true
	bob := connect(manager, "s2", "bob")

	b := NewSessionBroadcaster(manager, 8)
	err := b.BroadcastToPlayers([]string{"alice", "bob"}, network.MsgTypeEvent, []byte("{}"))
	if err == nil {
		t.Error("Expected the first send error to be returned")
	}
	if bob.count() != 1 {
		t.Error("Bob should still receive the message")
	}
}

func TestSessionBroadcaster_NotifyAfterStop(t *testing.T) {
	manager := session.NewManager()
	b := NewSessionBroadcaster(manager, 1)
	b.Start()
	b.Stop()
	b.Notify(services.Event{Type: services.EventGameEnded})
	b.Stop()
}

func TestSessionBroadcaster_BroadcastToAll(t *testing.T) {
	manager := session.NewManager()
	a := connect(manager, "s1", "alice")
	anon := connect(manager, "s2", "")

	b := NewSessionBroadcaster(manager, 1)
	if err := b.BroadcastToAll(network.MsgTypeEvent, []byte("{}")); err != nil {
		t.Fatalf("BroadcastToAll failed: %v", err)
	}
	if a.count() != 1 || anon.count() != 1 {
		t.Error("Every session should receive the broadcast")
	}
}
