package state

import (
	"errors"
	"testing"
)

func TestGameMachine_InitialState(t *testing.T) {
	sm := NewGameMachine()

	if sm.Current() != Waiting {
		t.Errorf("Expected initial state waiting, got %s", sm.Current())
	}
}

func TestGameMachine_ForwardOnly(t *testing.T) {
	sm := NewGameMachine()

	if err := sm.ChangeState(Ended); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("waiting -> ended must be rejected, got %v", err)
	}
	if err := sm.ChangeState(Active); err != nil {
		t.Fatalf("waiting -> active should be allowed, got %v", err)
	}
	if err := sm.ChangeState(Waiting); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("active -> waiting must be rejected, got %v", err)
	}
	if err := sm.ChangeState(Ended); err != nil {
		t.Fatalf("active -> ended should be allowed, got %v", err)
	}
	if sm.Can(Active) || sm.Can(Waiting) || sm.Can(Ended) {
		t.Error("ended must be terminal")
	}
}

func TestMachine_GuardBlocksTransition(t *testing.T) {
	blocked := errors.New("blocked")
	sm := NewGameMachine()
	if err := sm.SetGuard(Waiting, Active, func() error { return blocked }); err != nil {
		t.Fatalf("SetGuard failed: %v", err)
	}

	entered := false
	sm.OnEnter(Active, func() { entered = true })

	if err := sm.ChangeState(Active); !errors.Is(err, blocked) {
		t.Fatalf("Expected guard error, got %v", err)
	}
	if sm.Current() != Waiting {
		t.Errorf("Expected state to remain waiting after a blocked transition, got %s", sm.Current())
	}
	if entered {
		t.Error("OnEnter should not run if the transition is blocked")
	}
}

func TestMachine_OnEnterRuns(t *testing.T) {
	sm := NewGameMachine()
	var order []Status
	sm.OnEnter(Active, func() { order = append(order, Active) })
	sm.OnEnter(Ended, func() { order = append(order, Ended) })

	_ = sm.ChangeState(Active)
	_ = sm.ChangeState(Ended)

	if len(order) != 2 || order[0] != Active || order[1] != Ended {
		t.Errorf("Unexpected hook order %v", order)
	}
}

func TestSetGuard_UnknownTransition(t *testing.T) {
	sm := NewGameMachine()
	if err := sm.SetGuard(Ended, Waiting, nil); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []Status{Waiting, Active, Ended} {
		text, _ := s.MarshalText()
		var parsed Status
		if err := parsed.UnmarshalText(text); err != nil || parsed != s {
			t.Errorf("round trip of %s failed: %v %v", s, parsed, err)
		}
	}
	if _, err := ParseStatus("paused"); err == nil {
		t.Error("Expected error for unknown status")
	}
}
