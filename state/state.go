package state

import (
	"errors"
	"fmt"
)

// Status 游戏生命周期状态
type Status int

const (
	Waiting Status = iota
	Active
	Ended
)

var statusNames = map[Status]string{
	Waiting: "waiting",
	Active:  "active",
	Ended:   "ended",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses the textual form produced by String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Guard 转换条件，返回 error 以拒绝转换
type Guard func() error

// Machine is a transition table over Status. It is not safe for concurrent use;
// the owning game serializes access.
type Machine struct {
	current     Status
	transitions map[Status]map[Status]Guard // from -> to -> condition
	onEnter     map[Status][]func()
}

// NewMachine 创建状态机，初始状态不触发 OnEnter
func NewMachine(initial Status) *Machine {
	return &Machine{
		current:     initial,
		transitions: make(map[Status]map[Status]Guard),
		onEnter:     make(map[Status][]func()),
	}
}

// NewGameMachine returns the waiting → active → ended lifecycle.
func NewGameMachine() *Machine {
	m := NewMachine(Waiting)
	m.AddTransition(Waiting, Active, nil)
	m.AddTransition(Active, Ended, nil)
	return m
}

// AddTransition registers from → to. A nil guard always allows the transition.
func (m *Machine) AddTransition(from, to Status, guard Guard) {
	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[Status]Guard)
	}
	m.transitions[from][to] = guard
}

// SetGuard replaces the guard of an existing transition.
func (m *Machine) SetGuard(from, to Status, guard Guard) error {
	if _, ok := m.transitions[from][to]; !ok {
		return ErrTransitionNotAllowed
	}
	m.transitions[from][to] = guard
	return nil
}

// OnEnter registers a hook run after entering s.
func (m *Machine) OnEnter(s Status, fn func()) {
	m.onEnter[s] = append(m.onEnter[s], fn)
}

// Can reports whether from the current state `to` is a registered transition.
func (m *Machine) Can(to Status) bool {
	_, ok := m.transitions[m.current][to]
	return ok
}

// ChangeState moves to newState if the transition exists and its guard passes.
func (m *Machine) ChangeState(newState Status) error {
	guard, ok := m.transitions[m.current][newState]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, m.current, newState)
	}
	if guard != nil {
		if err := guard(); err != nil {
			return err
		}
	}

	m.current = newState
	for _, fn := range m.onEnter[newState] {
		fn()
	}
	return nil
}

// Current returns the current state.
func (m *Machine) Current() Status {
	return m.current
}
