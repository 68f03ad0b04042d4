// Package focus decides when a focus change should save the host's open work.
package focus

import (
	"sync"
	"time"
)

// Kind discriminates focus events
type Kind int

const (
	// HostFocused means a window of the host process became the foreground window
	HostFocused Kind = iota + 1
	// OtherFocused means a window of any other process became the foreground window
	OtherFocused
)

func (k Kind) String() string {
	switch k {
	case HostFocused:
		return "host_focused"
	case OtherFocused:
		return "other_focused"
	default:
		return "unknown"
	}
}

// Event is one focus change raised by the OS
type Event struct {
	Kind      Kind
	Type      uint32
	Window    uintptr
	ProcessID uint32
	ThreadID  uint32
	Time      time.Time
}

// State is the observer's whole mutable state
type State struct {
	// Armed is set when the host was focused since the last trigger
	Armed bool
	// HostClosing is set once the host began shutting down and never reset
	HostClosing bool
}

// Action is what the caller must do after a transition
type Action int

const (
	None Action = iota
	TriggerSave
)

func (a Action) String() string {
	if a == TriggerSave {
		return "trigger_save"
	}
	return "none"
}

// Transition applies ev to s. It is total: unknown kinds leave the state untouched.
func Transition(s State, ev Event) (State, Action) {
	if s.HostClosing {
		return s, None
	}

	switch ev.Kind {
	case HostFocused:
		s.Armed = true
		return s, None
	case OtherFocused:
		if s.Armed {
			s.Armed = false
			return s, TriggerSave
		}
		return s, None
	}

	return s, None
}

// Decision records one transition taken by a Machine
type Decision struct {
	Prev    State
	Next    State
	Action  Action
	Stopped bool
}

// Machine serializes transitions and the closing signal over one State
type Machine struct {
	mu      sync.Mutex
	state   State
	stopped bool
}

// NewMachine returns a machine in the initial state (not armed, host not closing)
func NewMachine() *Machine {
	return &Machine{}
}

// Handle applies ev atomically with respect to every other input
func (m *Machine) Handle(ev Event) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return Decision{Prev: m.state, Next: m.state, Action: None, Stopped: true}
	}

	prev := m.state
	next, action := Transition(prev, ev)
	m.state = next
	return Decision{Prev: prev, Next: next, Action: action}
}

// MarkClosing records that the host is shutting down. It reports whether this
// call changed the state.
func (m *Machine) MarkClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.HostClosing {
		return false
	}
	m.state.HostClosing = true
	return true
}

// Stop makes every later Handle a no-op
func (m *Machine) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// State returns a copy of the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
