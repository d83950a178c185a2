package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/roombook/internal/bus"
)

// State represents the daemon's connectivity and replication state.
type State string

const (
	Booting  State = "BOOTING"
	Offline  State = "OFFLINE"
	Online   State = "ONLINE"
	Syncing  State = "SYNCING"
	Degraded State = "DEGRADED" // online, but some operations are quarantined
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Offline, Online, Error},
	Offline:  {Online, Error},
	Online:   {Syncing, Offline, Degraded, Error},
	Syncing:  {Online, Offline, Degraded, Error},
	Degraded: {Syncing, Online, Offline, Error},
	Error:    {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsOnline reports whether the remote backend is currently reachable.
func (m *Machine) IsOnline() bool {
	switch m.Current() {
	case Online, Syncing, Degraded:
		return true
	}
	return false
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Transitioning to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// TransitionIf moves to the given state only while the machine is still in from.
// It reports whether the transition happened.
func (m *Machine) TransitionIf(from, to State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != from {
		return false, nil
	}
	if from == to {
		return true, nil
	}
	if !slices.Contains(validTransitions[from], to) {
		return false, fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return true, nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
