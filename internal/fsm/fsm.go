// Package fsm implements a small finite-state machine engine. States decide
// transitions by themselves; the machine only routes events and executes the
// chosen transition in a fixed order.
package fsm

import (
	"fmt"
	"sync/atomic"
)

// Event is an event routed to the current state. Its meaning is defined by
// the user of the machine.
type Event uint16

// State is a node of the machine.
type State interface {
	// Enter is called when the machine enters the state.
	Enter()
	// Exit is called when the machine leaves the state.
	Exit()
	// ProcessEvent handles the given event and returns the transition to
	// take, or nil to stay in the current state without side effects.
	ProcessEvent(Event) *Transition
}

// InitialState is the state the machine starts in. Init is called exactly
// once, before the first Enter.
type InitialState interface {
	State
	Init()
}

// Transition is an edge of the machine. A transition with a nil Destination
// runs its Action without leaving the current state.
type Transition struct {
	Destination State
	Action      func()
}

// To returns a transition to the given state.
func To(dst State) *Transition {
	return &Transition{Destination: dst}
}

// Execute runs the side effect of the transition, if any.
func (t *Transition) Execute() {
	if t.Action != nil {
		t.Action()
	}
}

// Status is the result of Machine.Dispatch.
type Status uint8

const (
	// StatusOK means the event was routed.
	StatusOK Status = iota
	// StatusBusy means a dispatch was already in progress and the event was
	// dropped.
	StatusBusy
	// StatusError means the machine has not been initialized.
	StatusError
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusy:
		return "busy"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Machine routes events to its current state. It is meant to be driven from a
// single goroutine; the busy flag only rejects reentrant dispatches.
type Machine struct {
	initial InitialState
	current State
	busy    atomic.Bool
}

// New creates a new machine starting in the given state.
func New(initial InitialState) *Machine {
	return &Machine{initial: initial}
}

// Init initializes and enters the initial state. It must be called once
// before Dispatch.
func (m *Machine) Init() {
	m.initial.Init()
	m.initial.Enter()
	m.current = m.initial
}

// Dispatch routes the event to the current state and executes the returned
// transition. A dispatch issued while another one is running, for example
// from inside a state handler, is rejected with StatusBusy.
func (m *Machine) Dispatch(ev Event) Status {
	if m.current == nil {
		return StatusError
	}

	if !m.busy.CompareAndSwap(false, true) {
		return StatusBusy
	}
	defer m.busy.Store(false)

	m.execute(m.current.ProcessEvent(ev))
	return StatusOK
}

func (m *Machine) execute(t *Transition) {
	switch {
	case t == nil:
		return
	case t.Destination == nil:
		t.Execute()
	default:
		m.current.Exit()
		t.Execute()
		t.Destination.Enter()
		m.current = t.Destination
	}
}

// InState returns true if the machine is currently in the given state.
func (m *Machine) InState(s State) bool {
	return m.current == s
}

// Current returns the current state, or nil before Init.
func (m *Machine) Current() State {
	return m.current
}
