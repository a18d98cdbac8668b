// Copyright 2017 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package fsm exposes a small finite-state-machine builder. A Machine is
// defined by a Pattern mapping (State, Event) pairs to Transitions; States
// and Events are plain structs matched by value, which lets callers use
// Wildcard and Binding fields (see match.go) to collapse many concrete
// (State, Event) pairs into one rule.
//
// The session lifecycle (open -> mark-closed -> closed) is expressed as a
// Machine built from a Pattern, the same way the teacher expresses SQL
// connection-executor state.
package fsm

import "fmt"

// State is implemented by the possible states of a Machine.
type State interface {
	State()
}

// Event is implemented by the possible events delivered to a Machine.
type Event interface {
	Event()
}

// Args is passed to a Transition's Action.
type Args struct {
	Ctx   interface{}
	Prev  State
	Event Event
}

// Action is run on a transition. It may return an error, which aborts the
// transition (the Machine stays in Prev).
type Action func(Args) error

// Transition describes the next State and an optional Action to run when a
// particular Event is observed.
type Transition struct {
	Next   State
	Action Action
}

// Machine runs a state machine defined by an expanded Pattern.
type Machine struct {
	pattern Pattern
	cur     State
}

// MakeMachine constructs a Machine starting in start, driven by pattern.
// pattern is expanded (wildcards and bindings resolved) exactly once here.
func MakeMachine(pattern Pattern, start State) Machine {
	return Machine{pattern: expandPattern(pattern), cur: start}
}

// CurState returns the current state.
func (m *Machine) CurState() State {
	return m.cur
}

// Apply delivers an event to the machine, running any associated Action and
// moving to the Transition's Next state. It panics if no transition is
// defined for (CurState, event) - an undefined transition is a programming
// error in the caller, not a runtime condition to recover from.
func (m *Machine) Apply(ectx interface{}, event Event) error {
	em, ok := m.pattern[m.cur]
	if !ok {
		panic(fmt.Sprintf("no transitions defined for state %T", m.cur))
	}
	t, ok := em[event]
	if !ok {
		panic(fmt.Sprintf("no transition defined for event %T in state %T", event, m.cur))
	}
	if t.Action != nil {
		if err := t.Action(Args{Ctx: ectx, Prev: m.cur, Event: event}); err != nil {
			return err
		}
	}
	m.cur = t.Next
	return nil
}
