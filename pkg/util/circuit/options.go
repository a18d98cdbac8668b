// Copyright 2021 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package circuit

// AsyncProbe launches a probe that determines whether the breaker should
// reset. It may call report with the probe's outcome (nil resets the
// breaker, non-nil re-trips it) and must call done exactly once when it
// finishes; a probe that only calls done leaves the breaker tripped.
type AsyncProbe func(report func(error), done func())

// EventHandler observes a Breaker's state transitions. Every method must
// return promptly; they are called while the Breaker may be held under
// lock.
type EventHandler interface {
	// OnTrip is called when the breaker transitions from not-tripped to
	// tripped, or when a tripped breaker's error changes. prev is the
	// previous error, if any.
	OnTrip(b *Breaker, prev, cur error)
	// OnProbeLaunched is called when a probe starts.
	OnProbeLaunched(b *Breaker)
	// OnProbeDone is called when a probe finishes, regardless of outcome.
	OnProbeDone(b *Breaker)
	// OnReset is called when the breaker is reset, tripped or not.
	OnReset(b *Breaker)
}

// Options configures a Breaker.
type Options struct {
	// Name identifies the breaker in logs and diagnostics.
	Name string
	// AsyncProbe determines whether the breaker should heal after tripping.
	AsyncProbe AsyncProbe
	// EventHandler observes state transitions. Defaults to a no-op handler
	// if left nil.
	EventHandler EventHandler
}

// EventLogger is a no-op EventHandler, suitable as a default when a
// caller has no monitoring hooked up.
type EventLogger struct{}

func (EventLogger) OnTrip(*Breaker, error, error) {}
func (EventLogger) OnProbeLaunched(*Breaker)       {}
func (EventLogger) OnProbeDone(*Breaker)           {}
func (EventLogger) OnReset(*Breaker)               {}
