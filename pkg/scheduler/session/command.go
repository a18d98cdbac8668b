// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package session holds the Session, SessionRegistry, YieldableCommand, and
// SessionInitTask types the dispatcher operates on.
package session

import "context"

// StepOutcome is the result of one bounded slice of a YieldableCommand's
// execution. A YieldableCommand is modeled as an explicit step function
// rather than a coroutine: no per-task stack is kept alive across dispatcher
// iterations.
type StepOutcome int

const (
	// StepDone indicates the command finished and should be dropped.
	StepDone StepOutcome = iota
	// StepYielded indicates the command voluntarily gave up the thread and
	// wants to be reconsidered on a future dispatch.
	StepYielded
	// StepError indicates the command failed; the error is surfaced on the
	// owning session's communication channel.
	StepError
)

// MinPriority is the sentinel floor priority; getNextBestCommand never
// returns a command at or below this value unless explicitly asked to.
const MinPriority = int32(-1<<31 + 1)

// YieldableCommand is a partially-executed SQL statement that advances in
// bounded, yieldable steps. The dispatcher never holds one across an
// event-loop poll except by way of the scheduler's single-slot cache.
type YieldableCommand interface {
	// SessionID returns the id of the owning session.
	SessionID() ID
	// PacketID identifies which client request this command answers, so a
	// failure can be routed back to the right response slot.
	PacketID() int64
	// Priority returns the command's current scheduling priority. Higher
	// values run first.
	Priority() int32
	// SetPriority overrides the command's priority; used by the yield
	// protocol to raise a yielding command's competitiveness.
	SetPriority(p int32)
	// Advance runs one bounded step and reports what happened. It must
	// never block.
	Advance(ctx context.Context) (StepOutcome, error)
	// Session returns the owning Session.
	Session() *Session
}
