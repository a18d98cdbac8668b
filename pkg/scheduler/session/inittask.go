// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package session

import "context"

// InitOutcome reports what attempting a SessionInitTask produced.
type InitOutcome int

const (
	// InitComplete means a Session was produced and registered.
	InitComplete InitOutcome = iota
	// InitFailed means the handshake failed permanently; the task is
	// dropped and an error reported to the client.
	InitFailed
	// InitNotReady means the handshake needs another attempt; the task is
	// requeued at the tail of the init list.
	InitNotReady
)

// InitTask is a deferred unit of work that attempts to finish a handshake
// and produce a Session. It is restartable: Attempt either completes,
// fails permanently, or reports not-yet-ready.
type InitTask struct {
	// Attempt runs one non-blocking try at completing the handshake. On
	// InitComplete it must return the new Session. On InitFailed it should
	// return the error to report to the client. On InitNotReady both
	// return values are ignored.
	Attempt func(ctx context.Context) (outcome InitOutcome, s *Session, err error)

	attempts int
}

// Requeue returns a copy of the task suitable for appending to the tail of
// the init list. Copying rather than re-linking the same value means the
// task's list node never self-references across a requeue, which the
// intrusive singly-linked design this replaces could not guarantee.
func (t *InitTask) Requeue() *InitTask {
	return &InitTask{Attempt: t.Attempt, attempts: t.attempts + 1}
}

// Attempts returns how many times this logical task (across requeues) has
// been tried.
func (t *InitTask) Attempts() int { return t.attempts }
