// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package accept implements the fleet-level acceptor bridge: a registry
// mapping each listen socket to the set of schedulers eligible to accept on
// it, with a lock-free per-listener owner slot so exactly one scheduler
// wins any given readiness event.
package accept

import (
	"context"
	"sync/atomic"

	"github.com/loomdb/loom/pkg/util/log"
)

// unowned is the sentinel owner value for a listener slot with no scheduler
// currently racing to accept on it.
const unowned = -1

// Listener is anything the bridge can accept a connection from and register
// a session-init task against.
type Listener interface {
	// FD returns the listener's file descriptor, for event-loop
	// registration.
	FD() int
	// AcceptOne performs one non-blocking accept, returning the accepted
	// connection's descriptor or an error if none is ready.
	AcceptOne() (int, error)
}

// Scheduler is the subset of scheduler behavior the bridge needs: enqueue a
// session-init task locally and wake its own event loop.
type Scheduler interface {
	ID() int32
	EnqueueInitFromAccept(fd int)
	WakeLoop()
}

// entry tracks one listener's eligible schedulers and current owner.
type entry struct {
	listener Listener
	eligible []Scheduler
	owner    atomic.Int32
}

// Bridge is the fleet-level acceptor registry. A single Bridge is shared
// read-only across every scheduler in the fleet; the only mutable state per
// listener is the CAS owner slot.
type Bridge struct {
	listeners map[int]*entry
}

// New returns an empty Bridge.
func New() *Bridge {
	return &Bridge{listeners: make(map[int]*entry)}
}

// Register makes listener acceptable by any of the given schedulers.
func (b *Bridge) Register(listener Listener, eligible []Scheduler) {
	e := &entry{listener: listener, eligible: eligible}
	e.owner.Store(unowned)
	b.listeners[listener.FD()] = e
}

// Deregister removes listener from the bridge.
func (b *Bridge) Deregister(listener Listener) {
	delete(b.listeners, listener.FD())
}

// OnReadable is called by whichever scheduler's event loop observed
// listener's fd become readable. Exactly one caller across the fleet wins
// the CAS and performs the accept; losers return immediately having done
// nothing, which is safe because the winner's accept will drain the
// pending connection backlog entry the readiness event announced.
func (b *Bridge) OnReadable(ctx context.Context, fd int, by Scheduler) {
	e, ok := b.listeners[fd]
	if !ok {
		return
	}
	if !e.owner.CompareAndSwap(unowned, by.ID()) {
		return
	}
	defer e.owner.Store(unowned)

	connFD, err := e.listener.AcceptOne()
	if err != nil {
		log.Warningf(ctx, "acceptor: accept on fd %d failed: %v", fd, err)
		return
	}
	by.EnqueueInitFromAccept(connFD)
	by.WakeLoop()
}

// Eligible returns the schedulers registered as eligible acceptors for fd,
// for tests and diagnostics.
func (b *Bridge) Eligible(fd int) []Scheduler {
	e, ok := b.listeners[fd]
	if !ok {
		return nil
	}
	return e.eligible
}
