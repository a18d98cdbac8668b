// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package eventloop implements the non-blocking I/O multiplexer the
// scheduler polls once per iteration. It wraps the platform poller (epoll
// on Linux) behind a small interface so the scheduler never imports
// golang.org/x/sys/unix directly, and it owns the self-pipe used to wake a
// blocked poll when another goroutine needs the owning thread's attention
// (a session handoff, a misc task enqueue, a shutdown request).
package eventloop

import (
	"context"

	"github.com/cockroachdb/errors"
)

// IOEvents is a bitmask of readiness conditions reported for a registered
// file descriptor.
type IOEvents uint32

const (
	// EventRead indicates the fd is ready for a non-blocking read.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the fd is ready for a non-blocking write.
	EventWrite
	// EventError indicates the fd reported an error or hangup condition;
	// the owning session or listener should be torn down.
	EventError
)

// Callback is invoked from the polling goroutine when a registered fd
// reports one or more of the events it was registered for. It must not
// block: the whole point of the loop is that one goroutine services every
// registered fd, so a slow callback stalls all of them.
type Callback func(IOEvents)

// ErrClosed is returned by Loop methods once Close has been called.
var ErrClosed = errors.New("eventloop: closed")

// Loop multiplexes readiness events for a set of file descriptors onto a
// single goroutine, and provides a cross-goroutine Wake primitive so other
// threads can interrupt a blocked Poll.
type Loop interface {
	// Register begins polling fd for the given events, invoking cb from
	// the goroutine that calls Poll whenever fd becomes ready. Register
	// is safe to call from the poll goroutine only; callers on other
	// goroutines must hand the registration request to the owning
	// goroutine via Wake plus a queued task.
	Register(fd int, events IOEvents, cb Callback) error

	// Modify changes the event mask a previously-Registered fd is polled
	// for.
	Modify(fd int, events IOEvents) error

	// Deregister stops polling fd. It is a no-op if fd was never
	// registered.
	Deregister(fd int) error

	// Poll blocks until at least one registered fd is ready, the loop is
	// woken via Wake, or timeout elapses (a negative timeout blocks
	// indefinitely; a zero timeout returns at once with whatever is
	// already ready), then dispatches the corresponding callbacks
	// synchronously before returning the count dispatched.
	Poll(ctx context.Context, timeout int) (int, error)

	// Wake interrupts a blocked Poll call from any goroutine. Multiple
	// concurrent wakes before the loop notices are coalesced into one.
	Wake() error

	// Close releases the poller's kernel resources. Close is idempotent.
	Close() error

	// Write performs one non-blocking write of data to fd, queuing the
	// full length via QueueOutbound up front and dequeuing whatever
	// portion was actually flushed to the wire, so IsQueueLarge reflects
	// real unflushed backlog rather than an estimate. A partial write
	// (or EAGAIN) leaves the remainder queued; the caller is responsible
	// for retrying it, typically from a registered EventWrite callback.
	Write(fd int, data []byte) (int, error)

	// QueueOutbound records n bytes as newly queued for a non-blocking
	// write, so IsQueueLarge can later report backpressure. Connections
	// call this as they buffer response bytes.
	QueueOutbound(n int)

	// DequeueOutbound records n bytes as having been flushed to the wire,
	// the counterpart to QueueOutbound.
	DequeueOutbound(n int)

	// IsQueueLarge reports whether the total bytes queued via
	// QueueOutbound across all connections exceeds the backpressure
	// threshold, signaling the dispatcher should drain writes before
	// running another command.
	IsQueueLarge() bool
}
