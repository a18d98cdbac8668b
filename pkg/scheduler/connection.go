// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package scheduler

import (
	"context"
	"fmt"

	"github.com/loomdb/loom/pkg/eventloop"
	"github.com/loomdb/loom/pkg/scheduler/session"
	"github.com/loomdb/loom/pkg/util/log"
)

// connection binds one accepted socket to the session it backs. Actual
// wire-protocol framing belongs to the external collaborator that produces
// YieldableCommands (out of scope here per the scheduler's own interface
// boundary); connection only guarantees the fd stays registered with the
// event loop for the session's lifetime and that a command error or
// session timeout produces real bytes on the client's fd instead of
// vanishing silently.
type connection struct {
	fd   int
	loop eventloop.Loop
	sess *session.Session
}

func newConnection(fd int, loop eventloop.Loop) *connection {
	return &connection{fd: fd, loop: loop}
}

// onEvent is registered with the event loop for this connection's fd. It
// must not block: a hung-up or errored fd tombstones the session so the
// registry reaps it on the next housekeeping pass, and a readable fd just
// freshens the session's inactivity clock, since actually parsing the next
// command off the wire is the embedder's job.
func (c *connection) onEvent(events eventloop.IOEvents) {
	if c.sess == nil {
		return
	}
	if events&eventloop.EventError != 0 {
		c.sess.MarkClosed(context.Background())
		return
	}
	if events&eventloop.EventRead != 0 {
		c.sess.Touch()
	}
}

// sendError implements session.SendErrorFunc, delivering a command failure
// or timeout directly to the client fd via the event loop's write path.
func (c *connection) sendError(ctx context.Context, packetID int64, err error) {
	msg := []byte(fmt.Sprintf("error packet=%d: %v\n", packetID, err))
	if _, werr := c.loop.Write(c.fd, msg); werr != nil {
		log.Warningf(ctx, "connection fd %d: failed to deliver error for packet %d: %v", c.fd, packetID, werr)
	}
}
