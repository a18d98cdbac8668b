// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package session

import (
	"context"
	"time"

	"github.com/loomdb/loom/pkg/scheduler/tasklist"
)

// Registry is the ordered list of sessions a scheduler owns, plus an
// id-indexed lookup map. It is single-owner: only the scheduler's run-loop
// goroutine may call its methods.
type Registry struct {
	order  *tasklist.List[*Session]
	byID   map[ID]*tasklist.Node[*Session]
	closed *ClosedSessionCache
}

// NewRegistry returns an empty Registry. Reaped sessions are recorded in
// closed for later inspection; pass nil to skip that bookkeeping.
func NewRegistry(closed *ClosedSessionCache) *Registry {
	return &Registry{
		order:  &tasklist.List[*Session]{},
		byID:   make(map[ID]*tasklist.Node[*Session]),
		closed: closed,
	}
}

// AddSession registers s at the tail of the registry's order.
func (r *Registry) AddSession(s *Session) {
	n := r.order.PushBack(s)
	r.byID[s.ID()] = n
}

// RemoveSession unlinks s from the registry. A no-op if s is not present.
func (r *Registry) RemoveSession(s *Session) {
	n, ok := r.byID[s.ID()]
	if !ok {
		return
	}
	r.order.Remove(n)
	delete(r.byID, s.ID())
}

// Lookup returns the session with the given id, if present.
func (r *Registry) Lookup(id ID) (*Session, bool) {
	n, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return n.Value(), true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int { return r.order.Len() }

// ForEach visits every session in registration order. fn may remove the
// session it was just given from the registry: ForEach always advances past
// the current node before fn could possibly unlink it.
func (r *Registry) ForEach(fn func(*Session)) {
	r.order.ForEach(func(n *tasklist.Node[*Session]) {
		fn(n.Value())
	})
}

// ReapClosed removes every mark-closed session: it drains the session's
// task queue, moves it to closed, unlinks it and records it in the
// closed-session cache. Called once per housekeeping pass; CheckSessionTimeout only marks
// sessions closed, it never unlinks them, so this is where the deferred
// removal actually happens.
func (r *Registry) ReapClosed(ctx context.Context) {
	var toReap []*Session
	r.order.ForEach(func(n *tasklist.Node[*Session]) {
		s := n.Value()
		if s.IsMarkClosed() && !s.IsClosed() {
			// A mark-closed session is only safe to reap once its
			// per-session queue has drained, mirroring the dispatcher's
			// "destroyed lazily" rule.
			s.RunSessionTasks(ctx)
		}
		if s.IsMarkClosed() {
			toReap = append(toReap, s)
		}
	})
	for _, s := range toReap {
		s.Reap(ctx)
		r.RemoveSession(s)
		if r.closed != nil {
			r.closed.Add(s)
		}
	}
}

// CheckSessionTimeout marks-closed any session whose last activity exceeds
// its timeout budget. It never unlinks during its own traversal.
func (r *Registry) CheckSessionTimeout(ctx context.Context) {
	now := time.Now()
	r.order.ForEach(func(n *tasklist.Node[*Session]) {
		s := n.Value()
		if s.CheckTimeout(now) {
			s.MarkClosed(ctx)
		}
	})
}

// RunSessionTasks drains every session's per-session task queue once.
func (r *Registry) RunSessionTasks(ctx context.Context) {
	r.order.ForEach(func(n *tasklist.Node[*Session]) {
		n.Value().RunSessionTasks(ctx)
	})
}

// GetNextBestCommand scans the registry once and returns the
// non-closed, non-excluded session's command with the strictly greatest
// priority above minPriority, with list order breaking ties in favor of the
// first session seen. checkTimeout is passed through to each session so a
// timed-out command can self-abort during selection.
func (r *Registry) GetNextBestCommand(ctx context.Context, excl ID, hasExcl bool, minPriority int32, checkTimeout bool) YieldableCommand {
	var best YieldableCommand
	var bestPriority = minPriority
	r.order.ForEach(func(n *tasklist.Node[*Session]) {
		s := n.Value()
		if hasExcl && s.ID() == excl {
			return
		}
		if s.IsMarkClosed() {
			return
		}
		cmd := s.GetYieldableCommand(ctx, checkTimeout)
		if cmd == nil {
			return
		}
		if cmd.Priority() > bestPriority {
			best = cmd
			bestPriority = cmd.Priority()
		}
	})
	return best
}
