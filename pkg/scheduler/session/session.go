// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/loomdb/loom/pkg/scheduler/tasklist"
	"github.com/loomdb/loom/pkg/sql/sessionphase"
	"github.com/loomdb/loom/pkg/util/fsm"
	"github.com/loomdb/loom/pkg/util/log"
)

// ID is a session's stable identity, issued once at handshake completion
// and never reused.
type ID uuid.UUID

// String renders the id for logging.
func (id ID) String() string { return uuid.UUID(id).String() }

// NewID mints a fresh session id.
func NewID() ID { return ID(uuid.New()) }

// lifecycle states, expressed as an fsm.Pattern the same way the teacher
// expresses connection-executor state: open -> markClosed -> closed, plus a
// self-loop on markClose so double-closing is harmless.
type stateOpen struct{}
type stateMarkClosed struct{}
type stateClosed struct{}

func (stateOpen) State()       {}
func (stateMarkClosed) State() {}
func (stateClosed) State()     {}

type eventMarkClose struct{}
type eventReap struct{}

func (eventMarkClose) Event() {}
func (eventReap) Event()      {}

var lifecycle = fsm.Pattern{
	stateOpen{}: {
		eventMarkClose{}: fsm.Transition{Next: stateMarkClosed{}},
	},
	stateMarkClosed{}: {
		eventMarkClose{}: fsm.Transition{Next: stateMarkClosed{}},
		eventReap{}:       fsm.Transition{Next: stateClosed{}},
	},
	stateClosed{}: {},
}

// QueryCache memoizes per-session command artifacts (prepared plans, query
// shapes) so a repeat statement text doesn't redo planning. It is cleared
// by the GC coordinator under memory pressure.
type QueryCache struct {
	entries map[string]interface{}
}

// NewQueryCache returns an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string]interface{})}
}

// Get returns the cached value for key, if any.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Put stores value under key.
func (c *QueryCache) Put(key string, value interface{}) {
	c.entries[key] = value
}

// Clear empties the cache. Idempotent and safe to call between dispatcher
// iterations; never called mid-step of an in-flight command.
func (c *QueryCache) Clear() {
	c.entries = make(map[string]interface{})
}

// SendErrorFunc routes a failed command's error back to the owning
// communication channel, keyed by packet id.
type SendErrorFunc func(ctx context.Context, packetID int64, err error)

// Session is a live client connection and its database session state. It is
// exclusively owned by the scheduler that created it for its entire
// lifetime; there is no migration between schedulers.
type Session struct {
	id         ID
	schedulerID int32

	machine fsm.Machine

	lastActivity time.Time
	timeout      time.Duration

	tasks *tasklist.List[func(ctx context.Context)]

	current  YieldableCommand
	priority int32

	cache *QueryCache
	phase *sessionphase.Times

	sendError SendErrorFunc
}

// New constructs an open Session owned by schedulerID, with the given
// inactivity timeout and error sink.
func New(id ID, schedulerID int32, timeout time.Duration, sendError SendErrorFunc) *Session {
	return &Session{
		id:           id,
		schedulerID:  schedulerID,
		machine:      fsm.MakeMachine(lifecycle, stateOpen{}),
		lastActivity: time.Now(),
		timeout:      timeout,
		tasks:        &tasklist.List[func(ctx context.Context)]{},
		priority:     MinPriority,
		cache:        NewQueryCache(),
		phase:        sessionphase.NewTimes(),
		sendError:    sendError,
	}
}

// ID returns the session's stable identity.
func (s *Session) ID() ID { return s.id }

// SchedulerID returns the id of the scheduler that exclusively owns this
// session.
func (s *Session) SchedulerID() int32 { return s.schedulerID }

// Phase exposes the session's SQL-execution phase timings.
func (s *Session) Phase() *sessionphase.Times { return s.phase }

// Touch records activity now, resetting the inactivity countdown.
func (s *Session) Touch() { s.lastActivity = time.Now() }

// IsMarkClosed reports whether the session has been tombstoned, whether by
// timeout or explicit close. Mark-closed sessions are skipped by command
// selection and reaped opportunistically.
func (s *Session) IsMarkClosed() bool {
	switch s.machine.CurState().(type) {
	case stateMarkClosed, stateClosed:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the session has fully transitioned to closed and
// is eligible for removal from the registry.
func (s *Session) IsClosed() bool {
	_, ok := s.machine.CurState().(stateClosed)
	return ok
}

// MarkClosed tombstones the session. Safe to call more than once.
func (s *Session) MarkClosed(ctx context.Context) {
	if s.IsClosed() {
		return
	}
	if err := s.machine.Apply(ctx, eventMarkClose{}); err != nil {
		log.Warningf(ctx, "session %s: mark-closed transition failed: %v", s.id, err)
	}
}

// Reap finalizes the transition from mark-closed to closed, called once the
// session's queues have drained and it is about to be unlinked from the
// registry.
func (s *Session) Reap(ctx context.Context) {
	if _, ok := s.machine.CurState().(stateMarkClosed); ok {
		if err := s.machine.Apply(ctx, eventReap{}); err != nil {
			log.Warningf(ctx, "session %s: reap transition failed: %v", s.id, err)
		}
	}
}

// CheckTimeout reports whether the session, not yet mark-closed, has
// exceeded its inactivity timeout. It changes no state: callers mark the
// session closed, and the registry unlinks it later in ReapClosed, so a
// traversal in progress is never invalidated.
func (s *Session) CheckTimeout(now time.Time) bool {
	if s.IsMarkClosed() {
		return false
	}
	if s.timeout <= 0 {
		return false
	}
	if now.Sub(s.lastActivity) <= s.timeout {
		return false
	}
	return true
}

// SetCurrentCommand installs cmd as the session's in-flight command,
// deriving the session's priority hint from it. Passing nil clears it.
func (s *Session) SetCurrentCommand(cmd YieldableCommand) {
	s.current = cmd
	if cmd != nil {
		s.priority = cmd.Priority()
	} else {
		s.priority = MinPriority
	}
}

// CurrentCommand returns the session's in-flight command, or nil.
func (s *Session) CurrentCommand() YieldableCommand { return s.current }

// GetYieldableCommand returns the session's current command unless the
// session is mark-closed or, when checkTimeout is set, has just timed out.
// A timed-out session is marked closed here and has a timeout error
// delivered to its current command's packet, satisfying the "D receives a
// timeout error on its next response opportunity" scenario without the
// dispatcher needing to special-case timeouts itself.
func (s *Session) GetYieldableCommand(ctx context.Context, checkTimeout bool) YieldableCommand {
	if s.IsMarkClosed() {
		return nil
	}
	if checkTimeout && s.CheckTimeout(time.Now()) {
		cmd := s.current
		s.MarkClosed(ctx)
		if cmd != nil {
			s.SendError(ctx, cmd.PacketID(), errors.New("session timed out"))
		}
		return nil
	}
	return s.current
}

// SendError routes a command failure to this session's owning channel and
// logs nothing further: propagation to the client is the terminal step.
func (s *Session) SendError(ctx context.Context, packetID int64, err error) {
	if s.sendError != nil {
		s.sendError(ctx, packetID, err)
	}
}

// ClearQueryCache empties the session's per-session plan cache. Called by
// the GC coordinator between dispatcher iterations, never mid-step.
func (s *Session) ClearQueryCache() {
	s.cache.Clear()
}

// QueryCache exposes the session's plan cache for command execution to read
// and populate.
func (s *Session) QueryCache() *QueryCache { return s.cache }

// EnqueueTask appends a per-session task to be run by the next
// RunSessionTasks call, from any goroutine (submission is expected to be
// routed through the scheduler's MiscQueue in practice, but the list itself
// is only ever walked by the owner).
func (s *Session) EnqueueTask(task func(ctx context.Context)) {
	s.tasks.PushBack(task)
}

// RunSessionTasks drains and runs every task queued for this session. A
// panicking task is isolated the same way misc tasks are: logged and
// skipped, never allowed to unwind into the dispatcher.
func (s *Session) RunSessionTasks(ctx context.Context) {
	s.tasks.ForEach(func(n *tasklist.Node[func(ctx context.Context)]) {
		task := n.Value()
		s.tasks.Remove(n)
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warningf(ctx, "session %s: task panicked: %v", s.id, r)
				}
			}()
			task(ctx)
		}()
	})
}
