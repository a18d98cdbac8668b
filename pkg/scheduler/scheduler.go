// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package scheduler implements the per-thread cooperative scheduler: one
// event loop, one acceptor-bridge participant, one session validator, one
// session registry, and a priority-based command dispatcher, all driven
// from a single goroutine with no shared mutable state on the hot path.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/petermattis/goid"

	"github.com/loomdb/loom/pkg/eventloop"
	"github.com/loomdb/loom/pkg/scheduler/accept"
	"github.com/loomdb/loom/pkg/scheduler/metrics"
	"github.com/loomdb/loom/pkg/scheduler/session"
	"github.com/loomdb/loom/pkg/scheduler/tasklist"
	"github.com/loomdb/loom/pkg/scheduler/validator"
	"github.com/loomdb/loom/pkg/util/circuit"
	"github.com/loomdb/loom/pkg/util/log"
	"github.com/loomdb/loom/pkg/util/stop"
)

// Scheduler is a long-running worker pinned conceptually to one OS thread.
// It owns its session registry, task lists, and event loop exclusively; no
// other goroutine mutates them. The only cross-goroutine touch points are
// the MiscQueue (MPSC), the event loop's Wake, and the acceptor bridge's
// CAS handoff.
type Scheduler struct {
	id             int32
	totalSchedulers int32
	baseLoad       int64
	sessionTimeout time.Duration
	pollTimeoutMs  int

	ownerGoroutine int64

	loop      eventloop.Loop
	bridge    *accept.Bridge
	validator *validator.Validator
	sessions  *session.Registry
	misc      *tasklist.MiscQueue
	periodic  *tasklist.PeriodicRegistry

	pendingInit *tasklist.List[*session.InitTask]

	nextBestCommand session.YieldableCommand
	lastCommand     session.YieldableCommand

	closedSessions *session.ClosedSessionCache

	pageOps     PageOpQueue
	pendingTxs  TransactionEngine
	pendingTask PendingTaskQueue
	memory      MemoryManager

	stopper *stop.Stopper
	stopped atomic.Bool

	pollBreaker *circuit.Breaker
	metrics     *metrics.Metrics
}

// Metrics returns the scheduler's prometheus collectors, for the embedder
// to register with its own registry.
func (s *Scheduler) Metrics() *metrics.Metrics { return s.metrics }

// New constructs a Scheduler from cfg and its collaborators. The scheduler
// does not start running until Run is called from the goroutine that will
// own it for its lifetime.
func New(cfg Config, loop eventloop.Loop, bridge *accept.Bridge, engine TransactionEngine, mem MemoryManager, pageOps PageOpQueue, pendingTasks PendingTaskQueue) *Scheduler {
	closedSessions := session.NewClosedSessionCache(
		int(cfg.Int(ConfigKeyClosedSessionCacheCapacity, 100)),
		cfg.Duration(ConfigKeyClosedSessionCacheTTL, time.Hour),
	)
	s := &Scheduler{
		id:              int32(cfg.Int(ConfigKeyID, 0)),
		totalSchedulers: int32(cfg.Int(ConfigKeySchedulerCount, 1)),
		baseLoad:        cfg.Int(ConfigKeyBaseLoad, 0),
		sessionTimeout:  cfg.Duration(ConfigKeySessionTimeout, 30*time.Minute),
		pollTimeoutMs:   int(cfg.Int(ConfigKeyPollTimeoutMillis, 1000)),
		loop:            loop,
		bridge:          bridge,
		validator:       validator.New(validator.DefaultConfig()),
		sessions:        session.NewRegistry(closedSessions),
		closedSessions:  closedSessions,
		misc:            tasklist.NewMiscQueue(),
		periodic:        tasklist.NewPeriodicRegistry(time.Now),
		pendingInit:     &tasklist.List[*session.InitTask]{},
		pageOps:         pageOps,
		pendingTxs:      engine,
		pendingTask:     pendingTasks,
		memory:          mem,
		stopper:         stop.NewStopper(),
	}
	s.metrics = metrics.New(s.id)
	s.pollBreaker = circuit.NewBreaker(circuit.Options{
		Name: "scheduler.poll",
		// A tripped poll breaker means the selector itself is broken; there
		// is nothing to probe for, so the only way out is an operator
		// restart. The probe just acknowledges the launch without ever
		// reporting success.
		AsyncProbe: func(report func(error), done func()) { done() },
	})
	return s
}

// ClosedSessions returns the scheduler's closed-session diagnostic cache.
func (s *Scheduler) ClosedSessions() *session.ClosedSessionCache { return s.closedSessions }

// ID returns the scheduler's fleet-unique id.
func (s *Scheduler) ID() int32 { return s.id }

// assertOwner panics if called from any goroutine other than the one that
// called Run, mirroring the single-owner invariant the whole component is
// built around.
func (s *Scheduler) assertOwner() {
	if g := goid.Get(); g != s.ownerGoroutine {
		log.Fatalf(context.Background(), "scheduler %d: accessed from non-owning goroutine", s.id)
	}
}

// Handle submits a misc one-shot task. Safe to call from any goroutine.
func (s *Scheduler) Handle(task tasklist.MiscTask) {
	s.misc.Push(task)
	_ = s.loop.Wake()
}

// WakeLoop wakes a blocked Poll call. Safe from any goroutine; satisfies
// accept.Scheduler.
func (s *Scheduler) WakeLoop() { _ = s.loop.Wake() }

// EnqueueInitFromAccept builds a SessionInitTask from a freshly-accepted
// connection fd and enqueues it locally. Satisfies accept.Scheduler. The fd
// is registered with the event loop and bound as the session's error sink
// only once the handshake actually completes: a not-yet-ready or failed
// attempt leaves the fd unregistered so it isn't polled for a session that
// was never created.
func (s *Scheduler) EnqueueInitFromAccept(fd int) {
	s.AddSessionInitTask(&session.InitTask{
		Attempt: func(ctx context.Context) (session.InitOutcome, *session.Session, error) {
			if !s.validator.CanHandleNextSessionInitTask() {
				return session.InitNotReady, nil, nil
			}
			s.validator.Consume()

			conn := newConnection(fd, s.loop)
			sess := session.New(session.NewID(), s.id, s.sessionTimeout, conn.sendError)
			conn.sess = sess
			if err := s.loop.Register(fd, eventloop.EventRead|eventloop.EventWrite, conn.onEvent); err != nil {
				return session.InitFailed, nil, errors.Wrapf(err, "register accepted fd %d", fd)
			}
			return session.InitComplete, sess, nil
		},
	})
}

// AddSession registers a session with this scheduler, owner-thread only.
func (s *Scheduler) AddSession(sess *session.Session) {
	s.assertOwner()
	s.sessions.AddSession(sess)
}

// RemoveSession unregisters a session, owner-thread only.
func (s *Scheduler) RemoveSession(sess *session.Session) {
	s.assertOwner()
	s.sessions.RemoveSession(sess)
}

// AddPeriodicTask registers task. Owner-thread only once the scheduler is
// running; the initial set may be registered from the constructing thread
// before Run is called.
func (s *Scheduler) AddPeriodicTask(task *tasklist.PeriodicTask) {
	s.periodic.Add(task)
}

// RemovePeriodicTask unregisters task. Owner-thread only.
func (s *Scheduler) RemovePeriodicTask(task *tasklist.PeriodicTask) {
	s.assertOwner()
	s.periodic.Remove(task)
}

// AddSessionInitTask enqueues a deferred handshake attempt, owner-thread
// only (it is reached exclusively via the acceptor bridge callback, which
// always runs on the winning scheduler's own goroutine).
func (s *Scheduler) AddSessionInitTask(task *session.InitTask) {
	s.pendingInit.PushBack(task)
}

// ValidateSession records the outcome of a credential check against the
// admission-control validator.
func (s *Scheduler) ValidateSession(isAuthCorrect bool) {
	s.validator.Validate(isAuthCorrect)
}

// RegisterAccepter makes listener acceptable by this scheduler (and any
// other schedulers also passed as eligible).
func (s *Scheduler) RegisterAccepter(listener accept.Listener, eligible []accept.Scheduler) {
	s.bridge.Register(listener, eligible)
}

// Register binds a connection's channel to this scheduler's event loop.
func (s *Scheduler) Register(fd int, events eventloop.IOEvents, cb eventloop.Callback) error {
	return s.loop.Register(fd, events, cb)
}

// GetLoad returns the scheduler's base load plus its live session count.
// Non-negative, monotone in session count modulo churn.
func (s *Scheduler) GetLoad() int64 {
	load := s.baseLoad + int64(s.sessions.Len())
	s.metrics.Load.Set(float64(load))
	s.metrics.SessionsActive.Set(float64(s.sessions.Len()))
	return load
}

// Stop requests the run loop to exit after completing its current
// iteration. In-flight commands are dropped; their sessions receive no
// further responses.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Run drives the scheduler's main loop until Stop is called. It must be
// called from the goroutine that will own the scheduler for its entire
// lifetime; all single-owner assertions are pinned to this call's
// goroutine id.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ownerGoroutine = goid.Get()
	s.periodic.BindOwner()

	for !s.stopped.Load() {
		if err := s.pollBreaker.Signal().Err(); err != nil {
			log.Errorf(ctx, "scheduler %d: terminating after fatal selector failure: %v", s.id, err)
			break
		}
		s.admitListeners(ctx)
		s.admitSessions(ctx)
		s.misc.Drain(func(r interface{}) {
			s.metrics.MiscTaskPanics.Inc()
			log.Warningf(ctx, "scheduler %d: misc task panicked: %v", s.id, r)
		})
		if s.pageOps != nil {
			s.pageOps.RunDuePageOps(ctx)
		}
		s.sessions.RunSessionTasks(ctx)
		if s.pendingTxs != nil {
			s.pendingTxs.RunPendingTransactions(ctx)
		}
		if s.pendingTask != nil {
			s.pendingTask.RunPendingTasks(ctx)
		}
		s.executeNextStatement(ctx)

		if _, err := s.loop.Poll(ctx, s.pollTimeoutMs); err != nil {
			log.Warningf(ctx, "scheduler %d: event loop poll failed: %v", s.id, err)
			if errors.Is(err, eventloop.ErrClosed) {
				s.pollBreaker.Report(err)
			}
		}
	}
	s.loop.Close()
	return nil
}

// admitListeners is the acceptor phase of each iteration and does no work.
// RegisterAccepter records a listener with the bridge but does not register
// the listener's fd with the event loop, so nothing in this package calls
// the bridge's OnReadable; accepted connections reach the scheduler only
// through EnqueueInitFromAccept.
func (s *Scheduler) admitListeners(ctx context.Context) {}

// admitSessions drains the session-init list up to what the validator will
// admit, stopping as soon as it refuses further admission.
func (s *Scheduler) admitSessions(ctx context.Context) {
	c := s.pendingInit.Front()
	for n := c.Next(); n != nil; n = c.Next() {
		if !s.validator.CanHandleNextSessionInitTask() {
			return
		}
		task := n.Value()
		c.RemoveCurrent()

		outcome, sess, err := task.Attempt(ctx)
		switch outcome {
		case session.InitComplete:
			s.sessions.AddSession(sess)
			s.metrics.SessionsAdmitted.Inc()
		case session.InitFailed:
			s.metrics.SessionsRefused.Inc()
			if err != nil {
				log.Warningf(ctx, "scheduler %d: session init failed: %v", s.id, err)
			}
		case session.InitNotReady:
			s.pendingInit.PushBack(task.Requeue())
		}
	}
}

// executeNextStatement implements the dispatcher's main selection loop
// (§4.5). It is the most subtle part of the scheduler: it must make forward
// progress on commands while never starving housekeeping under steady
// command flow.
func (s *Scheduler) executeNextStatement(ctx context.Context) {
	for {
		if s.loop.IsQueueLarge() && s.validator.CanDrainWrites() {
			_, _ = s.loop.Poll(ctx, 0)
		}
		s.gc(ctx)

		cmd := s.nextBestCommand
		s.nextBestCommand = nil
		if cmd == nil {
			cmd = s.sessions.GetNextBestCommand(ctx, session.ID{}, false, session.MinPriority-1, true)
		}
		if cmd == nil {
			s.sessions.RunSessionTasks(ctx)
			cmd = s.sessions.GetNextBestCommand(ctx, session.ID{}, false, session.MinPriority-1, true)
		}
		if cmd == nil {
			s.deepHousekeeping(ctx)
			cmd = s.sessions.GetNextBestCommand(ctx, session.ID{}, false, session.MinPriority-1, true)
			if cmd == nil {
				return
			}
		}

		outcome, err := cmd.Advance(ctx)
		s.metrics.CommandsDispatched.Inc()
		switch outcome {
		case session.StepError:
			sess := cmd.Session()
			if sess != nil {
				sess.SendError(ctx, cmd.PacketID(), err)
			} else {
				log.Warningf(ctx, "scheduler %d: command error with no owning session: %v", s.id, err)
			}
		case session.StepDone:
			if sess := cmd.Session(); sess != nil {
				sess.SetCurrentCommand(nil)
			}
		case session.StepYielded:
			// The command voluntarily yielded via yieldIfNeeded; it has
			// already installed its successor into nextBestCommand.
		}

		if cmd == s.lastCommand {
			// Anti-starvation: under steady command flow from a single
			// dominant session, interleave housekeeping so page-ops,
			// session tasks and misc tasks are never permanently starved.
			if s.pageOps != nil {
				s.pageOps.RunDuePageOps(ctx)
			}
			s.sessions.RunSessionTasks(ctx)
			s.misc.Drain(func(r interface{}) {
				s.metrics.MiscTaskPanics.Inc()
				log.Warningf(ctx, "scheduler %d: misc task panicked: %v", s.id, r)
			})
		}
		s.lastCommand = cmd
	}
}

// deepHousekeeping runs the full interleaved sequence the dispatcher falls
// back to when no command was immediately available.
func (s *Scheduler) deepHousekeeping(ctx context.Context) {
	s.admitListeners(ctx)
	s.sessions.CheckSessionTimeout(ctx)
	if s.periodic != nil && !s.stopped.Load() {
		s.periodic.RunDue(ctx)
	}
	if s.pageOps != nil {
		s.pageOps.RunDuePageOps(ctx)
	}
	s.sessions.RunSessionTasks(ctx)
	if s.pendingTxs != nil {
		s.pendingTxs.RunPendingTransactions(ctx)
	}
	s.misc.Drain(func(r interface{}) {
		s.metrics.MiscTaskPanics.Inc()
		log.Warningf(ctx, "scheduler %d: misc task panicked: %v", s.id, r)
	})
	before := s.sessions.Len()
	s.sessions.ReapClosed(ctx)
	if reaped := before - s.sessions.Len(); reaped > 0 {
		s.metrics.SessionsReaped.Add(float64(reaped))
	}
}

// YieldIfNeeded implements the yield protocol (§4.6). It is called from
// within a running statement at a safe point.
func (s *Scheduler) YieldIfNeeded(ctx context.Context, current session.YieldableCommand) bool {
	s.admitListeners(ctx)
	if _, err := s.loop.Poll(ctx, 0); err != nil {
		log.Warningf(ctx, "scheduler %d: yield poll failed: %v", s.id, err)
	}
	s.admitSessions(ctx)
	s.sessions.RunSessionTasks(ctx)

	if s.sessions.Len() < 2 {
		return false
	}

	better := s.sessions.GetNextBestCommand(ctx, current.Session().ID(), true, current.Priority(), false)
	if better == nil {
		return false
	}

	s.nextBestCommand = better
	current.SetPriority(current.Priority() + 1)
	s.metrics.CommandsYielded.Inc()
	return true
}

// gc implements the GC coordinator's own-iteration check (§4.7): a sweep
// runs only once the memory manager reports pressure.
func (s *Scheduler) gc(ctx context.Context) {
	if s.memory == nil || !s.memory.NeedFullGC() {
		return
	}
	s.ForceGC(ctx)
}

// ForceGC runs a GC sweep unconditionally, bypassing the memory-pressure
// check gc() otherwise gates on. gc() calls it once pressure is detected on
// this scheduler's own iteration; it is also the entry point an out-of-band
// fleet-wide sweep (gccoord.Coordinator.SweepAll, triggered by an operator
// rather than by this scheduler noticing pressure itself) hands each
// scheduler in the fleet. Satisfies gccoord.Triggerable's sweep callback
// together with Handle and ID.
func (s *Scheduler) ForceGC(ctx context.Context) {
	s.sessions.ForEach(func(sess *session.Session) {
		sess.ClearQueryCache()
	})
	if s.pendingTxs != nil {
		s.pendingTxs.FullGC(ctx, s.totalSchedulers, s.id)
	}
	s.metrics.GCSweeps.Inc()
}
