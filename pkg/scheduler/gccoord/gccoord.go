// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package gccoord drives a fleet-wide GC sweep across every scheduler's
// own per-iteration gc() check. Each scheduler partitions its own
// TransactionEngine.FullGC work by (totalSchedulers, schedulerID); this
// package only bounds how many of those partitions run concurrently when an
// operator wants to force an immediate sweep out-of-band (e.g. in response
// to an external memory-pressure signal) rather than waiting for each
// scheduler to notice on its own next iteration.
package gccoord

import (
	"context"

	"github.com/marusama/semaphore"

	"github.com/loomdb/loom/pkg/scheduler/tasklist"
	"github.com/loomdb/loom/pkg/util/log"
	"github.com/loomdb/loom/pkg/util/syncutil"
)

// Triggerable is the subset of Scheduler behavior a fleet-wide sweep needs:
// run one gc pass right now, on the scheduler's own goroutine, via its
// misc-task handoff.
type Triggerable interface {
	ID() int32
	Handle(task tasklist.MiscTask)
}

// Coordinator bounds how many schedulers may be mid-FullGC at once, so a
// forced sweep across a large fleet doesn't pressure the transaction
// engine with every partition running simultaneously.
type Coordinator struct {
	sem     semaphore.Semaphore
	inFlight syncutil.Set[int32]
}

// New returns a Coordinator allowing at most maxConcurrent schedulers to be
// running their FullGC partition at once.
func New(maxConcurrent int) *Coordinator {
	return &Coordinator{sem: semaphore.New(maxConcurrent)}
}

// SweepAll triggers an immediate gc pass on every scheduler in the fleet,
// bounded by the coordinator's concurrency limit, and waits for all of them
// to have been handed the task (not for the GC itself to finish, which
// happens asynchronously on each scheduler's own goroutine). A scheduler
// already mid-sweep from a previous SweepAll call is skipped rather than
// queued a second time.
func (c *Coordinator) SweepAll(ctx context.Context, fleet []Triggerable, runGC func(Triggerable)) error {
	for _, sched := range fleet {
		if !c.inFlight.Add(sched.ID()) {
			continue
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.inFlight.Remove(sched.ID())
			return err
		}
		s := sched
		s.Handle(func() {
			defer c.sem.Release(1)
			defer c.inFlight.Remove(s.ID())
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Warningf(ctx, "gccoord: scheduler %d panicked during forced sweep: %v", s.ID(), r)
					}
				}()
				runGC(s)
			}()
		})
	}
	return nil
}
