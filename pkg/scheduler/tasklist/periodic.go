// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package tasklist

import (
	"context"
	"time"

	"github.com/petermattis/goid"

	"github.com/loomdb/loom/pkg/util/log"
)

// PeriodicTask is a function with a scheduler-local due time and period,
// registered once from the main thread before the scheduler starts or later
// from the owning scheduler thread only. The registry keeps its due time and
// runs it on the first pass at or after that time.
type PeriodicTask struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error

	due time.Time
}

// PeriodicRegistry holds the set of PeriodicTasks for one scheduler. It is
// not safe for concurrent use: every mutating method asserts it is running
// on the goroutine that owns it, the same way the session registry and task
// lists are single-owner by convention rather than by locking.
type PeriodicRegistry struct {
	ownerGoroutine int64
	tasks          []*PeriodicTask
	now            func() time.Time
}

// NewPeriodicRegistry returns a PeriodicRegistry with no bound owner yet,
// so the scheduler's constructing thread can register an initial set of
// tasks before BindOwner pins it to the run-loop goroutine.
func NewPeriodicRegistry(now func() time.Time) *PeriodicRegistry {
	return &PeriodicRegistry{now: now}
}

// BindOwner pins the registry to the calling goroutine. Called once, from
// the scheduler's Run method, after which every mutation is checked against
// that goroutine.
func (r *PeriodicRegistry) BindOwner() {
	r.ownerGoroutine = goid.Get()
}

func (r *PeriodicRegistry) assertOwner() {
	if r.ownerGoroutine == 0 {
		return
	}
	if g := goid.Get(); g != r.ownerGoroutine {
		panic("tasklist: PeriodicRegistry accessed from non-owning goroutine")
	}
}

// Add registers task, due to first run after one period has elapsed.
func (r *PeriodicRegistry) Add(task *PeriodicTask) {
	r.assertOwner()
	task.due = r.now().Add(task.Period)
	r.tasks = append(r.tasks, task)
}

// Remove unregisters task, if present.
func (r *PeriodicRegistry) Remove(task *PeriodicTask) {
	r.assertOwner()
	for i, t := range r.tasks {
		if t == task {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return
		}
	}
}

// RunDue scans every registered task and runs the ones whose due time has
// passed. A task that returns an error is logged and kept registered: per
// the spec's error taxonomy, periodic task failures are never grounds for
// eviction, only for a warning.
func (r *PeriodicRegistry) RunDue(ctx context.Context) {
	r.assertOwner()
	now := r.now()
	for _, t := range r.tasks {
		if now.Before(t.due) {
			continue
		}
		t.due = now.Add(t.Period)
		if err := t.Run(ctx); err != nil {
			log.Warningf(ctx, "periodic task %q failed: %v", t.Name, err)
		}
	}
}

// Len returns the number of registered tasks.
func (r *PeriodicRegistry) Len() int {
	return len(r.tasks)
}
