// Copyright 2014 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package stop provides the Stopper, a coordinator for graceful shutdown of
// goroutines. Goroutines started through a Stopper's RunAsyncTask or
// RunAsyncTaskEx are tracked so that Stop can wait for them to exit before
// returning.
package stop

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/loomdb/loom/pkg/util/timeutil"
)

// ErrDrainTimeout is returned by StopWithTimeout if tasks have not finished
// draining within the given deadline.
var ErrDrainTimeout = errors.New("stopper: drain timed out")

// ErrUnavailable is returned by RunAsyncTask once the Stopper has begun
// quiescing; callers should treat it like a context cancellation.
var ErrUnavailable = errors.New("stopper unavailable; cannot run task")

// Stopper facilitates synchronized stopping of tasks running as goroutines.
// A task is a unit of work, generally the body of a goroutine. Every task
// run via RunAsyncTask is tracked by a sync.WaitGroup; Stop blocks until
// that WaitGroup has drained.
type Stopper struct {
	quiescer chan struct{}
	stopper  chan struct{}
	stopped  chan struct{}

	mu struct {
		sync.Mutex
		quiescing bool
		draining  bool
	}
	wg sync.WaitGroup
}

// NewStopper returns a new Stopper.
func NewStopper() *Stopper {
	return &Stopper{
		quiescer: make(chan struct{}),
		stopper:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// RunAsyncTask runs fn in its own goroutine, tracked by the Stopper, naming
// it taskName for diagnostics. It returns ErrUnavailable instead of starting
// fn if the Stopper is already quiescing.
func (s *Stopper) RunAsyncTask(ctx context.Context, taskName string, fn func(context.Context)) error {
	s.mu.Lock()
	if s.mu.quiescing {
		s.mu.Unlock()
		return ErrUnavailable
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
	return nil
}

// RunAsyncTaskEx is like RunAsyncTask but additionally tolerates being
// called during the drain window, for tasks that must keep running while
// the Stopper is otherwise quiescing.
func (s *Stopper) RunAsyncTaskEx(ctx context.Context, taskName string, allowDuringDrain bool, fn func(context.Context)) error {
	s.mu.Lock()
	if s.mu.quiescing && !allowDuringDrain {
		s.mu.Unlock()
		return ErrUnavailable
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
	return nil
}

// ShouldQuiesce returns a channel that is closed when Stop is first called,
// signaling that tasks should begin winding down voluntarily.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	return s.quiescer
}

// IsStopped returns a channel that is closed once Stop has seen every
// tracked task finish, or once StopWithTimeout returns, whether or not its
// wait timed out.
func (s *Stopper) IsStopped() <-chan struct{} {
	return s.stopped
}

// Quiesce moves the Stopper into the quiescing state without waiting for
// tasks to finish, closing the channel returned by ShouldQuiesce exactly
// once.
func (s *Stopper) Quiesce(ctx context.Context) {
	s.mu.Lock()
	if !s.mu.quiescing {
		s.mu.quiescing = true
		close(s.quiescer)
	}
	s.mu.Unlock()
}

// Stop signals quiescence and blocks until every task started via
// RunAsyncTask/RunAsyncTaskEx has returned.
func (s *Stopper) Stop(ctx context.Context) {
	s.Quiesce(ctx)
	s.wg.Wait()
	s.markStopped()
}

// StopWithTimeout is like Stop but gives up waiting for outstanding tasks
// once timeout elapses, returning ErrDrainTimeout. The Stopper is still
// marked stopped either way: a timed-out drain does not get a second
// chance, since the goroutines it's waiting on were likely themselves
// wedged.
func (s *Stopper) StopWithTimeout(ctx context.Context, timeout time.Duration) error {
	s.Quiesce(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var t timeutil.Timer
	defer t.Stop()
	t.Reset(timeout)

	select {
	case <-done:
		s.markStopped()
		return nil
	case <-t.C:
		s.markStopped()
		return ErrDrainTimeout
	}
}

func (s *Stopper) markStopped() {
	s.mu.Lock()
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	s.mu.Unlock()
}
