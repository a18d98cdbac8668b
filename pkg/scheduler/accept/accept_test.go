// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package accept

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	fd       int
	accepted int32

	// entered and release, when set, hold AcceptOne open so a second
	// OnReadable call can be made while the first still owns the slot.
	entered chan struct{}
	release chan struct{}
}

func (l *fakeListener) FD() int { return l.fd }
func (l *fakeListener) AcceptOne() (int, error) {
	atomic.AddInt32(&l.accepted, 1)
	if l.entered != nil {
		close(l.entered)
		<-l.release
	}
	return 99, nil
}

type fakeScheduler struct {
	id       int32
	enqueued int32
	lastFD   atomic.Int32
	woken    int32
}

func (s *fakeScheduler) ID() int32 { return s.id }
func (s *fakeScheduler) EnqueueInitFromAccept(fd int) {
	atomic.AddInt32(&s.enqueued, 1)
	s.lastFD.Store(int32(fd))
}
func (s *fakeScheduler) WakeLoop() { atomic.AddInt32(&s.woken, 1) }

func TestOnReadableExactlyOneWinner(t *testing.T) {
	b := New()
	l := &fakeListener{fd: 7, entered: make(chan struct{}), release: make(chan struct{})}
	a := &fakeScheduler{id: 1}
	c := &fakeScheduler{id: 2}
	b.Register(l, []Scheduler{a, c})

	// a's accept is held open inside AcceptOne while c observes the same
	// readiness event, so both calls contend for the owner slot at once.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.OnReadable(context.Background(), 7, a)
	}()
	<-l.entered
	b.OnReadable(context.Background(), 7, c)
	close(l.release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&l.accepted), "only one scheduler wins the CAS and accepts")
	require.Equal(t, int32(1), atomic.LoadInt32(&a.enqueued)+atomic.LoadInt32(&c.enqueued))

	var winner *fakeScheduler
	if atomic.LoadInt32(&a.enqueued) == 1 {
		winner = a
	} else {
		winner = c
	}
	require.Equal(t, int32(99), winner.lastFD.Load(), "the accepted connection's own fd is threaded through, not the listener's")
}

func TestOnReadableReleasesOwnerForNextEvent(t *testing.T) {
	b := New()
	l := &fakeListener{fd: 7}
	a := &fakeScheduler{id: 1}
	b.Register(l, []Scheduler{a})

	b.OnReadable(context.Background(), 7, a)
	b.OnReadable(context.Background(), 7, a)

	require.Equal(t, int32(2), atomic.LoadInt32(&l.accepted))
}

func TestOnReadableUnknownFDIsNoOp(t *testing.T) {
	b := New()
	a := &fakeScheduler{id: 1}
	require.NotPanics(t, func() {
		b.OnReadable(context.Background(), 404, a)
	})
}
