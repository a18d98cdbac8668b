// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

//go:build linux

package eventloop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/loomdb/loom/pkg/util/log"
)

// epollLoop is the Linux implementation of Loop, backed by epoll(7) and an
// eventfd used as the wake primitive.
type epollLoop struct {
	epfd   int
	wakeFd int

	mu        sync.Mutex
	callbacks map[int32]Callback
	closed    bool

	wakePending atomic.Bool

	queuedBytes atomic.Int64
}

// queueLargeThreshold is the outbound-bytes watermark above which
// IsQueueLarge reports backpressure.
const queueLargeThreshold = 1 << 20

// NewLoop constructs the platform poller.
func NewLoop() (Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}

	l := &epollLoop{
		epfd:      epfd,
		wakeFd:    wakeFd,
		callbacks: make(map[int32]Callback),
	}
	if err := l.Register(wakeFd, EventRead, l.drainWake); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func toEpollEvents(e IOEvents) uint32 {
	var mask uint32
	if e&EventRead != 0 {
		mask |= unix.EPOLLIN
	}
	if e&EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func fromEpollEvents(mask uint32) IOEvents {
	var e IOEvents
	if mask&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		e |= EventRead
	}
	if mask&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if mask&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		e |= EventError
	}
	return e
}

func (l *epollLoop) Register(fd int, events IOEvents, cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl add fd %d", fd)
	}
	l.callbacks[int32(fd)] = cb
	return nil
}

func (l *epollLoop) Modify(fd int, events IOEvents) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl mod fd %d", fd)
	}
	return nil
}

func (l *epollLoop) Deregister(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	delete(l.callbacks, int32(fd))
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.ENOENT) {
		return errors.Wrapf(err, "epoll_ctl del fd %d", fd)
	}
	return nil
}

func (l *epollLoop) Poll(ctx context.Context, timeout int) (int, error) {
	var events [128]unix.EpollEvent
	n, err := unix.EpollWait(l.epfd, events[:], timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "epoll_wait")
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		l.mu.Lock()
		cb, ok := l.callbacks[fd]
		l.mu.Unlock()
		if !ok {
			continue
		}
		cb(fromEpollEvents(events[i].Events))
		dispatched++
	}
	return dispatched, nil
}

func (l *epollLoop) drainWake(IOEvents) {
	var buf [8]byte
	for {
		_, err := unix.Read(l.wakeFd, buf[:])
		if err != nil {
			break
		}
	}
	l.wakePending.Store(false)
}

func (l *epollLoop) Wake() error {
	if !l.wakePending.CompareAndSwap(false, true) {
		return nil
	}
	one := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(l.wakeFd, one[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		log.Warningf(context.Background(), "eventloop: wake write failed: %v", err)
		return errors.Wrap(err, "eventfd write")
	}
	return nil
}

func (l *epollLoop) Write(fd int, data []byte) (int, error) {
	l.QueueOutbound(len(data))
	n, err := unix.Write(fd, data)
	if n > 0 {
		l.DequeueOutbound(n)
	}
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return n, nil
		}
		return n, errors.Wrapf(err, "write fd %d", fd)
	}
	return n, nil
}

func (l *epollLoop) QueueOutbound(n int) {
	l.queuedBytes.Add(int64(n))
}

func (l *epollLoop) DequeueOutbound(n int) {
	l.queuedBytes.Add(-int64(n))
}

func (l *epollLoop) IsQueueLarge() bool {
	return l.queuedBytes.Load() > queueLargeThreshold
}

func (l *epollLoop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	unix.Close(l.wakeFd)
	return unix.Close(l.epfd)
}
