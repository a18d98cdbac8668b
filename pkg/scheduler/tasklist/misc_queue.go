// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package tasklist

import "sync"

// MiscTask is a one-shot function submittable from any goroutine and run by
// the owning scheduler during a housekeeping pass.
type MiscTask func()

const miscChunkSize = 256

// miscChunk is a fixed-size segment of a MiscQueue's backing storage. Chunks
// are recycled through a shared pool so a steady stream of misc tasks does
// not churn the allocator one task at a time.
type miscChunk struct {
	data [miscChunkSize]MiscTask
	next *miscChunk
}

var miscChunkPool = sync.Pool{
	New: func() interface{} { return new(miscChunk) },
}

func getMiscChunk() *miscChunk {
	return miscChunkPool.Get().(*miscChunk)
}

func putMiscChunk(c *miscChunk) {
	for i := range c.data {
		c.data[i] = nil
	}
	c.next = nil
	miscChunkPool.Put(c)
}

// MiscQueue is an MPSC FIFO: Push is safe from any goroutine, Pop/Drain are
// for the owning scheduler only. Internally it chunks storage the same way
// the rangefeed scheduler's processor-id queue does, so a long-running queue
// under steady load doesn't allocate one node per task.
type MiscQueue struct {
	mu          sync.Mutex
	first, last *miscChunk
	read, write int
	size        int
}

// NewMiscQueue returns an empty MiscQueue.
func NewMiscQueue() *MiscQueue {
	chunk := getMiscChunk()
	return &MiscQueue{first: chunk, last: chunk}
}

// Push enqueues a task. Safe to call concurrently from any goroutine.
func (q *MiscQueue) Push(task MiscTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.write == miscChunkSize {
		next := getMiscChunk()
		q.last.next = next
		q.last = next
		q.write = 0
	}
	q.last.data[q.write] = task
	q.write++
	q.size++
}

// Len reports the number of tasks currently queued.
func (q *MiscQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// popFront removes and returns the oldest task, or (nil, false) if empty.
// It pops before the caller runs the task, so a panicking task is never
// re-executed on a subsequent drain.
func (q *MiscQueue) popFront() (MiscTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil, false
	}
	if q.read == miscChunkSize {
		removed := q.first
		q.first = q.first.next
		putMiscChunk(removed)
		q.read = 0
	}
	t := q.first.data[q.read]
	q.first.data[q.read] = nil
	q.read++
	q.size--
	if q.size == 0 {
		// Drain-to-empty resets both cursors so the next chunk allocated by
		// Push starts fresh rather than inheriting a stale read offset.
		q.read, q.write = 0, 0
	}
	return t, true
}

// DrainResult counts, for one Drain call, the tasks that ran to completion
// (Ran) and the tasks that panicked (Panic).
type DrainResult struct {
	Ran   int
	Panic int
}

// Drain pops and runs every task currently queued, one at a time, until the
// queue is empty. A task that panics is recovered, reported via onPanic (if
// non-nil), and does not stop the drain or get re-enqueued.
func (q *MiscQueue) Drain(onPanic func(recovered interface{})) DrainResult {
	var result DrainResult
	for {
		task, ok := q.popFront()
		if !ok {
			return result
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					result.Panic++
					if onPanic != nil {
						onPanic(r)
					}
				}
			}()
			task()
			result.Ran++
		}()
	}
}
