// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package log

import (
	"sync/atomic"
	"time"
)

// EveryN provides a way to rate limit spammy log messages. It tracks how
// recently a given log message has been emitted so that it can determine
// whether it's worth logging again.
type EveryN struct {
	N       time.Duration
	lastNs  atomic.Int64
}

// Every is a convenience constructor for an EveryN object that allows a log
// message every n duration.
func Every(n time.Duration) EveryN {
	return EveryN{N: n}
}

// ShouldLog returns whether it's been more than N time since the last
// event that returned true from this method.
func (e *EveryN) ShouldLog() bool {
	now := time.Now().UnixNano()
	last := e.lastNs.Load()
	if time.Duration(now-last) < e.N {
		return false
	}
	return e.lastNs.CompareAndSwap(last, now)
}
