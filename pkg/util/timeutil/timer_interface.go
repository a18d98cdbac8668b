// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package timeutil

import "time"

// TimerI is an interface wrapping Timer, allowing production code to accept
// either a real Timer or a manually-driven fake in tests.
type TimerI interface {
	Reset(d time.Duration)
	Stop() bool
}

// timer is the concrete type backing Timer's TimerI conversion; it has the
// same memory layout as Timer so the conversion in AsTimerI is free.
type timer Timer

// Reset implements TimerI.
func (t *timer) Reset(d time.Duration) { (*Timer)(t).Reset(d) }

// Stop implements TimerI.
func (t *timer) Stop() bool { return (*Timer)(t).Stop() }
