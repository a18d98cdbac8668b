// Copyright 2020 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package timeutil

import "time"

// FullTimeFormat is the time format used to display any timestamp
// with date, time and time zone data.
const FullTimeFormat = "2006-01-02 15:04:05.999999-07:00:00"

// Now returns the current local time, wrapping time.Now so that call sites
// can be swapped uniformly if a monotonic or synthetic clock is ever needed.
func Now() time.Time {
	return time.Now()
}

// Since returns the elapsed time since t, wrapping time.Since.
func Since(t time.Time) time.Duration {
	return time.Since(t)
}

// TimeSource is an interface around time.Now, used to mock out the current
// time in tests of time-driven components such as the session validator's
// token bucket.
type TimeSource interface {
	Now() time.Time
}

// DefaultTimeSource is the production TimeSource, backed by the system
// clock.
type DefaultTimeSource struct{}

// Now implements TimeSource.
func (DefaultTimeSource) Now() time.Time { return time.Now() }
