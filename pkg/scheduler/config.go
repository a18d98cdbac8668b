// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package scheduler

import (
	"strconv"
	"time"
)

// Config is the key/value map a scheduler is constructed from. There is no
// configuration file or CLI surface in the core; cmd/loomd is responsible
// for turning flags into one of these per scheduler.
type Config map[string]string

// Int returns the integer value of key, or def if absent or unparsable.
func (c Config) Int(key string, def int64) int64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Duration returns the duration value of key, or def if absent or
// unparsable.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	v, ok := c[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

const (
	// ConfigKeyID names the scheduler's own fleet-unique id.
	ConfigKeyID = "id"
	// ConfigKeySchedulerCount names the total size of the scheduler fleet,
	// used to partition TransactionEngine.FullGC calls.
	ConfigKeySchedulerCount = "schedulerCount"
	// ConfigKeySessionTimeout names the per-session inactivity timeout.
	ConfigKeySessionTimeout = "sessionTimeout"
	// ConfigKeyPollTimeoutMillis names the event loop's per-iteration
	// maximum blocking duration in milliseconds.
	ConfigKeyPollTimeoutMillis = "pollTimeoutMillis"
	// ConfigKeyBaseLoad names the constant added to live session count by
	// GetLoad.
	ConfigKeyBaseLoad = "baseLoad"
	// ConfigKeyClosedSessionCacheCapacity names the maximum number of
	// reaped sessions retained for diagnostics.
	ConfigKeyClosedSessionCacheCapacity = "closedSessionCacheCapacity"
	// ConfigKeyClosedSessionCacheTTL names how long a reaped session stays
	// visible in diagnostics before aging out.
	ConfigKeyClosedSessionCacheTTL = "closedSessionCacheTTL"
)
