// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package validator implements the admission-control gate a scheduler
// consults before attempting each session-init task: a permit budget that
// decays geometrically under sustained auth failure and restores linearly
// on success, informed by an exponentially-weighted failure rate.
package validator

import (
	"time"

	"github.com/VividCortex/ewma"
	"golang.org/x/time/rate"

	"github.com/loomdb/loom/pkg/util/quotapool"
	"github.com/loomdb/loom/pkg/util/ring"
	"github.com/loomdb/loom/pkg/util/timeutil"
)

// Config tunes the validator. Ceiling and Floor bound the permit
// replenishment rate; DecayFactor shrinks the rate on each failure-window
// breach; RestoreStep is the linear per-success increment back toward
// Ceiling; FailureWindow is the sliding window of recent outcomes the
// failure rate is computed over; FailureThreshold is the rate above which
// the validator starts throttling.
type Config struct {
	Ceiling          quotapool.TokensPerSecond
	Floor            quotapool.TokensPerSecond
	Burst            quotapool.Tokens
	DecayFactor      float64
	RestoreStep      quotapool.TokensPerSecond
	FailureWindow    int
	FailureThreshold float64

	// WriteDrainRate and WriteDrainBurst bound how often the dispatcher may
	// force an extra drain poll when the event loop's outbound queue is
	// large, independent of the session-init admission budget above.
	WriteDrainRate  rate.Limit
	WriteDrainBurst int
}

// DefaultConfig returns reasonable defaults for a single scheduler's
// session-init admission gate.
func DefaultConfig() Config {
	return Config{
		Ceiling:          quotapool.TokensPerSecond(50),
		Floor:            quotapool.TokensPerSecond(1),
		Burst:            quotapool.Tokens(10),
		DecayFactor:      0.5,
		RestoreStep:      quotapool.TokensPerSecond(2),
		FailureWindow:    32,
		FailureThreshold: 0.5,
		WriteDrainRate:   rate.Limit(200),
		WriteDrainBurst:  20,
	}
}

// Validator tracks recent auth outcomes and throttles new session-init
// admission once the failure rate crosses Config.FailureThreshold. It is
// accessed only by its owning scheduler and so needs no internal locking.
type Validator struct {
	cfg Config

	bucket quotapool.TokenBucket
	rate   quotapool.TokensPerSecond

	failureRate ewma.MovingAverage
	outcomes    ring.Buffer

	writeDrain *rate.Limiter
}

// New constructs a Validator starting at the configured ceiling rate.
func New(cfg Config) *Validator {
	v := &Validator{
		cfg:  cfg,
		rate: cfg.Ceiling,
		// The average is seeded at zero below: unseeded, the library's
		// variable-age average reports 0 until it has seen ten samples, so
		// the first outcomes could never move the permit rate.
		failureRate: ewma.NewMovingAverage(float64(cfg.FailureWindow)),
	}
	v.failureRate.Set(0)
	v.bucket.Init(cfg.Ceiling, cfg.Burst, timeutil.DefaultTimeSource{})
	v.outcomes.Reserve(cfg.FailureWindow)
	v.writeDrain = rate.NewLimiter(cfg.WriteDrainRate, cfg.WriteDrainBurst)
	return v
}

// Validate is called after each credential check with whether the auth
// attempt succeeded. It updates the failure-rate signal and adjusts the
// permit replenishment rate: geometric decay toward Floor on sustained
// failure, linear restoration toward Ceiling on success.
func (v *Validator) Validate(isCorrect bool) {
	outcome := 0.0
	if !isCorrect {
		outcome = 1.0
	}
	v.failureRate.Add(outcome)
	v.outcomes.AddLast(isCorrect)
	if v.outcomes.Len() > v.cfg.FailureWindow {
		v.outcomes.RemoveFirst()
	}

	if v.failureRate.Value() > v.cfg.FailureThreshold {
		v.rate = quotapool.TokensPerSecond(float64(v.rate) * v.cfg.DecayFactor)
		if v.rate < v.cfg.Floor {
			v.rate = v.cfg.Floor
		}
	} else {
		v.rate += v.cfg.RestoreStep
		if v.rate > v.cfg.Ceiling {
			v.rate = v.cfg.Ceiling
		}
	}
	v.bucket.UpdateConfig(v.rate, v.cfg.Burst)
}

// CanHandleNextSessionInitTask reports whether the permit budget currently
// has a token available. It does not consume one; callers that proceed
// with an init attempt should follow up with Consume.
func (v *Validator) CanHandleNextSessionInitTask() bool {
	fulfilled, _ := v.bucket.TryToFulfill(1)
	if fulfilled {
		v.bucket.Adjust(1)
	}
	return fulfilled
}

// Consume withdraws one permit from the budget, called once an init task is
// actually admitted for an attempt.
func (v *Validator) Consume() bool {
	fulfilled, _ := v.bucket.TryToFulfill(1)
	return fulfilled
}

// CanDrainWrites reports whether the dispatcher may force another
// zero-timeout poll to drain outbound writes right now, bounding how often
// a single session's backpressure can force extra poll syscalls.
func (v *Validator) CanDrainWrites() bool {
	return v.writeDrain.Allow()
}

// CurrentRate returns the validator's current permit replenishment rate,
// exposed for metrics.
func (v *Validator) CurrentRate() quotapool.TokensPerSecond { return v.rate }

// CooldownRemaining returns how long until the next permit would be
// available, useful for tests asserting the "at least one loop iteration
// admits zero new init tasks" scenario.
func (v *Validator) CooldownRemaining() time.Duration {
	fulfilled, wait := v.bucket.TryToFulfill(1)
	if fulfilled {
		v.bucket.Adjust(1)
	}
	return wait
}
