// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatorThrottlesAfterRepeatedFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureWindow = 8
	v := New(cfg)

	initialRate := v.CurrentRate()
	for i := 0; i < 5; i++ {
		v.Validate(false)
	}
	require.Less(t, float64(v.CurrentRate()), float64(initialRate), "rate decays geometrically under sustained failure")

	rateAfterFailures := v.CurrentRate()
	for i := 0; i < 3; i++ {
		v.Validate(true)
	}
	require.Greater(t, float64(v.CurrentRate()), float64(rateAfterFailures), "successes restore the rate linearly")
}

func TestValidatorNeverGoesBelowFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Floor = 2
	v := New(cfg)
	for i := 0; i < 200; i++ {
		v.Validate(false)
	}
	require.GreaterOrEqual(t, float64(v.CurrentRate()), float64(cfg.Floor))
}

func TestValidatorNeverExceedsCeiling(t *testing.T) {
	cfg := DefaultConfig()
	v := New(cfg)
	for i := 0; i < 200; i++ {
		v.Validate(true)
	}
	require.LessOrEqual(t, float64(v.CurrentRate()), float64(cfg.Ceiling))
}

func TestCanDrainWritesBoundsBurstThenRefuses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteDrainBurst = 2
	v := New(cfg)

	allowed := 0
	for i := 0; i < 5; i++ {
		if v.CanDrainWrites() {
			allowed++
		}
	}
	require.Equal(t, 2, allowed, "only the configured burst is allowed before the limiter refuses")
}

func TestCanHandleNextSessionInitTaskPeeksWithoutConsuming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Burst = 1
	v := New(cfg)

	require.True(t, v.CanHandleNextSessionInitTask())
	require.True(t, v.CanHandleNextSessionInitTask(), "peeking repeatedly does not drain the budget")
	require.True(t, v.Consume(), "the token peeked is still there to consume")
}

func TestValidatorBudgetEventuallyRefusesUnderSaturation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Floor = 0.001
	cfg.Burst = 1
	v := New(cfg)
	for i := 0; i < 20; i++ {
		v.Validate(false)
	}

	admitted := 0
	for i := 0; i < 5; i++ {
		if v.Consume() {
			admitted++
		}
	}
	require.Less(t, admitted, 5, "validator saturated: at least one attempt is refused admission")
}
