// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverHealsProbe(report func(error), done func()) { done() }

func TestBreakerTripsOnReportAndStaysTripped(t *testing.T) {
	b := NewBreaker(Options{Name: "test", AsyncProbe: neverHealsProbe})
	require.NoError(t, b.Signal().Err())

	b.Report(nil)
	require.NoError(t, b.Signal().Err(), "nil errors are ignored")

	b.Report(assert.AnError)
	err := b.Signal().Err()
	require.Error(t, err)
	require.True(t, b.HasMark(err))
}

func TestBreakerResetClearsSignal(t *testing.T) {
	b := NewBreaker(Options{Name: "test", AsyncProbe: neverHealsProbe})
	b.Report(assert.AnError)
	require.Error(t, b.Signal().Err())

	b.Reset()
	require.NoError(t, b.Signal().Err())
}
