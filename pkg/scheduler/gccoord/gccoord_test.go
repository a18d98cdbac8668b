// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package gccoord

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/loomdb/loom/pkg/scheduler/tasklist"
	"github.com/stretchr/testify/require"
)

type fakeSched struct {
	id  int32
	run int32
}

func (s *fakeSched) ID() int32 { return s.id }
func (s *fakeSched) Handle(task tasklist.MiscTask) {
	task()
}

func TestSweepAllRunsEverySchedulerOnce(t *testing.T) {
	c := New(2)
	fleet := []Triggerable{&fakeSched{id: 1}, &fakeSched{id: 2}, &fakeSched{id: 3}}

	var ran int32
	err := c.SweepAll(context.Background(), fleet, func(s Triggerable) {
		atomic.AddInt32(&ran, 1)
	})
	require.NoError(t, err)
	require.Equal(t, int32(3), ran)
}

func TestSweepAllSkipsSchedulerAlreadyInFlight(t *testing.T) {
	c := New(4)
	s := &fakeSched{id: 1}
	c.inFlight.Add(1)

	var ran int32
	err := c.SweepAll(context.Background(), []Triggerable{s}, func(Triggerable) {
		atomic.AddInt32(&ran, 1)
	})
	require.NoError(t, err)
	require.Equal(t, int32(0), ran, "a scheduler already marked in-flight is skipped")
}

func TestSweepAllIsolatesPanicPerScheduler(t *testing.T) {
	c := New(2)
	fleet := []Triggerable{&fakeSched{id: 1}, &fakeSched{id: 2}}

	var ran int32
	require.NotPanics(t, func() {
		_ = c.SweepAll(context.Background(), fleet, func(s Triggerable) {
			atomic.AddInt32(&ran, 1)
			if s.ID() == 1 {
				panic("boom")
			}
		})
	})
	require.Equal(t, int32(2), ran)
}
