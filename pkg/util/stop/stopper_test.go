// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package stop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunAsyncTaskRefusedAfterQuiesce(t *testing.T) {
	s := NewStopper()
	s.Quiesce(context.Background())

	err := s.RunAsyncTask(context.Background(), "late", func(context.Context) {})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRunAsyncTaskExAllowsDuringDrainWhenRequested(t *testing.T) {
	s := NewStopper()
	s.Quiesce(context.Background())

	ran := make(chan struct{})
	err := s.RunAsyncTaskEx(context.Background(), "drain-task", true, func(context.Context) {
		close(ran)
	})
	require.NoError(t, err)
	<-ran
}

func TestStopWaitsForOutstandingTasks(t *testing.T) {
	s := NewStopper()
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.RunAsyncTask(context.Background(), "slow", func(context.Context) {
		close(started)
		<-release
	}))

	<-started
	stopped := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the outstanding task finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-stopped
	<-s.IsStopped()
}

func TestStopWithTimeoutReturnsErrOnWedgedTask(t *testing.T) {
	s := NewStopper()
	require.NoError(t, s.RunAsyncTask(context.Background(), "wedged", func(context.Context) {
		select {}
	}))

	err := s.StopWithTimeout(context.Background(), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrDrainTimeout)
	<-s.IsStopped()
}
