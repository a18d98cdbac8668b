// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionLifecycleTransitions(t *testing.T) {
	s := New(NewID(), 1, time.Hour, nil)
	require.False(t, s.IsMarkClosed())
	require.False(t, s.IsClosed())

	s.MarkClosed(context.Background())
	require.True(t, s.IsMarkClosed())
	require.False(t, s.IsClosed())

	// Double mark-close is harmless.
	s.MarkClosed(context.Background())
	require.True(t, s.IsMarkClosed())

	s.Reap(context.Background())
	require.True(t, s.IsClosed())
}

func TestSessionTimeoutDeliversErrorAndMarksClosed(t *testing.T) {
	var gotPacket int64
	var gotErr error
	s := New(NewID(), 1, time.Nanosecond, func(ctx context.Context, packetID int64, err error) {
		gotPacket = packetID
		gotErr = err
	})
	cmd := &fakeCommand{sessionID: s.ID(), packetID: 42, priority: 5, sess: s}
	s.SetCurrentCommand(cmd)

	time.Sleep(time.Millisecond)
	got := s.GetYieldableCommand(context.Background(), true)

	require.Nil(t, got, "a timed-out session's next getYieldableCommand returns null")
	require.True(t, s.IsMarkClosed())
	require.Equal(t, int64(42), gotPacket)
	require.Error(t, gotErr)
}

func TestSessionRunTasksIsolatesPanicsAndDrains(t *testing.T) {
	s := New(NewID(), 1, time.Hour, nil)
	var ran []int
	s.EnqueueTask(func(context.Context) { ran = append(ran, 1) })
	s.EnqueueTask(func(context.Context) { panic("boom") })
	s.EnqueueTask(func(context.Context) { ran = append(ran, 3) })

	s.RunSessionTasks(context.Background())
	require.Equal(t, []int{1, 3}, ran)

	ran = nil
	s.RunSessionTasks(context.Background())
	require.Nil(t, ran, "drained queue runs nothing on a second pass")
}

func TestQueryCacheClearIsIdempotent(t *testing.T) {
	c := NewQueryCache()
	c.Put("select 1", "plan")
	c.Clear()
	c.Clear()
	_, ok := c.Get("select 1")
	require.False(t, ok)
}

func TestInitTaskRequeuePreservesIdentityNotLinkage(t *testing.T) {
	var attempts int
	task := &InitTask{Attempt: func(ctx context.Context) (InitOutcome, *Session, error) {
		attempts++
		if attempts < 3 {
			return InitNotReady, nil, nil
		}
		return InitComplete, New(NewID(), 1, time.Hour, nil), nil
	}}

	cur := task
	var completed *Session
	for i := 0; i < 5; i++ {
		outcome, s, _ := cur.Attempt(context.Background())
		if outcome == InitComplete {
			completed = s
			break
		}
		cur = cur.Requeue()
	}

	require.NotNil(t, completed)
	require.Equal(t, 3, attempts)
	require.Equal(t, 2, cur.Attempts())
}
