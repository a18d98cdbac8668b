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

type fakeCommand struct {
	sessionID ID
	packetID  int64
	priority  int32
	sess      *Session
	advance   func() (StepOutcome, error)
}

func (c *fakeCommand) SessionID() ID           { return c.sessionID }
func (c *fakeCommand) PacketID() int64         { return c.packetID }
func (c *fakeCommand) Priority() int32         { return c.priority }
func (c *fakeCommand) SetPriority(p int32)     { c.priority = p }
func (c *fakeCommand) Session() *Session       { return c.sess }
func (c *fakeCommand) Advance(context.Context) (StepOutcome, error) {
	if c.advance != nil {
		return c.advance()
	}
	return StepDone, nil
}

func newTestSession(t *testing.T, priority int32) (*Session, *fakeCommand) {
	s := New(NewID(), 1, time.Hour, nil)
	cmd := &fakeCommand{sessionID: s.ID(), priority: priority, sess: s}
	s.SetCurrentCommand(cmd)
	return s, cmd
}

func TestRegistryAddRemoveRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t, 1)
	b, _ := newTestSession(t, 2)
	r.AddSession(a)
	r.AddSession(b)
	require.Equal(t, 2, r.Len())

	r.RemoveSession(a)
	require.Equal(t, 1, r.Len())
	_, ok := r.Lookup(a.ID())
	require.False(t, ok)

	r.AddSession(a)
	require.Equal(t, 2, r.Len())
}

func TestGetNextBestCommandPriorityPreemption(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t, 5)
	b, _ := newTestSession(t, 9)
	r.AddSession(a)
	r.AddSession(b)

	best := r.GetNextBestCommand(context.Background(), ID{}, false, MinPriority-1, false)
	require.NotNil(t, best)
	require.Equal(t, b.ID(), best.SessionID(), "strictly higher priority session wins")
}

func TestGetNextBestCommandTieBreaksOnListOrder(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t, 5)
	b, _ := newTestSession(t, 5)
	r.AddSession(a)
	r.AddSession(b)

	best := r.GetNextBestCommand(context.Background(), ID{}, false, MinPriority-1, false)
	require.Equal(t, a.ID(), best.SessionID(), "first-seen wins on equal priority")
}

func TestGetNextBestCommandSkipsMarkClosed(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t, 5)
	c, _ := newTestSession(t, 50)
	r.AddSession(a)
	r.AddSession(c)
	c.MarkClosed(context.Background())

	best := r.GetNextBestCommand(context.Background(), ID{}, false, MinPriority-1, false)
	require.Equal(t, a.ID(), best.SessionID(), "mark-closed session is never selected even with a dominant priority")
}

func TestGetNextBestCommandExcludesGivenSession(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := newTestSession(t, 5)
	b, _ := newTestSession(t, 9)
	r.AddSession(a)
	r.AddSession(b)

	best := r.GetNextBestCommand(context.Background(), a.ID(), true, MinPriority-1, false)
	require.Equal(t, b.ID(), best.SessionID())

	best = r.GetNextBestCommand(context.Background(), b.ID(), true, MinPriority-1, false)
	require.Equal(t, a.ID(), best.SessionID())
}

func TestCheckSessionTimeoutNeverUnlinksDuringTraversal(t *testing.T) {
	r := NewRegistry(nil)
	a := New(NewID(), 1, time.Nanosecond, nil)
	b := New(NewID(), 1, time.Hour, nil)
	r.AddSession(a)
	r.AddSession(b)

	time.Sleep(time.Millisecond)
	r.CheckSessionTimeout(context.Background())

	require.Equal(t, 2, r.Len(), "timeout check only marks closed, never unlinks")
	require.True(t, a.IsMarkClosed())
	require.False(t, b.IsMarkClosed())

	r.ReapClosed(context.Background())
	require.Equal(t, 1, r.Len())
	_, ok := r.Lookup(a.ID())
	require.False(t, ok)
}
