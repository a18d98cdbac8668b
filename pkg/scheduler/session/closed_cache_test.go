// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClosedSessionCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewClosedSessionCache(2, time.Hour)
	a := New(NewID(), 1, time.Hour, nil)
	b := New(NewID(), 1, time.Hour, nil)
	d := New(NewID(), 1, time.Hour, nil)

	c.Add(a)
	c.Add(b)
	require.Equal(t, 2, c.Len())

	c.Add(d)
	require.Equal(t, 2, c.Len(), "adding past capacity evicts the oldest entry")
}

func TestClosedSessionCacheClear(t *testing.T) {
	c := NewClosedSessionCache(10, time.Hour)
	c.Add(New(NewID(), 1, time.Hour, nil))
	require.Equal(t, 1, c.Len())

	c.Clear()
	require.Equal(t, 0, c.Len())
	require.Equal(t, "empty", c.View())
}
