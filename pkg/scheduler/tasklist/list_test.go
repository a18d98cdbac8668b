// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package tasklist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPushAndRemove(t *testing.T) {
	l := &List[int]{}
	n1 := l.PushBack(1)
	n2 := l.PushBack(2)
	n3 := l.PushBack(3)
	require.Equal(t, 3, l.Len())

	l.Remove(n2)
	require.Equal(t, 2, l.Len())

	var got []int
	l.ForEach(func(n *Node[int]) { got = append(got, n.Value()) })
	require.Equal(t, []int{1, 3}, got)

	l.Remove(n1)
	l.Remove(n3)
	require.Equal(t, 0, l.Len())
	require.Nil(t, l.head)
	require.Nil(t, l.tail)
}

func TestListRemoveDuringIteration(t *testing.T) {
	l := &List[int]{}
	for i := 0; i < 5; i++ {
		l.PushBack(i)
	}

	var visited []int
	l.ForEach(func(n *Node[int]) {
		visited = append(visited, n.Value())
		if n.Value()%2 == 0 {
			l.Remove(n)
		}
	})

	require.Equal(t, []int{0, 1, 2, 3, 4}, visited, "every node visited exactly once even when removed mid-traversal")
	require.Equal(t, 2, l.Len())

	var remaining []int
	l.ForEach(func(n *Node[int]) { remaining = append(remaining, n.Value()) })
	require.Equal(t, []int{1, 3}, remaining)
}

func TestListRemoveIsNoOpForForeignNode(t *testing.T) {
	a := &List[int]{}
	b := &List[int]{}
	n := a.PushBack(1)
	b.Remove(n)
	require.Equal(t, 1, a.Len())
}
