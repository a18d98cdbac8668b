// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package tasklist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiscQueueDrainRunsEveryTaskExactlyOnceAndIsolatesPanics(t *testing.T) {
	q := NewMiscQueue()
	var ran []int
	for i := 0; i < 10; i++ {
		i := i
		q.Push(func() {
			if i == 4 {
				panic("boom")
			}
			ran = append(ran, i)
		})
	}

	var panics []interface{}
	result := q.Drain(func(r interface{}) { panics = append(panics, r) })

	require.Equal(t, 9, result.Ran)
	require.Equal(t, 1, result.Panic)
	require.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8, 9}, ran)
	require.Len(t, panics, 1)
	require.Equal(t, 0, q.Len())
	require.Nil(t, q.first.next)
}

func TestMiscQueueConcurrentPush(t *testing.T) {
	q := NewMiscQueue()
	var wg sync.WaitGroup
	var mu sync.Mutex
	var count int
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 50, q.Len())
	q.Drain(nil)
	require.Equal(t, 50, count)
}
