// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/loomdb/loom/pkg/scheduler/tasklist"
	"github.com/loomdb/loom/pkg/util/syncutil"
	"github.com/loomdb/loom/pkg/util/timeutil"
)

// ClosedSessionCache is an in-memory FIFO cache of recently reaped sessions,
// kept around so an operator can still inspect a session shortly after it
// closes. Entries age out on a time-to-live and the cache evicts its
// oldest entry once it is at capacity.
type ClosedSessionCache struct {
	capacity int
	ttl      time.Duration

	mu struct {
		syncutil.Mutex
		entries tasklist.List[*closedSessionEntry]
	}
}

type closedSessionEntry struct {
	id       ID
	closedAt time.Time
}

// NewClosedSessionCache creates a ClosedSessionCache with the given
// capacity and time-to-live.
func NewClosedSessionCache(capacity int, ttl time.Duration) *ClosedSessionCache {
	return &ClosedSessionCache{capacity: capacity, ttl: ttl}
}

// Add records a closed session in the cache, evicting the oldest entry if
// the cache is at capacity.
func (c *ClosedSessionCache) Add(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mu.entries.PushBack(&closedSessionEntry{
		id:       sess.ID(),
		closedAt: timeutil.Now(),
	})
	for c.mu.entries.Len() > c.capacity {
		if n := c.mu.entries.Front().Next(); n != nil {
			c.mu.entries.Remove(n)
		}
	}
}

// Len returns the number of live (non-expired) entries in the cache.
func (c *ClosedSessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	return c.mu.entries.Len()
}

// View returns a human-readable summary of the cache, oldest first, used
// for diagnostics. Returns "empty" if the cache holds no live entries.
func (c *ClosedSessionCache) View() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()

	var lines []string
	c.mu.entries.ForEach(func(n *tasklist.Node[*closedSessionEntry]) {
		e := n.Value()
		lines = append(lines, fmt.Sprintf("id: %s age: %s", e.id, timeutil.Now().Sub(e.closedAt).Round(time.Second)))
	})
	if len(lines) == 0 {
		return "empty"
	}
	return strings.Join(lines, "\n")
}

// Clear removes every entry from the cache.
func (c *ClosedSessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.entries = tasklist.List[*closedSessionEntry]{}
}

func (c *ClosedSessionCache) evictExpiredLocked() {
	c.mu.entries.ForEach(func(n *tasklist.Node[*closedSessionEntry]) {
		if timeutil.Now().Sub(n.Value().closedAt) > c.ttl {
			c.mu.entries.Remove(n)
		}
	})
}
