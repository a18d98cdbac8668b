// Copyright 2024 The Loom Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the file licenses/APL.txt.

// Package tasklist provides the single-owner list and queue structures the
// scheduler uses to track sessions, session-init tasks, periodic tasks, and
// misc one-shot work. Every type here assumes it is mutated by exactly one
// goroutine (the owning scheduler), except MiscQueue, whose push side is an
// MPSC handoff from any goroutine.
package tasklist

// Node holds one value stored in a List. It carries the
// doubly-linked pointers and a back-reference to the list it belongs to, so
// that Remove can detach a node during traversal without the list needing
// to re-scan for it, and so a node can assert it belongs to at most one
// list at a time.
type Node[T any] struct {
	next, prev *Node[T]
	list       *List[T]
	value      T
}

// Value returns the payload stored at this node.
func (n *Node[T]) Value() T { return n.value }

// List is a doubly-linked list with precise size tracking and
// remove-during-traversal support, replacing the intrusive singly-linked
// list with self-reference hazards. It is not safe for concurrent use; only
// the owning scheduler thread may call its methods.
type List[T any] struct {
	head, tail *Node[T]
	size       int
}

// Len returns the number of nodes currently in the list.
func (l *List[T]) Len() int { return l.size }

// PushBack appends value to the tail of the list and returns its node,
// which the caller can later pass to Remove.
func (l *List[T]) PushBack(value T) *Node[T] {
	n := &Node[T]{value: value, list: l}
	if l.tail == nil {
		l.head = n
		l.tail = n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.size++
	return n
}

// Remove detaches n from the list it belongs to. It is a no-op if n is nil
// or already detached. Safe to call while a Cursor from the same list is
// positioned at n: the cursor always advances before Remove is invoked on
// the node it just visited.
func (l *List[T]) Remove(n *Node[T]) {
	if n == nil || n.list != l {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next, n.prev, n.list = nil, nil, nil
	l.size--
}

// Cursor walks a List front-to-back, allowing the current node to be
// removed safely: Next() always captures the following node before the
// caller has a chance to unlink the current one.
type Cursor[T any] struct {
	list *List[T]
	cur  *Node[T]
	next *Node[T]
}

// Front returns a cursor positioned before the first node.
func (l *List[T]) Front() *Cursor[T] {
	return &Cursor[T]{list: l, next: l.head}
}

// Next advances the cursor and returns the node now current, or nil once
// the list is exhausted.
func (c *Cursor[T]) Next() *Node[T] {
	c.cur = c.next
	if c.cur != nil {
		c.next = c.cur.next
	}
	return c.cur
}

// RemoveCurrent removes the node the cursor last returned from Next without
// disturbing the cursor's ability to continue iterating.
func (c *Cursor[T]) RemoveCurrent() {
	c.list.Remove(c.cur)
	c.cur = nil
}

// ForEach visits every node's value in order. fn may call Remove on the
// list (via a captured *Node) for the node currently being visited; doing
// so is safe because ForEach always advances to the next node first.
func (l *List[T]) ForEach(fn func(*Node[T])) {
	c := l.Front()
	for n := c.Next(); n != nil; n = c.Next() {
		fn(n)
	}
}
