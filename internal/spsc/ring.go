// crowlink
// Copyright (c) 2025 The CrowDisplay Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of crowlink.
//
// crowlink is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// crowlink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with crowlink; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package spsc provides a fixed-capacity single-producer
// single-consumer ring used to hand received packets from a delivery
// goroutine to the polling loop.
package spsc

import "sync/atomic"

// Ring is a bounded FIFO safe for exactly one producer goroutine and
// one consumer goroutine. Push never blocks and never allocates: a
// full ring drops the new value and counts the drop. The backing
// array is sized at construction and never grows.
type Ring[T any] struct {
	slots   []T
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint32
}

// NewRing returns a ring holding up to capacity values. Capacity below
// one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	// One spare slot distinguishes full from empty.
	return &Ring[T]{slots: make([]T, capacity+1)}
}

// Push stores v from the producer context. It reports false, and
// counts a drop, when the ring is full. The slot write completes
// before the tail advance so the consumer never observes a published
// index ahead of its data.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	next := (tail + 1) % uint32(len(r.slots))
	if next == r.head.Load() {
		r.dropped.Add(1)
		return false
	}
	r.slots[tail] = v
	r.tail.Store(next)
	return true
}

// Pop removes the oldest value from the consumer context. The second
// return is false when the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.slots[head]
	r.slots[head] = zero
	r.head.Store((head + 1) % uint32(len(r.slots)))
	return v, true
}

// Len reports how many values are queued. Only an approximation while
// the producer is concurrently pushing.
func (r *Ring[T]) Len() int {
	n := uint32(len(r.slots))
	head := r.head.Load()
	tail := r.tail.Load()
	return int((tail + n - head) % n)
}

// Cap reports the usable capacity.
func (r *Ring[T]) Cap() int {
	return len(r.slots) - 1
}

// Dropped reports how many pushes were rejected on a full ring.
func (r *Ring[T]) Dropped() uint32 {
	return r.dropped.Load()
}
