// Package idalloc implements the dense ID allocator shared by the timer
// service and the socket pool: stable reusable integer IDs from a
// fixed range, free-list ordered.
package idalloc

import "sync"

// Invalid is returned by Allocate when the allocator is exhausted.
const Invalid int32 = -1

// Allocator hands out dense, reusable integer IDs in [start, start+cap).
type Allocator struct {
	mu    sync.Mutex
	start int32
	cap   int32
	free  []int32
	used  []bool
}

// New creates an allocator over [start, start+capacity).
func New(start, capacity int32) *Allocator {
	a := &Allocator{
		start: start,
		cap:   capacity,
		free:  make([]int32, capacity),
		used:  make([]bool, capacity),
	}
	for i := int32(0); i < capacity; i++ {
		a.free[i] = start + i
	}
	return a
}

// Allocate returns the next free ID, or Invalid if the space is
// exhausted.
func (a *Allocator) Allocate() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return Invalid
	}
	id := a.free[0]
	a.free = a.free[1:]
	a.used[id-a.start] = true
	return id
}

// Release returns id to the pool. Releasing an ID that was not
// outstanding reports ok=false.
func (a *Allocator) Release(id int32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := id - a.start
	if idx < 0 || idx >= a.cap || !a.used[idx] {
		return false
	}
	a.used[idx] = false
	a.free = append(a.free, id)
	return true
}

// Capacity returns the total ID space size.
func (a *Allocator) Capacity() int32 {
	return a.cap
}

// UsedCount returns the number of currently outstanding IDs.
func (a *Allocator) UsedCount() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cap - int32(len(a.free))
}
