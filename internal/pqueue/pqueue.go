// Package pqueue implements a fixed N-slot priority queue of FIFO
// sub-queues. Dequeue always serves the lowest-index slot that has work;
// higher-priority slots may starve lower ones by design — fairness across
// priorities is not a goal of this structure.
package pqueue

import "github.com/esroyo/generic-pool/internal/dlist"

// PriorityQueue holds n FIFO slots, indexed 0 (highest priority) through
// n-1 (lowest priority).
type PriorityQueue[T any] struct {
	slots []*dlist.List[T]
}

// New builds a PriorityQueue with n slots. n below 1 is treated as 1.
func New[T any](n int) *PriorityQueue[T] {
	if n < 1 {
		n = 1
	}
	slots := make([]*dlist.List[T], n)
	for i := range slots {
		slots[i] = dlist.New[T]()
	}
	return &PriorityQueue[T]{slots: slots}
}

// clampSlot coerces a requested priority into a valid slot index: missing
// or zero maps to the highest-priority slot (0); negative or out-of-range
// maps to the lowest-priority slot (n-1).
func (q *PriorityQueue[T]) clampSlot(priority int) int {
	n := len(q.slots)
	switch {
	case priority == 0:
		return 0
	case priority < 0, priority >= n:
		return n - 1
	default:
		return priority
	}
}

// Enqueue appends item to the slot for priority and returns the backing
// node, which the caller can Unlink in O(1) later — used to implement
// per-waiter timeout expiry without scanning the queue.
func (q *PriorityQueue[T]) Enqueue(item T, priority int) *dlist.Node[T] {
	slot := q.clampSlot(priority)
	return q.slots[slot].PushBack(item)
}

// Dequeue removes and returns the item at the front of the lowest-index
// non-empty slot.
func (q *PriorityQueue[T]) Dequeue() (T, bool) {
	for _, s := range q.slots {
		if s.Len() > 0 {
			return s.Remove(s.Front()), true
		}
	}
	var zero T
	return zero, false
}

// Len returns the total number of queued items across all slots.
func (q *PriorityQueue[T]) Len() int {
	n := 0
	for _, s := range q.slots {
		n += s.Len()
	}
	return n
}

// Head peeks the item the next Dequeue would return, without removing it.
func (q *PriorityQueue[T]) Head() (T, bool) {
	for _, s := range q.slots {
		if f := s.Front(); f != nil {
			return f.Value, true
		}
	}
	var zero T
	return zero, false
}

// Tail peeks the most recently enqueued item in the lowest-priority
// non-empty slot.
func (q *PriorityQueue[T]) Tail() (T, bool) {
	for i := len(q.slots) - 1; i >= 0; i-- {
		if b := q.slots[i].Back(); b != nil {
			return b.Value, true
		}
	}
	var zero T
	return zero, false
}
