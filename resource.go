package pool

import (
	"time"

	"github.com/esroyo/generic-pool/internal/dlist"
)

// ResourceState is the lifecycle stage of a single pooled resource. All
// transitions happen under the owning Pool's lock.
type ResourceState int

const (
	// Idle resources sit in the available set, eligible for dispense or
	// eviction.
	Idle ResourceState = iota
	// Allocated resources are on loan to a caller.
	Allocated
	// Validation resources are in the middle of a TestOnBorrow/TestOnReturn
	// check, factory call already dispatched outside the lock.
	Validation
	// Returning resources have been handed back via Release but not yet
	// reinstated as Idle (e.g. awaiting validation).
	Returning
	// Invalid resources failed validation, were evicted, explicitly
	// destroyed, or cleared, and are queued for destruction; they are never
	// dispatched again.
	Invalid
)

func (s ResourceState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Allocated:
		return "allocated"
	case Validation:
		return "validation"
	case Returning:
		return "returning"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// PooledResource wraps a factory-created object with the bookkeeping the
// pool needs to decide eviction and dispense order. It is never exposed
// directly to callers; Acquire hands back the wrapped object itself.
type PooledResource[T any] struct {
	obj   T
	state ResourceState

	creationTime   time.Time
	lastBorrowTime time.Time
	lastReturnTime time.Time
	lastIdleTime   time.Time

	// availableNode, when non-nil, is this resource's node in the pool's
	// available-set list. Cleared when the resource leaves the available
	// set (dispatch, eviction, invalidation).
	availableNode *dlist.Node[*PooledResource[T]]
}

func newPooledResource[T any](obj T, now time.Time) *PooledResource[T] {
	return &PooledResource[T]{
		obj:          obj,
		state:        Idle,
		creationTime: now,
		lastIdleTime: now,
	}
}

func (r *PooledResource[T]) State() ResourceState { return r.state }

func (r *PooledResource[T]) setState(s ResourceState) { r.state = s }

func (r *PooledResource[T]) markAllocated(now time.Time) {
	r.state = Allocated
	r.lastBorrowTime = now
}

func (r *PooledResource[T]) markIdle(now time.Time) {
	r.state = Idle
	r.lastIdleTime = now
}

func (r *PooledResource[T]) markReturning(now time.Time) {
	r.state = Returning
	r.lastReturnTime = now
}

// idleDuration reports how long the resource has been continuously idle, as
// of now. Only meaningful while State() == Idle.
func (r *PooledResource[T]) idleDuration(now time.Time) time.Duration {
	return now.Sub(r.lastIdleTime)
}
