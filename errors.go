package pool

import "errors"

// Sentinel errors surfaced by Pool operations, taxonomized by kind rather
// than by concrete type so callers can match with errors.Is.
var (
	// ErrPoolDraining is returned by Acquire once Drain has begun.
	ErrPoolDraining = errors.New("pool: draining")

	// ErrMaxWaitersExceeded is returned by Acquire when the waiting queue is
	// already at MaxWaitingClients capacity.
	ErrMaxWaitersExceeded = errors.New("max waitingClients count exceeded")

	// ErrAcquireTimeout is the rejection reason for a waiter whose
	// AcquireTimeout elapsed before a resource was dispatched to it.
	ErrAcquireTimeout = errors.New("pool: acquire timed out")

	// ErrResourceNotInPool is returned by Release or Destroy when called
	// with an object that has no outstanding loan.
	ErrResourceNotInPool = errors.New("pool: resource not in pool")

	// ErrDestroyTimeout is reported to factory-destroy-error listeners when
	// Factory.Destroy outlives DestroyTimeout. The underlying call is not
	// aborted; the pool simply stops waiting on it.
	ErrDestroyTimeout = errors.New("pool: destroy timed out")
)
