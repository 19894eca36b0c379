package pool

import (
	"context"
	"time"
)

// Tracer traces pool actions. All methods are called synchronously from the
// goroutine performing the traced operation; implementations that need to
// do real work should hand off to a queue rather than block here.
type Tracer interface {
	// AcquireStart is called at the beginning of Acquire calls. The
	// returned context is used for the rest of the call and passed to
	// AcquireEnd.
	AcquireStart(ctx context.Context, data AcquireStartData) context.Context
	AcquireEnd(ctx context.Context, data AcquireEndData)

	// ReleaseStart is called at the beginning of Release calls. The
	// returned context is passed to ReleaseEnd.
	ReleaseStart(ctx context.Context, data ReleaseStartData) context.Context
	ReleaseEnd(ctx context.Context, data ReleaseEndData)

	// DestroyStart is called before a factory Destroy call is dispatched,
	// whether triggered by explicit Destroy, invalidation, eviction, or
	// Clear. The returned context is passed to DestroyEnd.
	DestroyStart(ctx context.Context, data DestroyStartData) context.Context
	DestroyEnd(ctx context.Context, data DestroyEndData)

	// OnEvict is called once per resource the idle evictor removes from
	// the available set, before its destroy is scheduled.
	OnEvict(data EvictEvent)
}

// ResourceStats snapshots a resource's lifecycle timestamps at the moment a
// trace event fires.
type ResourceStats struct {
	CreationTime   time.Time
	LastBorrowTime time.Time
	LastReturnTime time.Time
}

type AcquireStartData struct {
	StartNano int64
}

type AcquireEndData struct {
	WaitDuration    time.Duration
	AcquireDuration time.Duration
	InitDuration    time.Duration
	ResourceStats   ResourceStats
	Err             error
}

type ReleaseStartData struct {
	HeldDuration time.Duration
}

type ReleaseEndData struct {
	Err error
}

// DestroyStartData describes why a resource is being destroyed.
type DestroyStartData struct {
	// Reason is one of "explicit", "invalid", "evicted", "drain".
	Reason string
}

type DestroyEndData struct {
	Duration time.Duration
	Err      error
}

// EvictEvent describes a single resource removed by the idle evictor.
type EvictEvent struct {
	IdleDuration time.Duration
	CreationTime time.Time
}

// BaseTracer implements Tracer's methods as no-ops.
//
// It is intended to be composed with types that only need to implement a
// subset of Tracer methods.
//
// Example usage:
//
//	 // MyTracer only hooks AcquireEnd
//		type MyTracer struct {
//			pool.BaseTracer
//		}
//
//		func (MyTracer) AcquireEnd(ctx context.Context, d pool.AcquireEndData) {
//	     /* do something with d */
//		}
type BaseTracer struct{}

func (BaseTracer) AcquireStart(ctx context.Context, _ AcquireStartData) context.Context {
	return ctx
}
func (BaseTracer) AcquireEnd(context.Context, AcquireEndData) {}
func (BaseTracer) ReleaseStart(ctx context.Context, _ ReleaseStartData) context.Context {
	return ctx
}
func (BaseTracer) ReleaseEnd(context.Context, ReleaseEndData) {}
func (BaseTracer) DestroyStart(ctx context.Context, _ DestroyStartData) context.Context {
	return ctx
}
func (BaseTracer) DestroyEnd(context.Context, DestroyEndData) {}
func (BaseTracer) OnEvict(EvictEvent)                         {}

var _ Tracer = BaseTracer{}
