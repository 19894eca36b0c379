package pool

import (
	"context"
	"sync"
	"time"

	"github.com/esroyo/generic-pool/internal/dlist"
	"github.com/esroyo/generic-pool/internal/pqueue"
	"github.com/esroyo/generic-pool/internal/request"
	"golang.org/x/sync/errgroup"
)

// Pool coordinates a bounded, asynchronously constructed set of resources of
// type T among concurrent callers. All state mutation happens under a single
// mutex; factory calls (Create, Destroy, Validate) always run outside the
// critical section, with their results posted back under a re-acquired lock.
//
// T must be usable as a map key in practice: Release/Destroy/
// IsBorrowedResource look up the loan by boxing obj into an interface{} key,
// which panics at runtime if the concrete value is not comparable (e.g. a
// slice). Callers whose resource type is not naturally comparable should
// have their Factory return a pointer or other handle type.
type Pool[T any] struct {
	mu sync.Mutex

	cfg               Config
	factory           Factory[T]
	validatingFactory ValidatingFactory[T]

	available   *dlist.List[*PooledResource[T]]
	evictCursor *dlist.Iterator[*PooledResource[T]]
	waiters     *pqueue.PriorityQueue[*request.Request[T]]
	loans       map[any]*PooledResource[T]

	// size is allObjects.size + factoryCreateOperations.size: every live
	// resource plus every reserved-but-not-yet-created one. Never exceeds
	// cfg.Max.
	size int

	started  bool
	draining bool
	closed   bool

	// availableSignal is closed and replaced every time a resource is
	// added to available, so Ready can block on it instead of polling.
	availableSignal chan struct{}

	evictTicker *time.Ticker
	evictDone   chan struct{}

	factoryCreateWG  sync.WaitGroup
	factoryDestroyWG sync.WaitGroup
	loanWG           sync.WaitGroup

	createErrListeners  listenerSet
	destroyErrListeners listenerSet
}

// New builds a Pool backed by factory. It panics if factory is nil, or if
// TestOnBorrow/TestOnReturn is enabled but factory does not implement
// ValidatingFactory — both are programmer errors caught at construction
// rather than runtime data conditions.
func New[T any](factory Factory[T], opts ...Option) *Pool[T] {
	if factory == nil {
		panic("pool: factory must not be nil")
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg = cfg.normalized()

	vf, _ := factory.(ValidatingFactory[T])
	if (cfg.TestOnBorrow || cfg.TestOnReturn) && vf == nil {
		panic("pool: TestOnBorrow/TestOnReturn require a factory implementing ValidatingFactory")
	}

	p := &Pool[T]{
		cfg:               cfg,
		factory:           factory,
		validatingFactory: vf,
		available:         dlist.New[*PooledResource[T]](),
		waiters:           pqueue.New[*request.Request[T]](cfg.PriorityRange),
		loans:             make(map[any]*PooledResource[T]),
		availableSignal:   make(chan struct{}),
	}
	p.evictCursor = p.available.Iterator()

	if cfg.Autostart {
		p.Start()
	}
	return p
}

func (p *Pool[T]) loanKey(obj T) any { return obj }

// Acquire borrows a resource, blocking until one is available, one is
// created, the per-request AcquireTimeout elapses, or ctx is done. priority
// is optional; omitted or 0 means highest priority, negative or ≥
// Config.PriorityRange clamps to the lowest slot.
func (p *Pool[T]) Acquire(ctx context.Context, priority ...int) (T, error) {
	prio := 0
	if len(priority) > 0 {
		prio = priority[0]
	}

	startedAt := time.Now()
	tctx := p.cfg.Tracer.AcquireStart(ctx, AcquireStartData{StartNano: startedAt.UnixNano()})

	p.mu.Lock()
	if !p.started {
		p.startLocked()
	}
	if p.draining || p.closed {
		p.mu.Unlock()
		var zero T
		p.cfg.Tracer.AcquireEnd(tctx, AcquireEndData{Err: ErrPoolDraining})
		return zero, ErrPoolDraining
	}

	if p.cfg.MaxWaitingClients >= 0 &&
		p.available.Len() == 0 &&
		p.spareResourceCapacityLocked() < 1 &&
		p.waiters.Len() >= p.cfg.MaxWaitingClients {
		p.mu.Unlock()
		var zero T
		p.cfg.Tracer.AcquireEnd(tctx, AcquireEndData{Err: ErrMaxWaitersExceeded})
		return zero, ErrMaxWaitersExceeded
	}

	var deadline time.Time
	if p.cfg.AcquireTimeout > 0 {
		deadline = startedAt.Add(p.cfg.AcquireTimeout)
	}
	req := request.New[T](deadline, ErrAcquireTimeout)
	node := p.waiters.Enqueue(req, prio)
	req.OnSettle(func() {
		if req.State() == request.Rejected {
			p.mu.Lock()
			node.Unlink()
			p.mu.Unlock()
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.observeAcquireCancel()
			}
		}
	})

	p.pumpLocked()
	p.observeMetricsLocked()
	p.mu.Unlock()

	obj, err := req.Await(ctx)
	waitDuration := time.Since(startedAt)

	if err != nil {
		p.cfg.Tracer.AcquireEnd(tctx, AcquireEndData{WaitDuration: waitDuration, Err: err})
		return obj, err
	}

	p.cfg.Tracer.AcquireEnd(tctx, AcquireEndData{
		WaitDuration:    waitDuration,
		AcquireDuration: time.Since(startedAt),
	})
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.observeAcquireDuration(time.Since(startedAt), waitDuration > 0)
	}
	p.cfg.Logger.Debugf("pool: acquired resource after %s", waitDuration)
	return obj, nil
}

// Release returns obj to the pool. It fails with ErrResourceNotInPool if obj
// has no outstanding loan.
func (p *Pool[T]) Release(obj T) error {
	key := p.loanKey(obj)
	p.mu.Lock()
	res, ok := p.loans[key]
	if !ok {
		p.mu.Unlock()
		return ErrResourceNotInPool
	}
	delete(p.loans, key)
	heldDuration := time.Since(res.lastBorrowTime)
	res.markReturning(time.Now())
	p.mu.Unlock()

	tctx := p.cfg.Tracer.ReleaseStart(context.Background(), ReleaseStartData{HeldDuration: heldDuration})

	if p.cfg.TestOnReturn && p.validatingFactory != nil {
		res.setState(Validation)
		valid, err := p.validatingFactory.Validate(tctx, obj)
		if !valid || err != nil {
			p.mu.Lock()
			res.setState(Invalid)
			p.size--
			p.loanWG.Done()
			p.scheduleDestroy(res, "invalid")
			p.ensureMinimumLocked()
			p.pumpLocked()
			p.observeMetricsLocked()
			p.mu.Unlock()
			p.cfg.Tracer.ReleaseEnd(tctx, ReleaseEndData{})
			return nil
		}
	}

	p.mu.Lock()
	p.returnToAvailableLocked(res)
	p.loanWG.Done()
	p.pumpLocked()
	p.observeMetricsLocked()
	p.mu.Unlock()
	p.cfg.Tracer.ReleaseEnd(tctx, ReleaseEndData{})
	return nil
}

// Destroy removes a borrowed obj from the pool and runs Factory.Destroy on
// it rather than returning it to the available set. It fails with
// ErrResourceNotInPool if obj has no outstanding loan.
func (p *Pool[T]) Destroy(obj T) error {
	key := p.loanKey(obj)
	p.mu.Lock()
	res, ok := p.loans[key]
	if !ok {
		p.mu.Unlock()
		return ErrResourceNotInPool
	}
	delete(p.loans, key)
	res.setState(Invalid)
	p.size--
	p.loanWG.Done()
	p.scheduleDestroy(res, "explicit")
	p.ensureMinimumLocked()
	p.pumpLocked()
	p.observeMetricsLocked()
	p.mu.Unlock()
	return nil
}

// Use acquires a resource, runs fn on it, and releases it on success or
// destroys it on failure (including a panic from fn, which is re-raised
// after the resource is scheduled for destruction).
func (p *Pool[T]) Use(ctx context.Context, fn func(T) error, priority ...int) error {
	obj, err := p.Acquire(ctx, priority...)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = p.Destroy(obj)
			panic(r)
		}
	}()
	if err := fn(obj); err != nil {
		_ = p.Destroy(obj)
		return err
	}
	return p.Release(obj)
}

// IsBorrowedResource reports whether obj is currently on loan.
func (p *Pool[T]) IsBorrowedResource(obj T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loans[p.loanKey(obj)]
	return ok
}

// Start is idempotent: it marks the pool started, ensures Min resources
// exist, and schedules the evictor. Called automatically by New when
// Config.Autostart is set (the default), otherwise deferred to the first
// Acquire.
func (p *Pool[T]) Start() {
	p.mu.Lock()
	p.startLocked()
	p.mu.Unlock()
}

func (p *Pool[T]) startLocked() {
	if p.started {
		return
	}
	p.started = true
	p.ensureMinimumLocked()
	p.startEvictorLocked()
}

// Drain stops accepting new Acquire calls, waits for the last-enqueued
// waiter to settle (a heuristic standing in for every waiter: Acquire
// already refuses to enqueue once draining, so no waiter ordered behind the
// tail can still be pending once it settles), then waits for every
// outstanding loan to be released or destroyed, and finally stops the
// evictor.
func (p *Pool[T]) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil
	}
	p.draining = true
	tail, hasTail := p.waiters.Tail()
	p.mu.Unlock()

	if hasTail {
		select {
		case <-tail.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	loansDone := make(chan struct{})
	go func() {
		p.loanWG.Wait()
		close(loansDone)
	}()
	select {
	case <-loansDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	p.stopEvictorLocked()
	p.mu.Unlock()
	return nil
}

// Clear waits for every in-flight Factory.Create call to settle, then marks
// the pool closed so subsequent Acquire calls fail with ErrPoolDraining,
// destroys every resource remaining in the available set concurrently (via
// errgroup), and waits for those destroys, and for any destroy already
// scheduled by Release, Destroy or the evictor, to settle. Borrowed
// resources are untouched; call Drain first to wait for them.
func (p *Pool[T]) Clear(ctx context.Context) error {
	createsDone := make(chan struct{})
	go func() {
		p.factoryCreateWG.Wait()
		close(createsDone)
	}()
	select {
	case <-createsDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	p.closed = true
	p.stopEvictorLocked()
	var toDestroy []*PooledResource[T]
	for {
		res, ok := p.popAvailableLocked()
		if !ok {
			break
		}
		res.setState(Invalid)
		p.size--
		toDestroy = append(toDestroy, res)
	}
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, res := range toDestroy {
		res := res
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				p.destroyResource(res, "drain")
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	destroysDone := make(chan struct{})
	go func() {
		p.factoryDestroyWG.Wait()
		close(destroysDone)
	}()
	select {
	case <-destroysDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready blocks until the available set holds at least Config.Min resources,
// or ctx is done.
func (p *Pool[T]) Ready(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.available.Len() >= p.cfg.Min {
			p.mu.Unlock()
			return nil
		}
		wait := p.availableSignal
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnFactoryCreateError registers fn to be called whenever Factory.Create
// fails. The returned func unregisters it.
func (p *Pool[T]) OnFactoryCreateError(fn func(error)) func() {
	return p.createErrListeners.add(fn)
}

// OnFactoryDestroyError registers fn to be called whenever Factory.Destroy
// fails or times out. The returned func unregisters it.
func (p *Pool[T]) OnFactoryDestroyError(fn func(error)) func() {
	return p.destroyErrListeners.add(fn)
}

// Size returns the total number of resources the pool currently accounts
// for: live resources plus reservations for in-flight creates.
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Available returns the number of idle resources ready for immediate
// dispense.
func (p *Pool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available.Len()
}

// Borrowed returns the number of resources currently on loan.
func (p *Pool[T]) Borrowed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loans)
}

// Pending returns the number of Acquire calls currently waiting in the
// queue.
func (p *Pool[T]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Len()
}

// Max returns the configured maximum pool size.
func (p *Pool[T]) Max() int { return p.cfg.Max }

// Min returns the configured minimum pool size.
func (p *Pool[T]) Min() int { return p.cfg.Min }

// SpareResourceCapacity returns how many additional resources the pool
// could create right now without exceeding Max.
func (p *Pool[T]) SpareResourceCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spareResourceCapacityLocked()
}

func (p *Pool[T]) observeMetricsLocked() {
	if p.cfg.Metrics == nil {
		return
	}
	p.cfg.Metrics.observeSize(p.size, p.available.Len(), len(p.loans), p.waiters.Len())
}

func (p *Pool[T]) spareResourceCapacityLocked() int {
	if n := p.cfg.Max - p.size; n > 0 {
		return n
	}
	return 0
}

// ensureMinimumLocked tops the pool back up to Min by launching creates for
// the shortfall. Called after Start, and after any destroy that might have
// dipped the pool below Min.
func (p *Pool[T]) ensureMinimumLocked() {
	if p.draining || p.closed {
		return
	}
	for p.size < p.cfg.Min {
		p.createResourceLocked()
	}
}

// popAvailableLocked removes and returns the resource at the front of the
// available list — the oldest-idle resource if Config.FIFO placed it there,
// or the most-recently-idled one if LIFO did.
func (p *Pool[T]) popAvailableLocked() (*PooledResource[T], bool) {
	node := p.available.Front()
	if node == nil {
		return nil, false
	}
	res := p.available.Remove(node)
	res.availableNode = nil
	return res, true
}

// returnToAvailableLocked places res back in the available set: FIFO pushes
// to the tail (oldest-returned dispensed first), LIFO unshifts to the head
// (most-recently-returned dispensed first). popAvailableLocked always reads
// from the head, so this is the only place the two orderings diverge.
func (p *Pool[T]) returnToAvailableLocked(res *PooledResource[T]) {
	res.markIdle(time.Now())
	var node *dlist.Node[*PooledResource[T]]
	if p.cfg.FIFO {
		node = p.available.PushBack(res)
	} else {
		node = p.available.PushFront(res)
	}
	res.availableNode = node
	p.signalAvailableLocked()
}

func (p *Pool[T]) signalAvailableLocked() {
	close(p.availableSignal)
	p.availableSignal = make(chan struct{})
}

// createResourceLocked reserves a size slot and launches Factory.Create
// outside the lock. On success the resource joins the available set and a
// dispense pass runs; on failure the reservation is released, the error is
// reported, and a dispense pass still runs — per spec there is no retry
// cap, so it will simply try again if waiters remain and capacity exists.
func (p *Pool[T]) createResourceLocked() {
	p.size++
	p.factoryCreateWG.Add(1)
	go func() {
		defer p.factoryCreateWG.Done()
		obj, err := p.factory.Create(context.Background())

		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.size--
			p.cfg.Logger.Warnf("pool: factory create failed: %v", err)
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.observeCreateError()
			}
			p.createErrListeners.emit(err)
			p.pumpLocked()
			return
		}
		res := newPooledResource(obj, time.Now())
		p.returnToAvailableLocked(res)
		p.pumpLocked()
	}()
}

// pumpLocked is the dispense algorithm: it matches queued waiters against
// available resources (validating on borrow if configured), then, if
// waiters remain once the available set is drained, launches just enough
// creates to eventually cover them — per spec.md §4.6 step 3: shortfall =
// W - potentiallyAllocable, creates = min(spareResourceCapacity, shortfall).
// potentiallyAllocable is the number of resources that are available, being
// created, or mid-validation; since every resource p.size accounts for is
// in exactly one of {borrowed, available, creating, validating}, that works
// out to p.size - len(p.loans) without a separate counter. It always
// returns with p.mu held, though it may transiently unlock it around a
// Validate call.
func (p *Pool[T]) pumpLocked() {
	for {
		req, ok := p.waiters.Head()
		if !ok {
			return
		}
		if req.State() != request.Pending {
			p.waiters.Dequeue()
			continue
		}

		res, ok := p.popAvailableLocked()
		if !ok {
			break
		}

		if p.cfg.TestOnBorrow && p.validatingFactory != nil {
			res.setState(Validation)
			p.mu.Unlock()
			valid, err := p.validatingFactory.Validate(context.Background(), res.obj)
			p.mu.Lock()
			if !valid || err != nil {
				res.setState(Invalid)
				p.size--
				p.scheduleDestroy(res, "invalid")
				p.ensureMinimumLocked()
				continue
			}
		}

		// Validate may have released the lock, during which req could have
		// been spliced out or overtaken; only dequeue it if it is still head.
		if head, _ := p.waiters.Head(); head == req {
			p.waiters.Dequeue()
		}
		res.markAllocated(time.Now())
		p.loans[p.loanKey(res.obj)] = res
		p.loanWG.Add(1)

		if !req.Fulfill(res.obj) {
			// The waiter timed out in the narrow window while we were
			// validating or between Dequeue and Fulfill. Give the
			// resource back rather than losing it.
			delete(p.loans, p.loanKey(res.obj))
			p.loanWG.Done()
			p.returnToAvailableLocked(res)
		}
	}

	w := p.waiters.Len()
	if w == 0 {
		return
	}
	potentiallyAllocable := p.size - len(p.loans)
	shortfall := w - potentiallyAllocable
	if shortfall <= 0 {
		return
	}
	creates := p.spareResourceCapacityLocked()
	if creates > shortfall {
		creates = shortfall
	}
	for i := 0; i < creates; i++ {
		p.createResourceLocked()
	}
}

// scheduleDestroy runs Factory.Destroy for res in the background, tracked
// by factoryDestroyWG so Clear can wait for it to settle. Safe to call
// with or without p.mu held, since it only touches the WaitGroup and spawns
// a goroutine.
func (p *Pool[T]) scheduleDestroy(res *PooledResource[T], reason string) {
	p.factoryDestroyWG.Add(1)
	go func() {
		defer p.factoryDestroyWG.Done()
		p.destroyResource(res, reason)
	}()
}

func (p *Pool[T]) destroyResource(res *PooledResource[T], reason string) {
	ctx := p.cfg.Tracer.DestroyStart(context.Background(), DestroyStartData{Reason: reason})
	start := time.Now()
	err := destroyWithTimeout(ctx, p.factory, res.obj, p.cfg.DestroyTimeout)
	duration := time.Since(start)
	p.cfg.Tracer.DestroyEnd(ctx, DestroyEndData{Duration: duration, Err: err})
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.observeDestroyDuration(duration, reason)
	}
	if err != nil {
		p.cfg.Logger.Errorf("pool: factory destroy failed (%s): %v", reason, err)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.observeDestroyError()
		}
		p.destroyErrListeners.emit(err)
	}
}
