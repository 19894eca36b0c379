package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pool "github.com/esroyo/generic-pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intFactory hands out incrementing ints boxed as *int (so T is comparable
// and distinguishable by identity, as Factory requires).
type intFactory struct {
	created atomic.Int64
	destroyed atomic.Int64

	createErr   error // error returned by each of the createFails failing calls
	createDelay time.Duration
	createFails int32 // number of leading Create calls that fail before succeeding

	destroyDelay time.Duration

	validate    func(*int) bool
	validateErr error
}

func (f *intFactory) Create(ctx context.Context) (*int, error) {
	if f.createDelay > 0 {
		select {
		case <-time.After(f.createDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.createFails > 0 {
		atomic.AddInt32(&f.createFails, -1)
		return nil, f.createErr
	}
	n := int(f.created.Add(1))
	return &n, nil
}

func (f *intFactory) Destroy(ctx context.Context, obj *int) error {
	if f.destroyDelay > 0 {
		time.Sleep(f.destroyDelay)
	}
	f.destroyed.Add(1)
	return nil
}

func (f *intFactory) Validate(ctx context.Context, obj *int) (bool, error) {
	if f.validate != nil {
		return f.validate(obj), f.validateErr
	}
	return true, nil
}

func newIntFactory() *intFactory { return &intFactory{} }

func TestAcquireCreatesResourceWhenNoneAvailable(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, *obj)
	assert.NoError(t, p.Release(obj))
}

func TestAcquireReusesReleasedResource(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(obj))

	obj2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, obj, obj2)
	assert.EqualValues(t, 1, f.created.Load())
}

func TestAcquireNeverExceedsMax(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(3))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			assert.LessOrEqual(t, p.Size(), 3)
			time.Sleep(time.Millisecond)
			_ = p.Release(obj)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Size(), 3)
}

func TestInvalidReleaseIsRejected(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)

	available, borrowed := p.Available(), p.Borrowed()

	stranger := new(int)
	err = p.Release(stranger)
	assert.ErrorIs(t, err, pool.ErrResourceNotInPool)
	assert.Equal(t, available, p.Available())
	assert.Equal(t, borrowed, p.Borrowed())

	assert.NoError(t, p.Release(obj))
}

func TestDefaultsAndClamping(t *testing.T) {
	p := pool.New[*int](newIntFactory())
	assert.Equal(t, 1, p.Max())
	assert.Equal(t, 0, p.Min())

	p2 := pool.New[*int](newIntFactory(), pool.WithMin(5), pool.WithMax(3))
	assert.Equal(t, 3, p2.Max())
	assert.Equal(t, 3, p2.Min())
}

func TestPriorityOrdering(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1), pool.WithPriorityRange(2))

	var mu sync.Mutex
	var lowDoneTimes, highDoneTimes []time.Time
	var wg sync.WaitGroup

	runAt := func(priority int, bucket *[]time.Time) {
		defer wg.Done()
		obj, err := p.Acquire(context.Background(), priority)
		if err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		*bucket = append(*bucket, time.Now())
		mu.Unlock()
		_ = p.Release(obj)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go runAt(1, &lowDoneTimes)
	}
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go runAt(0, &highDoneTimes)
	}
	wg.Wait()

	require.Len(t, lowDoneTimes, 10)
	require.Len(t, highDoneTimes, 10)

	lastHigh := highDoneTimes[0]
	for _, ts := range highDoneTimes {
		if ts.After(lastHigh) {
			lastHigh = ts
		}
	}
	lastLow := lowDoneTimes[0]
	for _, ts := range lowDoneTimes {
		if ts.After(lastLow) {
			lastLow = ts
		}
	}
	assert.True(t, !lastHigh.After(lastLow), "priority 0 waiters should not lag behind priority 1 waiters")
}

func TestEvictionOfIdleResourcesReplacesThem(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](
		f,
		pool.WithMin(2), pool.WithMax(2),
		pool.WithIdleTimeout(50*time.Millisecond),
		pool.WithEvictionRunInterval(10*time.Millisecond),
	)

	require.NoError(t, p.Ready(context.Background()))
	time.Sleep(120 * time.Millisecond)

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, *obj, 3)
	_ = p.Release(obj)
}

func TestDrainThenClearRejectsFurtherAcquire(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(2))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			time.Sleep(50 * time.Millisecond)
			_ = p.Release(obj)
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))
	wg.Wait()
	require.NoError(t, p.Clear(ctx))

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, pool.ErrPoolDraining)
}

func TestCreationRetriesUntilSuccess(t *testing.T) {
	f := &intFactory{createErr: errors.New("boom"), createFails: 4}
	p := pool.New[*int](f, pool.WithMax(1))

	var createErrs atomic.Int32
	unsub := p.OnFactoryCreateError(func(err error) { createErrs.Add(1) })
	defer unsub()

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, obj)
	assert.EqualValues(t, 4, createErrs.Load())
	assert.Equal(t, 0, p.Pending())
}

func TestAcquireTimeout(t *testing.T) {
	f := &intFactory{createDelay: 100 * time.Millisecond}
	p := pool.New[*int](f, pool.WithMax(1), pool.WithAcquireTimeout(20*time.Millisecond))

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, pool.ErrAcquireTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, p.Drain(ctx))
	assert.NoError(t, p.Clear(ctx))
}

func TestDestroyTimeoutEmitsFactoryDestroyError(t *testing.T) {
	f := &intFactory{destroyDelay: 100 * time.Millisecond}
	p := pool.New[*int](f, pool.WithMax(1), pool.WithDestroyTimeout(20*time.Millisecond))

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	p.OnFactoryDestroyError(func(err error) { errCh <- err })

	require.NoError(t, p.Destroy(obj))

	select {
	case err := <-errCh:
		assert.Regexp(t, "destroy timed out", err.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for factoryDestroyError")
	}
}

func TestMaxWaitingClientsZeroRejectsThirdAcquire(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(2), pool.WithMaxWaitingClients(0))

	obj1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	obj2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	assert.EqualError(t, err, "max waitingClients count exceeded")

	_ = p.Release(obj1)
	_ = p.Release(obj2)
}

func TestSizeNeverExceedsMaxInvariant(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(4))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			assert.LessOrEqual(t, p.Size(), 4)
			_ = p.Release(obj)
		}()
	}
	wg.Wait()
}

func TestAcquireReleaseLeavesBorrowedUnchanged(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	before := p.Borrowed()
	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(obj))
	assert.Equal(t, before, p.Borrowed())
}

func TestUseDestroysResourceOnFnError(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	wantErr := errors.New("fn failed")
	err := p.Use(context.Background(), func(obj *int) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, p.Size())
}

func TestUseReleasesResourceOnSuccess(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	err := p.Use(context.Background(), func(obj *int) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Available())
}

func TestIsBorrowedResource(t *testing.T) {
	f := newIntFactory()
	p := pool.New[*int](f, pool.WithMax(1))

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, p.IsBorrowedResource(obj))
	require.NoError(t, p.Release(obj))
	assert.False(t, p.IsBorrowedResource(obj))
}

func TestTestOnReturnDestroysInvalidResource(t *testing.T) {
	f := &intFactory{validate: func(obj *int) bool { return false }}
	p := pool.New[*int](f, pool.WithMax(1), pool.WithTestOnReturn(true))

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(obj))

	deadline := time.Now().Add(time.Second)
	for f.destroyed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.EqualValues(t, 1, f.destroyed.Load())
}

func TestNewPanicsOnNilFactory(t *testing.T) {
	assert.Panics(t, func() {
		pool.New[*int](nil)
	})
}

func TestNewPanicsWhenTestOnBorrowWithoutValidatingFactory(t *testing.T) {
	assert.Panics(t, func() {
		pool.New[*int](&nonValidatingFactory{}, pool.WithTestOnBorrow(true))
	})
}

type nonValidatingFactory struct{}

func (nonValidatingFactory) Create(ctx context.Context) (*int, error) {
	n := 1
	return &n, nil
}
func (nonValidatingFactory) Destroy(ctx context.Context, obj *int) error { return nil }
