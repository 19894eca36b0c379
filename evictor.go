package pool

import (
	"time"

	"github.com/esroyo/generic-pool/internal/circ"
)

// evict is the pure eviction predicate, kept free of Pool state so its
// boundary conditions can be tested directly. A resource is evicted when it
// has been idle at least IdleTimeout, or, if the pool currently holds more
// than min available (idle) resources, when it has been idle at least
// SoftIdleTimeout. available must be the count of idle resources, not total
// pool size — borrowed resources are never surplus-above-min candidates.
func evict(idle time.Duration, available, min int, idleTimeout, softIdleTimeout time.Duration) bool {
	if idleTimeout > 0 && idle >= idleTimeout {
		return true
	}
	if softIdleTimeout > 0 && idle >= softIdleTimeout && available > min {
		return true
	}
	return false
}

func (p *Pool[T]) startEvictorLocked() {
	if p.cfg.EvictionRunInterval <= 0 || p.evictTicker != nil {
		return
	}
	p.evictTicker = time.NewTicker(p.cfg.EvictionRunInterval)
	p.evictDone = make(chan struct{})
	go p.runEvictorLoop(p.evictTicker, p.evictDone)
}

func (p *Pool[T]) stopEvictorLocked() {
	if p.evictTicker == nil {
		return
	}
	p.evictTicker.Stop()
	close(p.evictDone)
	p.evictTicker = nil
	p.evictDone = nil
}

func (p *Pool[T]) runEvictorLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-ticker.C:
			p.runEvictorTick()
		case <-done:
			return
		}
	}
}

// runEvictorTick sweeps up to NumTestsPerEvictionRun resources starting from
// the rotating cursor, evicting those that qualify per evict(). The cursor
// persists across ticks so a large available set is swept incrementally
// rather than being fully re-scanned every interval.
func (p *Pool[T]) runEvictorTick() {
	p.mu.Lock()

	n := p.cfg.NumTestsPerEvictionRun
	if avail := p.available.Len(); n > avail {
		n = avail
	}
	if n <= 0 {
		p.mu.Unlock()
		return
	}

	toDestroy := circ.NewQueue[*PooledResource[T]](n)
	now := time.Now()
	availableCount := p.available.Len()

	for i := 0; i < n; i++ {
		node, ok := p.evictCursor.Next()
		if !ok {
			p.evictCursor.Reset()
			node, ok = p.evictCursor.Next()
			if !ok {
				break
			}
		}
		res := node.Value
		if !evict(res.idleDuration(now), availableCount, p.cfg.Min, p.cfg.IdleTimeout, p.cfg.SoftIdleTimeout) {
			continue
		}
		idle := res.idleDuration(now)
		p.available.Remove(node)
		res.availableNode = nil
		res.setState(Invalid)
		p.size--
		availableCount--
		p.cfg.Tracer.OnEvict(EvictEvent{IdleDuration: idle, CreationTime: res.creationTime})
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.observeEviction()
		}
		toDestroy.Enqueue(res)
	}

	p.ensureMinimumLocked()
	p.observeMetricsLocked()
	p.mu.Unlock()

	for toDestroy.Len() > 0 {
		p.scheduleDestroy(toDestroy.Dequeue(), "evicted")
	}
}
