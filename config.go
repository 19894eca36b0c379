package pool

import "time"

// Config holds pool settings, frozen once New returns. Unknown or malformed
// values are normalized rather than rejected: defaultConfig() plus
// normalized()'s clamping mirrors how the reference pool falls back to
// defaults on bad input rather than failing construction.
type Config struct {
	// Min and Max bound the pool's resource count. Max clamps to at least
	// 1; Min clamps into [0, Max].
	Min int
	Max int

	// PriorityRange is the number of FIFO slots in the waiting queue.
	// Clamps to at least 1.
	PriorityRange int

	// FIFO controls the order returned resources are handed back out:
	// true pushes a released resource to the tail (oldest-first reuse),
	// false to the head (most-recently-used reuse).
	FIFO bool

	// TestOnBorrow and TestOnReturn gate optional factory validation.
	// Enabling either requires Factory to implement ValidatingFactory.
	TestOnBorrow bool
	TestOnReturn bool

	// AcquireTimeout bounds how long a waiter sits in the queue before
	// rejecting with ErrAcquireTimeout. Zero disables the timeout.
	AcquireTimeout time.Duration

	// DestroyTimeout bounds how long Destroy waits on Factory.Destroy
	// before reporting ErrDestroyTimeout and moving on. Zero disables the
	// timeout; the underlying call is never aborted either way.
	DestroyTimeout time.Duration

	// MaxWaitingClients caps the waiting queue. Negative means unlimited.
	MaxWaitingClients int

	// EvictionRunInterval is how often the idle evictor sweeps the
	// available set. Zero disables the evictor entirely.
	EvictionRunInterval time.Duration

	// NumTestsPerEvictionRun bounds how many resources a single eviction
	// sweep visits. Values below 1 fall back to the default, 3.
	NumTestsPerEvictionRun int

	// SoftIdleTimeout allows evicting surplus-above-Min resources more
	// aggressively than IdleTimeout. Zero or negative disables it.
	SoftIdleTimeout time.Duration

	// IdleTimeout is the hard idle bound; a resource idle longer than this
	// is evicted even if it would dip the pool below Min (ensureMinimum
	// then tops the pool back up).
	IdleTimeout time.Duration

	// Autostart starts the pool (and the evictor, if configured) as soon
	// as New returns, rather than deferring to the first Acquire.
	Autostart bool

	// Logger receives ambient diagnostics. Defaults to a no-op logger.
	Logger Logger

	// Metrics, if set, is observed on every state-changing operation.
	Metrics *Metrics

	// Tracer, if set, wraps Acquire/Release/Destroy/eviction in spans.
	// Defaults to BaseTracer{}, a no-op.
	Tracer Tracer
}

func defaultConfig() Config {
	return Config{
		Min:                    0,
		Max:                    1,
		PriorityRange:          1,
		FIFO:                   true,
		MaxWaitingClients:      -1,
		EvictionRunInterval:    0,
		NumTestsPerEvictionRun: 3,
		SoftIdleTimeout:        -1,
		IdleTimeout:            30 * time.Second,
		Autostart:              true,
		Logger:                 nopLogger{},
		Tracer:                 BaseTracer{},
	}
}

func (c Config) normalized() Config {
	if c.Max < 1 {
		c.Max = 1
	}
	if c.Min < 0 {
		c.Min = 0
	}
	if c.Min > c.Max {
		c.Min = c.Max
	}
	if c.PriorityRange < 1 {
		c.PriorityRange = 1
	}
	if c.NumTestsPerEvictionRun <= 0 {
		c.NumTestsPerEvictionRun = 3
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.Tracer == nil {
		c.Tracer = BaseTracer{}
	}
	return c
}

// Option customizes a Config when building a Pool via New.
type Option func(*Config)

func WithMin(n int) Option           { return func(c *Config) { c.Min = n } }
func WithMax(n int) Option           { return func(c *Config) { c.Max = n } }
func WithPriorityRange(n int) Option { return func(c *Config) { c.PriorityRange = n } }
func WithFIFO(fifo bool) Option      { return func(c *Config) { c.FIFO = fifo } }

// WithLIFO is shorthand for WithFIFO(false): released resources are handed
// back out most-recently-used first.
func WithLIFO() Option { return func(c *Config) { c.FIFO = false } }

func WithTestOnBorrow(b bool) Option { return func(c *Config) { c.TestOnBorrow = b } }
func WithTestOnReturn(b bool) Option { return func(c *Config) { c.TestOnReturn = b } }

func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Config) { c.AcquireTimeout = d }
}

func WithDestroyTimeout(d time.Duration) Option {
	return func(c *Config) { c.DestroyTimeout = d }
}

func WithMaxWaitingClients(n int) Option {
	return func(c *Config) { c.MaxWaitingClients = n }
}

func WithEvictionRunInterval(d time.Duration) Option {
	return func(c *Config) { c.EvictionRunInterval = d }
}

func WithNumTestsPerEvictionRun(n int) Option {
	return func(c *Config) { c.NumTestsPerEvictionRun = n }
}

func WithSoftIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.SoftIdleTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

func WithAutostart(b bool) Option     { return func(c *Config) { c.Autostart = b } }
func WithLogger(l Logger) Option      { return func(c *Config) { c.Logger = l } }
func WithMetrics(m *Metrics) Option   { return func(c *Config) { c.Metrics = m } }
func WithTracer(t Tracer) Option      { return func(c *Config) { c.Tracer = t } }
