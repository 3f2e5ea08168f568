package resilience

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake to drive Backoff.
type Clock func() time.Time

// BackoffConfig configures a Backoff.
type BackoffConfig struct {
	// Initial is the first delay and the value Reset returns to.
	Initial time.Duration `yaml:"initial" mapstructure:"initial"`
	// Max caps the delay.
	Max time.Duration `yaml:"max" mapstructure:"max"`
	// Multiplier grows the delay after each scheduled retry.
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// DefaultBackoffConfig returns 1s doubling up to 15s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        15 * time.Second,
		Multiplier: 2,
	}
}

// ApplyDefaults fills zero fields from DefaultBackoffConfig.
func (c *BackoffConfig) ApplyDefaults() {
	d := DefaultBackoffConfig()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
}

// BackoffOption configures a Backoff.
type BackoffOption func(*Backoff)

// WithClock replaces time.Now.
func WithClock(clock Clock) BackoffOption {
	return func(b *Backoff) { b.now = clock }
}

// Backoff schedules retries of a single operation that a caller polls
// rather than blocks on. It owns no goroutine and performs no I/O: the
// caller asks ShouldRetryNow on every tick and reports failures through
// ScheduleRetry.
//
// CurrentDelay stays within [Initial, Max] and only decreases on Reset.
type Backoff struct {
	mu           sync.Mutex
	cfg          BackoffConfig
	now          Clock
	currentDelay time.Duration
	nextRetryAt  time.Time
}

// NewBackoff creates a Backoff that is immediately eligible.
func NewBackoff(cfg BackoffConfig, opts ...BackoffOption) *Backoff {
	cfg.ApplyDefaults()
	b := &Backoff{
		cfg:          cfg,
		now:          time.Now,
		currentDelay: cfg.Initial,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ShouldRetryNow reports whether the clock has reached the next retry time.
func (b *Backoff) ShouldRetryNow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.nextRetryAt)
}

// ScheduleRetry records a failure: the next attempt is allowed after the
// current delay, and the delay grows for the failure after that. It returns
// the delay that was applied.
func (b *Backoff) ScheduleRetry() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	applied := b.currentDelay
	b.nextRetryAt = b.now().Add(applied)
	b.currentDelay = nextDelay(applied, b.cfg)
	return applied
}

// Reset records a success.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentDelay = b.cfg.Initial
	b.nextRetryAt = b.now()
}

// CurrentDelay returns the delay the next ScheduleRetry will apply.
func (b *Backoff) CurrentDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentDelay
}

// NextRetryAt returns the earliest time ShouldRetryNow reports true.
func (b *Backoff) NextRetryAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextRetryAt
}

func nextDelay(current time.Duration, cfg BackoffConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.Max || next <= 0 {
		next = cfg.Max
	}
	if next < cfg.Initial {
		next = cfg.Initial
	}
	return next
}
