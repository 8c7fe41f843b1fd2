package backoff

import "time"

const (
	defaultMaxAttempts = 3
	defaultBase        = time.Second
)

// Policy decides whether another delivery attempt is permitted and how
// long to wait before it. It is pure: no I/O, no state across calls.
// Delays grow as base * 2^n with no jitter, so concurrent workers
// retrying the same window can synchronize their waits.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		Base:        defaultBase,
	}
}

// NewPolicy builds a policy, falling back to defaults for non-positive
// values.
func NewPolicy(maxAttempts int, base time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if base <= 0 {
		base = defaultBase
	}
	return Policy{MaxAttempts: maxAttempts, Base: base}
}

// Allow reports whether attempt n+1 is permitted after n attempts.
func (p Policy) Allow(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Delay returns the wait before attempt n+1, given n attempts made:
// base * 2^n, so Delay(0) is the base itself.
func (p Policy) Delay(attempts int) time.Duration {
	delay := p.Base
	for i := 0; i < attempts; i++ {
		delay *= 2
	}
	return delay
}
