package webhook

import (
	"math"
	"time"
)

// Decision is the retry policy's verdict on one recorded attempt
type Decision struct {
	Status        Status
	NextAttemptAt *time.Time
}

// Policy computes retry decisions. It is pure: it never schedules timers or
// performs I/O; re-invocation at the due time belongs to the sweeper.
type Policy struct {
	Base float64       // exponential base, delay = Base^attempt seconds
	Cap  time.Duration // ceiling on computed delays

	// DefaultMaxAttempts substitutes for subscriptions carrying no
	// positive attempt cap; zero means 3
	DefaultMaxAttempts int

	// Now is the clock used for due times; nil means time.Now
	Now func() time.Time
}

// NewPolicy returns a policy with the given base and delay ceiling
func NewPolicy(base float64, cap time.Duration) Policy {
	return Policy{Base: base, Cap: cap}
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Backoff returns the delay before the attempt following attempt number n.
// Growth is exponential and capped so a large max_attempts cannot produce
// pathological delays.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 1 {
		base = 2
	}
	d := time.Duration(math.Pow(base, float64(attempt)) * float64(time.Second))
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// EffectiveMaxAttempts resolves a subscription's attempt cap, substituting
// the policy default when the row carries no positive value.
func (p Policy) EffectiveMaxAttempts(maxAttempts int) int {
	if maxAttempts > 0 {
		return maxAttempts
	}
	if p.DefaultMaxAttempts > 0 {
		return p.DefaultMaxAttempts
	}
	return 3
}

// Decide maps one attempt outcome onto the delivery state machine:
// success is terminal, exhaustion of max attempts is terminal failure,
// anything else schedules a retry.
func (p Policy) Decide(attempt, maxAttempts int, succeeded bool) Decision {
	if succeeded {
		return Decision{Status: StatusSuccess}
	}
	if attempt < p.EffectiveMaxAttempts(maxAttempts) {
		due := p.now().Add(p.Backoff(attempt))
		return Decision{Status: StatusRetrying, NextAttemptAt: &due}
	}
	return Decision{Status: StatusFailed}
}
