// Package reconnect schedules bounded exponential backoff attempts to restore
// a dropped call link.
//
// The Manager owns at most one pending timer. Each episode (one outage) has
// a generation number so a timer that fires after Cancel is ignored.
package reconnect

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPolicy indicates a policy that cannot produce a schedule
	ErrInvalidPolicy = errors.New("invalid reconnect policy")
)

// Policy describes the backoff schedule.
type Policy struct {
	// Base is the delay before the first attempt.
	Base time.Duration
	// Factor multiplies the delay after each failed attempt.
	Factor float64
	// MaxDelay caps any single delay.
	MaxDelay time.Duration
	// MaxRetries is the number of attempts before giving up.
	MaxRetries int
}

// DefaultPolicy returns 1s, 2s, 4s, 8s, 16s then give up.
func DefaultPolicy() *Policy {
	return &Policy{
		Base:       time.Second,
		Factor:     2,
		MaxDelay:   30 * time.Second,
		MaxRetries: 5,
	}
}

// Validate checks the policy.
func (p *Policy) Validate() error {
	if p.Base <= 0 {
		return fmt.Errorf("%w: base delay must be positive", ErrInvalidPolicy)
	}
	if p.Factor < 1 {
		return fmt.Errorf("%w: factor must be at least 1", ErrInvalidPolicy)
	}
	if p.MaxDelay < p.Base {
		return fmt.Errorf("%w: max delay below base delay", ErrInvalidPolicy)
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1", ErrInvalidPolicy)
	}
	return nil
}

// Delay returns min(Base*Factor^n, MaxDelay) for the zero-based attempt n.
func (p *Policy) Delay(n int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < n; i++ {
		d *= p.Factor
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Schedule returns every delay of an episode in order.
func (p *Policy) Schedule() []time.Duration {
	out := make([]time.Duration, p.MaxRetries)
	for i := range out {
		out[i] = p.Delay(i)
	}
	return out
}
