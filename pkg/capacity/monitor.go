// Package capacity implements the per-backend token-bucket budget, error
// tracking, and health scoring that the load balancer and call dispatcher
// consult before (and after) every remote call.
package capacity

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	clockpkg "github.com/sava-software/rpc-core/pkg/clock"
)

// CapacityState is the per-backend mutable capacity record described by the
// data model: tokens never go negative in the limiter's own accounting
// except through claim's overdraft path, a successful claim always
// decrements tokens by weight even if that drives the estimated
// availability into the future, and outcome reporting feeds the health
// score used by the load balancer's ordering.
type CapacityState struct {
	limiter *rate.Limiter
	clock   clockpkg.Clock
	errs    *errorTracker
}

// New creates a CapacityState from a validated Config. cfg.Tokens is not
// read: golang.org/x/time/rate.NewLimiter starts a limiter with a full
// burst of tokens, so the initial fill is cfg.Burst, and cfg.Burst is also
// the ceiling that refill is capped at.
func New(cfg Config, clk clockpkg.Clock) *CapacityState {
	if clk == nil {
		clk = clockpkg.New()
	}
	return &CapacityState{
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), int(cfg.Burst)),
		clock:   clk,
		errs:    newErrorTracker(cfg.ErrorWindow),
	}
}

// TryClaim atomically deducts weight if enough tokens are available given
// the limiter's burst allowance, returning true. If insufficient, it
// returns false and mutates nothing.
func (c *CapacityState) TryClaim(_ context.Context, weight uint32) bool {
	now := c.clock.Now()
	r := c.limiter.ReserveN(now, clampToBurst(c.limiter, weight))
	if !r.OK() {
		return false
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false
	}
	return true
}

// Claim unconditionally deducts weight, possibly driving the estimated
// next-available timestamp into the future (overdraft).
func (c *CapacityState) Claim(_ context.Context, weight uint32) {
	now := c.clock.Now()
	c.limiter.ReserveN(now, clampToBurst(c.limiter, weight))
}

// HasCapacity performs the same check as TryClaim without mutating state.
func (c *CapacityState) HasCapacity(_ context.Context, weight uint32) bool {
	now := c.clock.Now()
	r := c.limiter.ReserveN(now, clampToBurst(c.limiter, weight))
	if !r.OK() {
		return false
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay <= 0
}

// DurationUntil estimates the wait before weight tokens would be
// available. Zero or negative means "now".
func (c *CapacityState) DurationUntil(_ context.Context, weight uint32) time.Duration {
	now := c.clock.Now()
	r := c.limiter.ReserveN(now, clampToBurst(c.limiter, weight))
	if !r.OK() {
		// !OK means the (burst-clamped) weight can never be reserved at all,
		// not merely that tokens are currently exhausted. With a zero refill
		// rate, rate.Limiter reports this once the remaining burst is below
		// weight: no tokens will ever arrive, so the wait is reported as the
		// largest representable duration.
		return time.Duration(1<<63 - 1)
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// OnSuccess records a successful outcome for health scoring.
func (c *CapacityState) OnSuccess() {
	c.errs.recordSuccess()
}

// OnError records a failed outcome for health scoring. The cause is
// accepted for symmetry with the specification but does not currently
// change how health is computed; retry/backoff decisions based on the
// error's kind belong to the Error Handler (pkg/retry), not here.
func (c *CapacityState) OnError(_ error) {
	c.errs.recordFailure()
}

// Health returns the current health score in [0,1].
func (c *CapacityState) Health() float64 {
	return c.errs.health()
}

// clampToBurst prevents requesting more tokens than the limiter's burst
// could ever grant, which would make ReserveN report !OK() forever. No
// configuration check relates callWeight to burst; a weight above the
// limiter's burst is clamped here to the burst size.
func clampToBurst(l *rate.Limiter, weight uint32) int {
	if b := l.Burst(); weight > uint32(b) && b > 0 {
		return b
	}
	return int(weight)
}
