// Package dispatch implements the Call Dispatcher: it selects a backend
// from a Load Balancer, claims capacity according to the configured mode,
// invokes the operation, and retries/fails over on error.
package dispatch

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sava-software/rpc-core/pkg/balancer"
	clockpkg "github.com/sava-software/rpc-core/pkg/clock"
	"github.com/sava-software/rpc-core/pkg/retry"
)

// Operation is the async unit of work dispatched against a selected
// backend. It must respect ctx cancellation.
type Operation[B, R any] func(ctx context.Context, backend B) (R, error)

// Classifier turns an error returned by Operation into a retry.ErrorKind so
// the item's Policy can decide whether, and how long, to back off.
type Classifier func(error) retry.ErrorKind

// DefaultClassifier treats every error as transient. Callers with a richer
// error taxonomy (HTTP status codes, RPC error codes) should supply their
// own, typically built on retry.ClassifyHTTPStatus.
func DefaultClassifier(error) retry.ErrorKind { return retry.KindTransient }

// Dispatcher selects backends from a Load Balancer and invokes Operation
// against them, handling capacity claims, retries, and failover.
type Dispatcher[B, R any] struct {
	Balancer   *balancer.LoadBalancer[B]
	Operation  Operation[B, R]
	Classify   Classifier
	Call       CallContext
	LogContext string

	clock clockpkg.Clock
}

// New constructs a Dispatcher. If classify is nil, DefaultClassifier is
// used. If clk is nil, the real wall clock is used.
func New[B, R any](lb *balancer.LoadBalancer[B], op Operation[B, R], call CallContext, classify Classifier, clk clockpkg.Clock) *Dispatcher[B, R] {
	if classify == nil {
		classify = DefaultClassifier
	}
	if clk == nil {
		clk = clockpkg.New()
	}
	return &Dispatcher[B, R]{
		Balancer:  lb,
		Operation: op,
		Classify:  classify,
		Call:      call,
		clock:     clk,
	}
}

// Get selects a backend and runs Operation against it, retrying and
// failing over per the configured CallContext. It returns ErrNoCapacity if
// the dispatcher could not find a backend with capacity (courteous mode,
// ForceCall false), or the wrapped final error once retries are exhausted.
func (d *Dispatcher[B, R]) Get(ctx context.Context) (R, error) {
	var zero R

	selected, err := d.dispatchOnce(ctx)
	if err != nil {
		return zero, err
	}
	if selected == nil {
		return zero, ErrNoCapacity
	}

	numItems := d.Balancer.Size()
	errorCount := 0
	retryN := 0

	var start time.Time
	if d.Call.MeasureCallTime {
		start = d.clock.Now()
	}

	for {
		result, callErr := d.Operation(ctx, selected.Backend)
		if callErr == nil {
			if d.Call.MeasureCallTime {
				selected.Sample(d.clock.Now().Sub(start))
			}
			selected.Capacity.OnSuccess()
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, errors.Wrapf(ctxErr, "%s: call interrupted", d.logContext())
		}

		errorCount++
		kind := d.Classify(callErr)
		delay := selected.Policy(errorCount, kind)
		selected.Capacity.OnError(callErr)
		d.Balancer.Sort()

		if delay < 0 || errorCount > int(d.Call.MaxRetries) {
			return zero, errors.Wrapf(callErr, "%s: giving up after %d errors on %v", d.logContext(), errorCount, selected.Backend)
		}

		retryN++
		failingOver := retryN < numItems && d.Balancer.Peek() != selected
		if failingOver {
			errorCount = retryN - 1
		} else if delay > 0 {
			if sleepErr := sleepCtx(ctx, d.clock, delay); sleepErr != nil {
				return zero, sleepErr
			}
		}

		selected, err = d.dispatchOnce(ctx)
		if err != nil {
			return zero, err
		}
		if selected == nil {
			return zero, ErrNoCapacity
		}
		if d.Call.MeasureCallTime {
			start = d.clock.Now()
		}
	}
}

// dispatchOnce selects a backend and claims capacity according to mode. A
// nil, nil return means courteous mode exhausted maxTryClaim without
// ForceCall: a null result, to be reported to the caller as ErrNoCapacity
// rather than as an error in its own right.
func (d *Dispatcher[B, R]) dispatchOnce(ctx context.Context) (*balancer.Item[B], error) {
	switch d.Call.Mode {
	case Unchecked:
		return d.dispatchUnchecked(ctx)
	case Greedy:
		return d.dispatchGreedy(ctx)
	default:
		return d.dispatchCourteous(ctx)
	}
}

func (d *Dispatcher[B, R]) dispatchUnchecked(ctx context.Context) (*balancer.Item[B], error) {
	selected := d.Balancer.WithContext()
	if selected == nil {
		return nil, ErrNoBackends
	}
	return selected, nil
}

func (d *Dispatcher[B, R]) dispatchGreedy(ctx context.Context) (*balancer.Item[B], error) {
	selected := d.Balancer.WithContext()
	if selected == nil {
		return nil, ErrNoBackends
	}
	selected.Capacity.Claim(ctx, d.Call.CallWeight)
	return selected, nil
}

// dispatchCourteous implements the tryClaim/rotate/overdraft-on-exhaustion
// selection algorithm: it tries the current head, and on failure consults
// the rest of the balancer for any item with capacity before falling back
// to waiting out the head's cooldown. ForceCall controls whether exhausting
// maxTryClaim attempts overdrafts (true) or returns a null result (false).
func (d *Dispatcher[B, R]) dispatchCourteous(ctx context.Context) (*balancer.Item[B], error) {
	weight := d.Call.CallWeight
	selected := d.Balancer.WithContext()
	if selected == nil {
		return nil, ErrNoBackends
	}

attempts:
	for attempt := uint32(0); attempt < d.Call.MaxTryClaim; attempt++ {
		if selected.Capacity.TryClaim(ctx, weight) {
			return selected, nil
		}

		if d.Balancer.Size() > 1 {
			d.Balancer.Sort()
			previous := selected
			selected = d.Balancer.WithContext()
			if selected != previous && selected.Capacity.HasCapacity(ctx, weight) {
				continue attempts
			}
			for _, it := range d.Balancer.Items() {
				if it != previous && it.Capacity.HasCapacity(ctx, weight) {
					selected = it
					continue attempts
				}
			}
		}

		delay := selected.Capacity.DurationUntil(ctx, weight)
		if delay <= 0 {
			selected.Capacity.Claim(ctx, weight)
			return selected, nil
		}
		if sleepErr := sleepCtx(ctx, d.clock, delay); sleepErr != nil {
			return nil, sleepErr
		}
		d.Balancer.Sort()
		selected = d.Balancer.WithContext()
	}

	if d.Call.ForceCall {
		selected.Capacity.Claim(ctx, weight)
		return selected, nil
	}
	return nil, nil
}

func (d *Dispatcher[B, R]) logContext() string {
	if d.LogContext == "" {
		return "dispatch"
	}
	return d.LogContext
}

func sleepCtx(ctx context.Context, clk clockpkg.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "interrupted while sleeping before retry")
	case <-timer.C:
		return nil
	}
}
