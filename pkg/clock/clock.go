// Package clock abstracts wall-clock time so that components with
// time-dependent behavior (token refill, backoff, EWMA sampling) can be
// driven deterministically in tests.
package clock

import "github.com/benbjohnson/clock"

// Clock is the subset of github.com/benbjohnson/clock.Clock the core needs.
type Clock = clock.Clock

// Mock is a manually-advanceable Clock for tests.
type Mock = clock.Mock

// New returns the real, wall-clock implementation.
func New() Clock {
	return clock.New()
}

// NewMock returns a Clock frozen at the zero time until advanced.
func NewMock() *Mock {
	return clock.NewMock()
}
