// Package testsupport holds small test doubles shared across the core's
// package tests: a fake backend, a fake lookup table, and a scripted
// operation for driving the dispatcher deterministically.
package testsupport

import (
	"context"
	"sync"

	"github.com/sava-software/rpc-core/pkg/lookup"
)

// Backend is a named, comparable stand-in for a real RPC endpoint.
type Backend string

// FakeTable is a minimal lookup.LookupTable backed by an in-memory set.
type FakeTable struct {
	Addr     lookup.Address
	Accounts map[lookup.Address]struct{}
}

// NewFakeTable builds a FakeTable containing the given accounts.
func NewFakeTable(addr lookup.Address, accounts ...lookup.Address) *FakeTable {
	set := make(map[lookup.Address]struct{}, len(accounts))
	for _, a := range accounts {
		set[a] = struct{}{}
	}
	return &FakeTable{Addr: addr, Accounts: set}
}

func (t *FakeTable) Address() lookup.Address        { return t.Addr }
func (t *FakeTable) Contains(a lookup.Address) bool { _, ok := t.Accounts[a]; return ok }
func (t *FakeTable) NumUniqueAccounts() int         { return len(t.Accounts) }
func (t *FakeTable) SerializedLen() int             { return len(t.Accounts) * 32 }

// Outcome is one scripted result for ScriptedOperation: either a value or
// an error.
type Outcome[R any] struct {
	Result R
	Err    error
}

// ScriptedOperation replays a fixed sequence of outcomes per backend, one
// per invocation, looping the script's last entry once exhausted. It
// records every call it receives for assertions.
type ScriptedOperation[R any] struct {
	mu      sync.Mutex
	scripts map[Backend][]Outcome[R]
	cursor  map[Backend]int
	calls   []Backend
}

// NewScriptedOperation builds a ScriptedOperation with the given per-backend
// scripts.
func NewScriptedOperation[R any](scripts map[Backend][]Outcome[R]) *ScriptedOperation[R] {
	return &ScriptedOperation[R]{scripts: scripts, cursor: map[Backend]int{}}
}

// Call is an Operation[Backend, R] suitable for dispatch.Dispatcher.
func (s *ScriptedOperation[R]) Call(_ context.Context, b Backend) (R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, b)
	script := s.scripts[b]
	if len(script) == 0 {
		var zero R
		return zero, nil
	}
	i := s.cursor[b]
	if i >= len(script) {
		i = len(script) - 1
	} else {
		s.cursor[b] = i + 1
	}
	o := script[i]
	return o.Result, o.Err
}

// Calls returns the backends invoked so far, in order.
func (s *ScriptedOperation[R]) Calls() []Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Backend, len(s.calls))
	copy(out, s.calls)
	return out
}
