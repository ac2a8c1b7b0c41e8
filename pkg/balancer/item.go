// Package balancer implements the Balanced Item and Load Balancer: an
// ordered collection of backends, each carrying its own capacity and error
// handler, that the call dispatcher consults to pick the best backend and
// to fail over between them.
package balancer

import (
	"sync"
	"time"

	"github.com/sava-software/rpc-core/pkg/capacity"
	clockpkg "github.com/sava-software/rpc-core/pkg/clock"
	"github.com/sava-software/rpc-core/pkg/retry"
)

// Item[B] pairs a backend B with its CapacityState and ErrorHandler, plus
// the latency/health samples the Load Balancer orders on.
type Item[B any] struct {
	Backend  B
	Capacity *capacity.CapacityState
	Policy   retry.Policy

	clock clockpkg.Clock

	mu           sync.Mutex
	latencyEwma  float64 // milliseconds; 0 means "no samples yet"
	skipUntil    time.Time
	insertionIdx int
}

// NewItem constructs a Balanced Item. insertionIdx breaks ties
// deterministically and should be the item's position when added to the
// Load Balancer.
func NewItem[B any](backend B, cap *capacity.CapacityState, policy retry.Policy, clock clockpkg.Clock, insertionIdx int) *Item[B] {
	if clock == nil {
		clock = clockpkg.New()
	}
	return &Item[B]{
		Backend:      backend,
		Capacity:     cap,
		Policy:       policy,
		clock:        clock,
		insertionIdx: insertionIdx,
	}
}

// Sample records an observed call latency into the EWMA used for ordering.
func (i *Item[B]) Sample(d time.Duration) {
	const alpha = 0.2
	ms := float64(d) / float64(time.Millisecond)

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.latencyEwma == 0 {
		i.latencyEwma = ms
		return
	}
	i.latencyEwma = alpha*ms + (1-alpha)*i.latencyEwma
}

// LatencyEwma returns the current latency estimate, in milliseconds.
func (i *Item[B]) LatencyEwma() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.latencyEwma
}

// Skip marks the item unselectable until now+d.
func (i *Item[B]) Skip(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.skipUntil = i.clock.Now().Add(d)
}

// Skipped reports whether the item is currently unselectable.
func (i *Item[B]) Skipped() bool {
	i.mu.Lock()
	until := i.skipUntil
	i.mu.Unlock()
	return i.clock.Now().Before(until)
}

// InsertionIndex returns the stable tie-break key.
func (i *Item[B]) InsertionIndex() int {
	return i.insertionIdx
}
