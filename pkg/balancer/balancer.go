package balancer

import (
	"sort"
	"sync"
)

// LoadBalancer[B] is an ordered collection of Balanced Items. The ordering
// key (descending preference) is: skip status first (non-skipped wins),
// then health (higher wins), then latencyEwma (lower wins), then a stable
// insertion index, exactly as specified.
//
// Backed by a slice under a sync.RWMutex per the design notes: sort()
// installs a freshly sorted copy so readers (withContext, peek, items)
// never observe a partially sorted slice.
type LoadBalancer[B any] struct {
	mu    sync.RWMutex
	items []*Item[B]
}

// New constructs a LoadBalancer already sorted over the given items.
func New[B any](items []*Item[B]) *LoadBalancer[B] {
	lb := &LoadBalancer[B]{items: append([]*Item[B]{}, items...)}
	lb.Sort()
	return lb
}

// rank computes the ordering key tuple used to compare two items. Lower
// tuples sort first (i.e. are preferred).
type rank struct {
	skipped      bool
	negHealth    float64
	latencyEwma  float64
	insertionIdx int
}

func rankOf[B any](it *Item[B]) rank {
	return rank{
		skipped:      it.Skipped(),
		negHealth:    -it.Capacity.Health(),
		latencyEwma:  it.LatencyEwma(),
		insertionIdx: it.InsertionIndex(),
	}
}

func less(a, b rank) bool {
	if a.skipped != b.skipped {
		return !a.skipped // non-skipped wins
	}
	if a.negHealth != b.negHealth {
		return a.negHealth < b.negHealth // higher health (more negative) wins
	}
	if a.latencyEwma != b.latencyEwma {
		return a.latencyEwma < b.latencyEwma // lower latency wins
	}
	return a.insertionIdx < b.insertionIdx
}

// Sort re-applies the documented ordering using fresh samples, atomically
// publishing the new order.
func (lb *LoadBalancer[B]) Sort() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.items = sortedCopy(lb.items)
}

func sortedCopy[B any](items []*Item[B]) []*Item[B] {
	out := append([]*Item[B]{}, items...)
	ranks := make([]rank, len(out))
	for i, it := range out {
		ranks[i] = rankOf(it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(ranks[i], ranks[j])
	})
	return out
}

// WithContext returns the current head; stable until the next Sort().
func (lb *LoadBalancer[B]) WithContext() *Item[B] {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	if len(lb.items) == 0 {
		return nil
	}
	return lb.items[0]
}

// Peek returns the item that would be head after a hypothetical re-sort
// using fresh samples, without mutating the published order.
func (lb *LoadBalancer[B]) Peek() *Item[B] {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	if len(lb.items) == 0 {
		return nil
	}
	hypothetical := sortedCopy(lb.items)
	return hypothetical[0]
}

// Items returns a read-only snapshot of the published order.
func (lb *LoadBalancer[B]) Items() []*Item[B] {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	out := make([]*Item[B], len(lb.items))
	copy(out, lb.items)
	return out
}

// Size returns N, the number of balanced items.
func (lb *LoadBalancer[B]) Size() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.items)
}
