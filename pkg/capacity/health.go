package capacity

import "sync"

// errorTracker is a fixed-size sliding window of recent call outcomes used
// to compute a health score in [0,1]. A freshly created tracker (no
// outcomes yet) reports perfect health, so a never-used item is preferred
// over one with a recorded failure.
type errorTracker struct {
	mu       sync.Mutex
	outcomes []bool // true == success
	next     int
	filled   bool
	failures int
}

func newErrorTracker(window int) *errorTracker {
	return &errorTracker{outcomes: make([]bool, window)}
}

func (t *errorTracker) recordSuccess() {
	t.record(true)
}

func (t *errorTracker) recordFailure() {
	t.record(false)
}

func (t *errorTracker) record(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.filled && !t.outcomes[t.next] {
		t.failures--
	}
	t.outcomes[t.next] = success
	if !success {
		t.failures++
	}
	t.next++
	if t.next == len(t.outcomes) {
		t.next = 0
		t.filled = true
	}
}

// health returns 1 - errorRate over the current window. f(errorRate) here
// is the identity function, which is monotone and bounded in [0,1] as
// required by the specification; callers needing a sharper curve can wrap
// CapacityState and rescale Health().
func (t *errorTracker) health() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	if t.filled {
		n = len(t.outcomes)
	}
	if n == 0 {
		return 1
	}
	return 1 - float64(t.failures)/float64(n)
}
