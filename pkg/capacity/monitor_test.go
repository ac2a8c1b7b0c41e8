package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clockpkg "github.com/sava-software/rpc-core/pkg/clock"
)

func newTestState(t *testing.T, cfg Config) (*CapacityState, *clockpkg.Mock) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	mock := clockpkg.NewMock()
	return New(cfg, mock), mock
}

func TestTryClaim_SucceedsWithinBurst(t *testing.T) {
	cfg := Config{Tokens: 10, RefillPerSecond: 1, Burst: 5, MinHealthForSelection: 0.2, ErrorWindow: 10}
	state, _ := newTestState(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, state.TryClaim(ctx, 1), "claim %d should succeed within burst", i)
	}
	assert.False(t, state.TryClaim(ctx, 1), "burst exhausted, claim should fail")
}

func TestTryClaim_DoesNotMutateOnFailure(t *testing.T) {
	cfg := Config{Tokens: 1, RefillPerSecond: 0, Burst: 1, MinHealthForSelection: 0.2, ErrorWindow: 10}
	state, _ := newTestState(t, cfg)
	ctx := context.Background()

	require.True(t, state.TryClaim(ctx, 1))
	// Repeated failed attempts must not further delay recovery: durationUntil
	// should be unaffected by the failed attempts below.
	before := state.DurationUntil(ctx, 1)
	for i := 0; i < 5; i++ {
		assert.False(t, state.TryClaim(ctx, 1))
	}
	after := state.DurationUntil(ctx, 1)
	assert.Equal(t, before, after)
}

func TestClaim_Overdrafts(t *testing.T) {
	cfg := Config{Tokens: 1, RefillPerSecond: 1, Burst: 1, MinHealthForSelection: 0.2, ErrorWindow: 10}
	state, mock := newTestState(t, cfg)
	ctx := context.Background()

	require.True(t, state.TryClaim(ctx, 1))
	// Claim again while empty: must succeed unconditionally (overdraft),
	// driving durationUntil forward.
	state.Claim(ctx, 1)
	d := state.DurationUntil(ctx, 1)
	assert.Greater(t, d, time.Duration(0))

	mock.Add(d)
	assert.True(t, state.TryClaim(ctx, 1))
}

func TestHasCapacity_NonMutating(t *testing.T) {
	cfg := Config{Tokens: 2, RefillPerSecond: 1, Burst: 2, MinHealthForSelection: 0.2, ErrorWindow: 10}
	state, _ := newTestState(t, cfg)
	ctx := context.Background()

	assert.True(t, state.HasCapacity(ctx, 2))
	assert.True(t, state.HasCapacity(ctx, 2), "checking capacity repeatedly must not drain it")
	assert.True(t, state.TryClaim(ctx, 2))
	assert.False(t, state.HasCapacity(ctx, 1))
}

func TestHealth_TracksOutcomeWindow(t *testing.T) {
	cfg := Config{Tokens: 10, RefillPerSecond: 10, Burst: 10, MinHealthForSelection: 0.2, ErrorWindow: 4}
	state, _ := newTestState(t, cfg)

	assert.Equal(t, 1.0, state.Health())
	state.OnError(assertErr{})
	assert.Equal(t, 0.0, state.Health(), "window not yet full: the only recorded outcome is a failure")
	state.OnError(assertErr{})
	state.OnError(assertErr{})
	state.OnError(assertErr{})
	assert.Equal(t, 0.0, state.Health())
	state.OnSuccess()
	// Window size 4, now full: the success overwrites the oldest failure
	// (slot 0), leaving 3 of 4 recorded outcomes as failures.
	assert.InDelta(t, 0.25, state.Health(), 1e-9)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
