package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinear_CapsAtCeiling(t *testing.T) {
	p := Linear(10*time.Millisecond, 3)
	assert.Equal(t, 10*time.Millisecond, p(1, KindTransient))
	assert.Equal(t, 20*time.Millisecond, p(2, KindTransient))
	assert.Equal(t, 30*time.Millisecond, p(3, KindTransient))
	assert.Equal(t, 30*time.Millisecond, p(10, KindTransient), "errorCount beyond ceiling is clamped")
}

func TestExponential_GrowsAndJitters(t *testing.T) {
	p := Exponential(10*time.Millisecond, 1*time.Second, rand.New(rand.NewSource(42)))
	assert.Equal(t, time.Duration(0), p(0, KindTransient))

	d1 := p(1, KindTransient)
	assert.GreaterOrEqual(t, d1, 10*time.Millisecond)
	assert.Less(t, d1, 15*time.Millisecond)

	d4 := p(4, KindTransient)
	// base*2^3 = 80ms, plus jitter up to 40ms.
	assert.GreaterOrEqual(t, d4, 80*time.Millisecond)
	assert.Less(t, d4, 120*time.Millisecond)
}

func TestExponential_RespectsCeiling(t *testing.T) {
	p := Exponential(10*time.Millisecond, 50*time.Millisecond, rand.New(rand.NewSource(1)))
	d := p(20, KindTransient) // base*2^19 is far past the cap
	assert.LessOrEqual(t, d, 75*time.Millisecond)
}

func TestFatalOn4xx_GivesUpOnFatal(t *testing.T) {
	inner := Linear(10*time.Millisecond, 3)
	p := FatalOn4xx(inner)
	assert.Equal(t, GiveUp, p(1, KindFatal))
	assert.Equal(t, 10*time.Millisecond, p(1, KindTransient))
	assert.Equal(t, 10*time.Millisecond, p(1, KindRateLimited))
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.Equal(t, KindRateLimited, ClassifyHTTPStatus(429))
	assert.Equal(t, KindFatal, ClassifyHTTPStatus(404))
	assert.Equal(t, KindFatal, ClassifyHTTPStatus(400))
	assert.Equal(t, KindTransient, ClassifyHTTPStatus(500))
	assert.Equal(t, KindTransient, ClassifyHTTPStatus(503))
}

func TestConfig_Build(t *testing.T) {
	cfg := DefaultConfig
	assert.NoError(t, cfg.Validate())
	p := cfg.Build(rand.New(rand.NewSource(7)))
	assert.Equal(t, GiveUp, p(1, KindFatal))
	assert.Greater(t, p(1, KindTransient), time.Duration(0))
}
