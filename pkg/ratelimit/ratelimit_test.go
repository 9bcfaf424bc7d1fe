package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireDrainsAndRefills(t *testing.T) {
	s := NewState(NewTier(2, 1000))

	assert.True(t, s.Acquire(0))
	assert.True(t, s.Acquire(0))
	assert.False(t, s.Acquire(0), "capacity exhausted at remaining=0")

	// After a full window, the bucket should have refilled to capacity.
	assert.True(t, s.Acquire(1000))
}

func TestEstimateRemainingIsPure(t *testing.T) {
	s := NewState(NewTier(5, 1000))
	before := s.EstimateRemaining(0)
	_ = s.EstimateRemaining(500)
	after := s.EstimateRemaining(0)
	assert.Equal(t, before, after, "EstimateRemaining must not mutate state")
}

func TestCanAcquireBoundary(t *testing.T) {
	s := NewState(NewTier(1, 1000))
	assert.True(t, s.CanAcquire(0))
	assert.True(t, s.Acquire(0))
	assert.False(t, s.CanAcquire(0), "remaining=0 must not permit another acquire")
}

func TestMultiTierGate(t *testing.T) {
	// A tight minute tier and a loose hour tier: the minute tier governs.
	s := NewState(NewTier(1, 60_000), NewTier(100, 3_600_000))
	assert.True(t, s.Acquire(0))
	assert.False(t, s.Acquire(0), "minute tier exhausted even though hour tier has headroom")
}

func TestRemainingNeverExceedsCapacity(t *testing.T) {
	s := NewState(NewTier(3, 1000))
	// Let a huge amount of time pass; refill must clamp to capacity.
	remaining := s.EstimateRemaining(1_000_000)
	for _, r := range remaining {
		assert.LessOrEqual(t, r, uint(3))
	}
}
