package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindowLimiterEnforcesLimit(t *testing.T) {
	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	limiter := newFixedWindowLimiter(2, time.Minute, func() time.Time { return now })

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "limits are tracked per key")
}

func TestFixedWindowLimiterWindowReset(t *testing.T) {
	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	limiter := newFixedWindowLimiter(1, time.Minute, func() time.Time { return now })

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"), "a new window clears the count")
}

func TestFixedWindowLimiterInvalidConfig(t *testing.T) {
	assert.Nil(t, newFixedWindowLimiter(0, time.Minute, nil))
	assert.Nil(t, newFixedWindowLimiter(10, 0, nil))
}
