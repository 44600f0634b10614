package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleBudgetPerIP(t *testing.T) {
	th := newIPThrottle(2, time.Minute)

	assert.True(t, th.take("203.0.113.1:1000"))
	assert.True(t, th.take("203.0.113.1:1001"))
	assert.False(t, th.take("203.0.113.1:1002"))

	// Separate clients get separate budgets; ports are ignored.
	assert.True(t, th.take("203.0.113.2:1000"))
}

func TestThrottleWindowReset(t *testing.T) {
	th := newIPThrottle(1, 20*time.Millisecond)

	assert.True(t, th.take("203.0.113.1:1000"))
	assert.False(t, th.take("203.0.113.1:1000"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, th.take("203.0.113.1:1000"))
}

func TestThrottleBareAddr(t *testing.T) {
	th := newIPThrottle(1, time.Minute)

	assert.True(t, th.take("203.0.113.9"))
	assert.False(t, th.take("203.0.113.9"))
}
