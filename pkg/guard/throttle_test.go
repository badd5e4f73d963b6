package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerThrottle_BurstThenDeny(t *testing.T) {
	throttle := NewCallerThrottle(0, 2) // two intents, no refill
	defer throttle.Close()

	assert.True(t, throttle.Allow("c1"))
	assert.True(t, throttle.Allow("c1"))
	assert.False(t, throttle.Allow("c1"))
}

func TestCallerThrottle_PerCallerBuckets(t *testing.T) {
	throttle := NewCallerThrottle(0, 1)
	defer throttle.Close()

	assert.True(t, throttle.Allow("c1"))
	assert.False(t, throttle.Allow("c1"))
	assert.True(t, throttle.Allow("c2"), "each caller gets its own bucket")
}

func TestCallerThrottle_AnonymousCallerNeverThrottled(t *testing.T) {
	throttle := NewCallerThrottle(0, 1)
	defer throttle.Close()

	for i := 0; i < 10; i++ {
		assert.True(t, throttle.Allow(""))
	}
}

func TestCallerThrottle_CloseIsIdempotent(t *testing.T) {
	throttle := NewCallerThrottle(1, 1)
	throttle.Close()
	throttle.Close()
}
