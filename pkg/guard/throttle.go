package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CallerThrottle rate-limits intents per caller id. Over-limit callers
// get a deny outcome, not an error, so the rejection reaches the caller
// through the normal result path.
type CallerThrottle struct {
	mu      sync.Mutex
	callers map[string]*throttledCaller
	rps     rate.Limit
	burst   int
	stop    chan struct{}
	once    sync.Once
}

type throttledCaller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewCallerThrottle creates a throttle allowing rps intents per second
// with the given burst per caller.
func NewCallerThrottle(rps float64, burst int) *CallerThrottle {
	t := &CallerThrottle{
		callers: make(map[string]*throttledCaller),
		rps:     rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go t.cleanup()
	return t
}

// Allow reports whether the caller may proceed. An empty caller id is
// never throttled; anonymous intents are the role check's problem.
func (t *CallerThrottle) Allow(callerID string) bool {
	if callerID == "" {
		return true
	}

	t.mu.Lock()
	c, ok := t.callers[callerID]
	if !ok {
		c = &throttledCaller{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.callers[callerID] = c
	}
	c.lastSeen = time.Now()
	t.mu.Unlock()

	return c.limiter.Allow()
}

// cleanup drops callers not seen for three minutes.
func (t *CallerThrottle) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			for id, c := range t.callers {
				if time.Since(c.lastSeen) > 3*time.Minute {
					delete(t.callers, id)
				}
			}
			t.mu.Unlock()
		}
	}
}

// Close stops the background cleanup loop.
func (t *CallerThrottle) Close() {
	t.once.Do(func() { close(t.stop) })
}
