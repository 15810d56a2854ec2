package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits log lines per key. A fault that repeats on every poll
// is logged at most once per interval (after an initial burst), and the next
// allowed line reports how many were dropped in between.
type Throttle struct {
	mu    sync.Mutex
	every time.Duration
	burst int
	keys  map[string]*throttleState
}

type throttleState struct {
	lim        *rate.Limiter
	suppressed int
}

// NewThrottle allows burst lines per key, refilled one per every.
func NewThrottle(every time.Duration, burst int) *Throttle {
	if every <= 0 {
		every = time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{every: every, burst: burst, keys: make(map[string]*throttleState)}
}

// Allow is AllowAt(key, time.Now()).
func (t *Throttle) Allow(key string) (bool, int) { return t.AllowAt(key, time.Now()) }

// AllowAt reports whether a line for key may be written at now, and how many
// lines were suppressed since the last allowed one.
func (t *Throttle) AllowAt(key string, now time.Time) (bool, int) {
	if t == nil {
		return true, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.keys[key]
	if !ok {
		st = &throttleState{lim: rate.NewLimiter(rate.Every(t.every), t.burst)}
		t.keys[key] = st
	}
	if !st.lim.AllowN(now, 1) {
		st.suppressed++
		return false, 0
	}
	n := st.suppressed
	st.suppressed = 0
	return true, n
}

// Forget drops the state for key, e.g. once a fault has cleared.
func (t *Throttle) Forget(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.keys, key)
	t.mu.Unlock()
}
