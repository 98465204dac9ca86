package gateway

import (
	"sync"
	"time"
)

// Throttle enforces a minimum interval between accepted events per key.
// State is process-local and rebuilt from zero on restart; horizontal
// scaling needs a shared backing store instead.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether an event for key may pass, and records the accept
// timestamp when it does. Rejected events leave the window untouched.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.window {
		return false
	}

	t.last[key] = now
	return true
}

// Forget drops the key's throttle state.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.last, key)
}
