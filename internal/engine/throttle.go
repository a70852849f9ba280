package engine

import (
	"sync"
	"time"
)

// Throttle enforces a bytes-per-second cap over a rolling one-second
// window. One Throttle is shared by all writers of a task, so parallel
// segments draw from a single budget.
type Throttle struct {
	mu          sync.Mutex
	maxSpeed    int64 // bytes/sec, 0 = unlimited
	windowStart time.Time
	windowBytes int64
}

// NewThrottle returns an unlimited throttle with a fresh window.
func NewThrottle() *Throttle {
	return &Throttle{windowStart: time.Now()}
}

// SetLimit updates the cap. 0 means unlimited.
func (t *Throttle) SetLimit(bytesPerSec int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	t.maxSpeed = bytesPerSec
}

// Limit returns the current cap.
func (t *Throttle) Limit() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxSpeed
}

// Reset restarts the window; called when a task (re)starts.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windowStart = time.Now()
	t.windowBytes = 0
}

// Grant returns how many of the requested bytes may be written now and
// commits them to the window. Returns 0 when the window budget is spent;
// the caller backs off and retries. The window restarts once it is at
// least a second old.
func (t *Throttle) Grant(want int64) int64 {
	if want <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxSpeed <= 0 {
		return want
	}

	now := time.Now()
	elapsed := now.Sub(t.windowStart)
	elapsedMs := elapsed.Milliseconds()
	if elapsedMs <= 0 {
		elapsedMs = 1
	}

	allowed := t.maxSpeed*elapsedMs/1000 - t.windowBytes
	if allowed <= 0 {
		if elapsed >= time.Second {
			t.windowStart = now
			t.windowBytes = 0
		}
		return 0
	}

	grant := want
	if grant > allowed {
		grant = allowed
	}
	t.windowBytes += grant

	if elapsed >= time.Second {
		t.windowStart = now
		t.windowBytes = 0
	}
	return grant
}
