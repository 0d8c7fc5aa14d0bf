package call

import (
	"sync"
	"time"
)

// Timer owns at most one pending timer. Arm replaces any armed timer,
// so a class of timer (ring, duration) can never fire twice for stale
// state. The callback runs on the timer goroutine after the owner has
// forgotten it, so it must re-check state itself.
type Timer struct {
	mu  sync.Mutex
	t   *time.Timer
	gen int
}

// Arm schedules fn after d, cancelling any previously armed timer.
func (t *Timer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	gen := t.gen
	t.t = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.gen != gen {
			// A later Arm or Cancel superseded this timer.
			t.mu.Unlock()
			return
		}
		t.t = nil
		t.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending timer, if any.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// Active reports whether a timer is pending.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}
