package state

import (
	"sync"

	"github.com/chainrelay/publisher/internal/domainerr"
)

// Timer is the scheduler's singleton re-entrancy guard and tick handle.
// Only the publisher mutates it.
type Timer struct {
	mu          sync.Mutex
	id          string
	isActive    bool
	initialized bool
}

// NewTimer returns a Timer armed with the given initial handle.
func NewTimer(id string) *Timer {
	return &Timer{id: id, initialized: true}
}

// IsActive reports whether a tick is currently in flight.
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isActive
}

// Activate marks the timer busy for the duration of one tick. It fails
// fast if the timer was never initialized.
func (t *Timer) Activate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return domainerr.ErrTimerUninitialized
	}
	t.isActive = true
	return nil
}

// Deactivate releases the re-entrancy guard, allowing the next tick to run.
func (t *Timer) Deactivate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isActive = false
}

// Rearm records a new opaque handle for the next scheduled tick.
func (t *Timer) Rearm(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.id = id
}

// ID returns the timer's current opaque handle.
func (t *Timer) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}
