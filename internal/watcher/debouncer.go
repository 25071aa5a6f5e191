package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid filesystem changes into one notification per
// scope. A single git operation touches its marker files several times in
// quick succession; subscribers only need to re-query once per burst.
type Debouncer struct {
	mu       sync.Mutex
	pending  map[Scope]*time.Timer
	interval time.Duration
	callback func(Scope)
	stopped  bool
}

// NewDebouncer creates a debouncer that invokes callback once per scope
// after intervalMs of quiet.
func NewDebouncer(intervalMs int, callback func(Scope)) *Debouncer {
	return &Debouncer{
		pending:  make(map[Scope]*time.Timer),
		interval: time.Duration(intervalMs) * time.Millisecond,
		callback: callback,
	}
}

// Trigger schedules a notification for the scope. If one is already
// pending its timer is reset, extending the quiet window.
func (d *Debouncer) Trigger(scope Scope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, ok := d.pending[scope]; ok {
		timer.Reset(d.interval)
		return
	}

	d.pending[scope] = time.AfterFunc(d.interval, func() {
		d.fire(scope)
	})
}

func (d *Debouncer) fire(scope Scope) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, scope)
	d.mu.Unlock()

	d.callback(scope)
}

// Stop cancels all pending notifications. The debouncer cannot be reused
// afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for scope, timer := range d.pending {
		timer.Stop()
		delete(d.pending, scope)
	}
}

// PendingCount returns the number of scopes with a notification scheduled.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
