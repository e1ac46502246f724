// Package debounce provides the two scheduling primitives shared by the
// persistence and refresh paths: a trailing debouncer that coalesces bursts of
// writes into one, and a latest-request tracker that lets a new background task
// supersede the one before it.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Debouncer runs the most recently triggered function once no new trigger has
// arrived for the configured delay. Each Trigger cancels and restarts the window.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
	gen     uint64
}

// New creates a Debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, replacing any pending function and restarting the window.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Flush runs the pending function immediately, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop discards the pending function without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = nil
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Latest tracks a single outstanding background request. Beginning a new
// request cancels the previous one; only the newest request is current.
type Latest struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin cancels the previous request and returns a context and token for the new one.
func (l *Latest) Begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	l.cancel = cancel
	return ctx, l.gen
}

// IsCurrent reports whether token belongs to the newest request.
func (l *Latest) IsCurrent(token uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return token == l.gen
}

// End releases the request's context if it is still the newest one.
func (l *Latest) End(token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token == l.gen && l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Cancel aborts the outstanding request, if any.
func (l *Latest) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}
