// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debounce provides quiet-period debounced execution. The timer is
// re-armed on every submission, so the wrapped function runs only after the
// configured period has elapsed with no new submissions.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer coalesces bursts of submissions into a single execution of the
// most recently submitted function.
type Debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	latest  func()
	delay   time.Duration
	stopped atomic.Bool
}

// New creates a Debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn to run once the quiet period elapses. Each call replaces
// the pending function and restarts the quiet period.
func (d *Debouncer) Do(fn func()) {
	if d.stopped.Load() {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.latest = fn

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.latest
	d.latest = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Queued reports whether an execution is pending.
func (d *Debouncer) Queued() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs any pending function immediately, without waiting for the quiet
// period. Used on shutdown and before watcher restarts so buffered work is
// not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.latest
	d.latest = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop flushes pending work and makes subsequent Do calls execute
// immediately.
func (d *Debouncer) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	d.Flush()
}
