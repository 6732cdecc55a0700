// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package invalidator

import "sync"

// buffer coalesces filesystem events by containing directory. Keys are
// directory paths, so the buffer stays small even under an event storm; the
// soft cap trips it into a single coarse whole-index invalidation instead of
// letting the key set grow without bound.
type buffer struct {
	mu       sync.Mutex
	dirs     map[string]struct{}
	overflow bool
	softCap  int
}

func newBuffer(softCap int) *buffer {
	return &buffer{dirs: make(map[string]struct{}), softCap: softCap}
}

// add records one directory needing invalidation. Duplicate adds within a
// flush window collapse to one key.
func (b *buffer) add(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow {
		return
	}

	b.dirs[dir] = struct{}{}
	if b.softCap > 0 && len(b.dirs) > b.softCap {
		b.overflow = true
		b.dirs = make(map[string]struct{})
	}
}

// swap atomically exchanges the buffered state for an empty one. The caller
// processes the snapshot outside the lock.
func (b *buffer) swap() (dirs map[string]struct{}, overflow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dirs = b.dirs
	overflow = b.overflow
	b.dirs = make(map[string]struct{})
	b.overflow = false
	return dirs, overflow
}

// len reports the current key count, for tests and logging.
func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirs)
}
