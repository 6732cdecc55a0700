// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package layout

import (
	"fmt"
	"sync"

	"github.com/autobrr/lumen/internal/index"
)

// cacheKey identifies one prepared page payload.
type cacheKey struct {
	dirSHA         string
	sort           index.SortOrder
	page           int
	showDuplicates bool
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%t", k.dirSHA, k.sort, k.page, k.showDuplicates)
}

// pageCache memoizes prepared pages. Eviction happens per directory SHA
// across every sort/page/flag combination, so a stale key is gone before the
// invalidation call that triggered it returns. Every purge bumps the
// directory's generation; a set carrying an older generation is discarded,
// which keeps a purge racing an in-flight build from being overwritten by
// the stale page that build produces.
type pageCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*Page
	gens    map[string]uint64
	epoch   uint64
}

func newPageCache() *pageCache {
	return &pageCache{
		entries: make(map[cacheKey]*Page),
		gens:    make(map[string]uint64),
	}
}

func (c *pageCache) get(k cacheKey) (*Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[k]
	return p, ok
}

// generation snapshots the purge counter for a directory. Builders take it
// before reading the index and hand it back to set.
func (c *pageCache) generation(dirSHA string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch + c.gens[dirSHA]
}

// set stores a page built at generation gen, dropping it when the directory
// was purged since the snapshot.
func (c *pageCache) set(k cacheKey, p *Page, gen uint64) {
	c.mu.Lock()
	if c.epoch+c.gens[k.dirSHA] == gen {
		c.entries[k] = p
	}
	c.mu.Unlock()
}

// purgeDir drops every cached page for one directory. The key space is
// small (pages actually rendered), so the scan is cheap.
func (c *pageCache) purgeDir(dirSHA string) {
	c.mu.Lock()
	for k := range c.entries {
		if k.dirSHA == dirSHA {
			delete(c.entries, k)
		}
	}
	c.gens[dirSHA]++
	c.mu.Unlock()
}

// purgeAll bumps the shared epoch instead of resetting per-directory
// counters, so generations only ever move forward.
func (c *pageCache) purgeAll() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]*Page)
	c.epoch++
	c.mu.Unlock()
}

func (c *pageCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
