// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package invalidator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeMarker struct {
	mu    sync.Mutex
	dirs  map[string]int
	all   int
	calls int
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{dirs: make(map[string]int)}
}

func (m *fakeMarker) MarkInvalid(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path]++
	m.calls++
	return nil
}

func (m *fakeMarker) MarkAllInvalid(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all++
	return nil
}

func (m *fakeMarker) snapshot() (map[string]int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dirs := make(map[string]int, len(m.dirs))
	for k, v := range m.dirs {
		dirs[k] = v
	}
	return dirs, m.all, m.calls
}

func TestBufferDeduplicates(t *testing.T) {
	t.Parallel()

	b := newBuffer(100)
	for i := 0; i < 50; i++ {
		b.add("/root/bulk")
	}
	b.add("/root/other")

	dirs, overflow := b.swap()
	require.False(t, overflow)
	require.Len(t, dirs, 2)
	require.Contains(t, dirs, "/root/bulk")
	require.Contains(t, dirs, "/root/other")

	// The swap left an empty buffer behind.
	dirs, overflow = b.swap()
	require.False(t, overflow)
	require.Empty(t, dirs)
}

func TestBufferSoftCapOverflows(t *testing.T) {
	t.Parallel()

	b := newBuffer(5)
	for i := 0; i < 10; i++ {
		b.add(fmt.Sprintf("/root/d%d", i))
	}

	dirs, overflow := b.swap()
	require.True(t, overflow)
	require.Empty(t, dirs, "overflow discards per-directory keys")
}

func TestFlushOverflowInvalidatesEverything(t *testing.T) {
	t.Parallel()

	marker := newFakeMarker()
	svc, err := NewService(marker, Options{Root: t.TempDir(), SoftKeyCap: 3})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		svc.buf.add(fmt.Sprintf("/root/d%d", i))
	}
	svc.flush()

	dirs, all, _ := marker.snapshot()
	require.Empty(t, dirs)
	require.Equal(t, 1, all)
}

func TestEventStormCoalescesPerDirectory(t *testing.T) {
	root := t.TempDir()
	dirA := filepath.Join(root, "a")
	dirB := filepath.Join(root, "b")
	require.NoError(t, os.Mkdir(dirA, 0o755))
	require.NoError(t, os.Mkdir(dirB, 0o755))

	marker := newFakeMarker()
	svc, err := NewService(marker, Options{Root: root, Debounce: 150 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	// Give the watcher a moment to subscribe before generating events.
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 50; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dirA, fmt.Sprintf("f%04d.jpg", i)), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dirB, fmt.Sprintf("f%04d.jpg", i)), []byte("x"), 0o644))
	}

	require.Eventually(t, func() bool {
		dirs, _, _ := marker.snapshot()
		return dirs[dirA] > 0 && dirs[dirB] > 0
	}, 5*time.Second, 20*time.Millisecond)

	dirs, all, _ := marker.snapshot()
	require.Equal(t, 0, all)
	require.Equal(t, 1, dirs[dirA], "a storm within the debounce window is one invalidation")
	require.Equal(t, 1, dirs[dirB])
}

func TestCreatedDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()

	marker := newFakeMarker()
	svc, err := NewService(marker, Options{Root: root, Debounce: 100 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(root, "new")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Wait until the create event has been flushed, which also means the new
	// directory's watch is installed.
	require.Eventually(t, func() bool {
		dirs, _, _ := marker.snapshot()
		return dirs[root] > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "inside.jpg"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		dirs, _, _ := marker.snapshot()
		return dirs[sub] > 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestParseRestartSchedule(t *testing.T) {
	t.Parallel()

	s, err := parseRestartSchedule(nil)
	require.NoError(t, err)
	require.Equal(t, time.Hour, s.next(time.Now()))

	s, err = parseRestartSchedule([]string{"30m"})
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, s.next(time.Now()))

	s, err = parseRestartSchedule([]string{"03:00", "15:00"})
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	require.Equal(t, time.Hour, s.next(now))
	now = time.Date(2026, 1, 1, 16, 0, 0, 0, time.UTC)
	require.Equal(t, 11*time.Hour, s.next(now))

	_, err = parseRestartSchedule([]string{"25:99"})
	require.Error(t, err)

	_, err = parseRestartSchedule([]string{"-1h"})
	require.Error(t, err)
}

func TestMarkInvalidIdempotentThroughBuffer(t *testing.T) {
	t.Parallel()

	marker := newFakeMarker()
	svc, err := NewService(marker, Options{Root: t.TempDir()})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		svc.buf.add("/root/same")
	}
	svc.flush()
	svc.flush() // empty buffer, no further calls

	dirs, _, calls := marker.snapshot()
	require.Equal(t, 1, calls)
	require.Equal(t, 1, dirs["/root/same"])
}
