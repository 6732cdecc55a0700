// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoCoalescesBurst(t *testing.T) {
	t.Parallel()

	d := New(50 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 100; i++ {
		d.Do(func() { calls.Add(1) })
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	// No further executions after the burst settled.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestQuietPeriodRestartsOnSubmission(t *testing.T) {
	t.Parallel()

	d := New(80 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 4; i++ {
		d.Do(func() { calls.Add(1) })
		time.Sleep(30 * time.Millisecond)
	}

	// Submissions kept arriving inside the quiet period, so nothing has run.
	require.Equal(t, int32(0), calls.Load())

	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestFlushRunsPendingImmediately(t *testing.T) {
	t.Parallel()

	d := New(time.Hour)
	defer d.Stop()

	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })
	require.True(t, d.Queued())

	d.Flush()
	require.Equal(t, int32(1), calls.Load())
	require.False(t, d.Queued())

	// Flush with nothing pending is a no-op.
	d.Flush()
	require.Equal(t, int32(1), calls.Load())
}

func TestStoppedDebouncerRunsInline(t *testing.T) {
	t.Parallel()

	d := New(time.Hour)
	d.Stop()

	var calls atomic.Int32
	d.Do(func() { calls.Add(1) })
	require.Equal(t, int32(1), calls.Load())
}
