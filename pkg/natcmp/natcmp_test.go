// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package natcmp

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareNumericRuns(t *testing.T) {
	t.Parallel()

	require.Negative(t, Compare("f2.jpg", "f10.jpg"))
	require.Negative(t, Compare("f0002.jpg", "f10.jpg"))
	require.Positive(t, Compare("f10.jpg", "f2.jpg"))
	require.Zero(t, Compare("f10.jpg", "f10.jpg"))
}

func TestCompareCaseInsensitive(t *testing.T) {
	t.Parallel()

	require.Negative(t, Compare("Alpha.jpg", "beta.jpg"))
	require.Negative(t, Compare("alpha.jpg", "Beta.jpg"))

	// Folded-equal strings still produce a deterministic order.
	require.NotZero(t, Compare("Foo.Jpg", "foo.jpg"))
	require.Equal(t, -Compare("foo.jpg", "Foo.Jpg"), Compare("Foo.Jpg", "foo.jpg"))
}

func TestSortOrderIsStableAcrossRuns(t *testing.T) {
	t.Parallel()

	names := []string{"f10.jpg", "Cover.jpg", "f2.jpg", "album2", "album10", "f0003.jpg"}
	want := []string{"album2", "album10", "Cover.jpg", "f2.jpg", "f0003.jpg", "f10.jpg"}

	for run := 0; run < 3; run++ {
		shuffled := append([]string(nil), names...)
		sort.SliceStable(shuffled, func(i, j int) bool { return Less(shuffled[i], shuffled[j]) })
		require.Equal(t, want, shuffled)
	}
}

func TestCompareEmptyAndPrefix(t *testing.T) {
	t.Parallel()

	require.Negative(t, Compare("", "a"))
	require.Negative(t, Compare("abc", "abcd"))
	require.Positive(t, Compare("abcd", "abc"))
}
