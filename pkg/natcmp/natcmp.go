// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package natcmp provides human-natural string comparison for directory
// listings. Digit runs are compared numerically, everything else is compared
// case-insensitively, so "f2.jpg" sorts before "f10.jpg".
package natcmp

import (
	"strings"
	"unicode"
)

// Compare returns -1, 0, or 1 ordering a before b under natural comparison.
// Comparison is case-insensitive; a case-sensitive comparison breaks ties so
// the total order stays deterministic.
func Compare(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)

	if c := compareFolded(la, lb); c != 0 {
		return c
	}

	// Same when folded; fall back to byte order for a stable total order.
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b under natural comparison.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func compareFolded(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0

	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]

		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			// Consume both digit runs and compare them as numbers.
			ia, na := digitRun(ra, i)
			ib, nb := digitRun(rb, j)

			if c := compareDigits(na, nb); c != 0 {
				return c
			}

			i, j = ia, ib
			continue
		}

		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}

		i++
		j++
	}

	switch {
	case i < len(ra):
		return 1
	case j < len(rb):
		return -1
	default:
		return 0
	}
}

// digitRun returns the index after the digit run starting at i and the run
// with leading zeros stripped.
func digitRun(r []rune, i int) (int, []rune) {
	start := i
	for i < len(r) && unicode.IsDigit(r[i]) {
		i++
	}

	run := r[start:i]
	for len(run) > 1 && run[0] == '0' {
		run = run[1:]
	}

	return i, run
}

func compareDigits(a, b []rune) int {
	// Longer run of significant digits is the larger number.
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}

	for k := range a {
		if a[k] != b[k] {
			if a[k] < b[k] {
				return -1
			}
			return 1
		}
	}

	return 0
}
