// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "errors"

// Error taxonomy shared across components. Stores and services wrap these so
// the HTTP edge can map them without knowing component internals.
var (
	// ErrNotFound: a path or SHA does not resolve. Maps to 404.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied: a permission error during enumeration or read. The
	// affected directory stays invalidated so the next access retries.
	ErrAccessDenied = errors.New("access denied")

	// ErrCorrupt: decode or parse failed on a media file. Absorbed by the
	// thumbnail pipeline, which stores a sentinel instead.
	ErrCorrupt = errors.New("corrupt media")

	// ErrInvariant: unexpected index state. Operations abort rather than
	// corrupt further; the full context is attached by the caller.
	ErrInvariant = errors.New("index invariant violation")
)
