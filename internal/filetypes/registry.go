// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filetypes

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Registry is the read-only extension lookup. Built once at startup; no
// locking needed afterwards.
type Registry struct {
	byExt map[string]Filetype
}

// NewRegistry loads all filetype rows from the store. Load failure is
// non-fatal: the registry stays empty and every file resolves to the
// fallback entry.
func NewRegistry(ctx context.Context, store *Store) *Registry {
	r := &Registry{byExt: make(map[string]Filetype)}

	rows, err := store.All(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load filetype registry, all files will be treated as unknown")
	} else {
		for _, ft := range rows {
			r.byExt[ft.Ext] = ft
		}
		log.Info().Int("filetypes", len(rows)).Msg("Filetype registry loaded")
	}

	// The fallback entry must always resolve, even when the table is empty
	// or was never seeded.
	if _, ok := r.byExt[FallbackExt]; !ok {
		r.byExt[FallbackExt] = fallbackFiletype()
	}

	return r
}

// NewRegistryFromSlice builds a registry directly from entries, used by
// tests and the seeding command.
func NewRegistryFromSlice(entries []Filetype) *Registry {
	r := &Registry{byExt: make(map[string]Filetype, len(entries)+1)}
	for _, ft := range entries {
		r.byExt[ft.Ext] = ft
	}
	if _, ok := r.byExt[FallbackExt]; !ok {
		r.byExt[FallbackExt] = fallbackFiletype()
	}
	return r
}

func fallbackFiletype() Filetype {
	return Filetype{
		Ext:          FallbackExt,
		Mimetype:     "application/octet-stream",
		IconFilename: "unknown.png",
		Color:        "#9e9e9e",
		Generic:      true,
	}
}

// ExistsByExt reports whether the extension (normalized) is registered.
// The fallback entry exists by construction, so empty and unknown
// extensions always return true.
func (r *Registry) ExistsByExt(ext string) bool {
	_, ok := r.byExt[NormalizeExt(ext)]
	return ok
}

// GetByExt resolves an extension to its Filetype, falling back to the
// ".none" entry for anything unregistered.
func (r *Registry) GetByExt(ext string) Filetype {
	if ft, ok := r.byExt[NormalizeExt(ext)]; ok {
		return ft
	}
	return r.byExt[FallbackExt]
}

// DirEntry returns the ".dir" entry carrying directory display metadata.
// Falls back like any other lookup when the registry was never seeded.
func (r *Registry) DirEntry() Filetype {
	return r.GetByExt(".dir")
}

// Len returns the number of registered extensions.
func (r *Registry) Len() int {
	return len(r.byExt)
}
