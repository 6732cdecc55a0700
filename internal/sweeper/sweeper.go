// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sweeper reaps soft-deleted index rows and orphaned thumbnail
// records on a schedule. Rows marked delete_pending are kept for a grace
// period so responses in flight when the file vanished can finish.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/models"
)

const (
	defaultInterval = time.Hour
	defaultGrace    = time.Hour
)

// Options configures a Sweeper.
type Options struct {
	// Interval between sweeps. Zero means hourly.
	Interval time.Duration
	// Grace is how long delete-pending directory rows survive before hard
	// deletion. Zero means one hour.
	Grace time.Duration
}

// Sweeper owns the periodic reaping pass.
type Sweeper struct {
	dirs   *models.DirectoryStore
	files  *models.FileStore
	thumbs *models.ThumbnailStore

	interval time.Duration
	grace    time.Duration
}

func New(db *database.DB, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}

	return &Sweeper{
		dirs:     models.NewDirectoryStore(db),
		files:    models.NewFileStore(db),
		thumbs:   models.NewThumbnailStore(db),
		interval: opts.Interval,
		grace:    opts.Grace,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep performs one reaping pass: hard-delete expired soft-deleted rows,
// then drop thumbnail records no live file refers to. Order matters; files
// removed in this pass make their thumbnails reapable in the same pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	files, err := s.files.HardDeletePending(ctx)
	if err != nil {
		return err
	}

	dirs, err := s.dirs.HardDeletePending(ctx, time.Now().Add(-s.grace))
	if err != nil {
		return err
	}

	thumbs, err := s.thumbs.ReapOrphans(ctx)
	if err != nil {
		return err
	}

	if files+dirs+thumbs > 0 {
		log.Info().
			Int64("files", files).
			Int64("directories", dirs).
			Int64("thumbnails", thumbs).
			Msg("swept expired rows")
	}

	return nil
}
