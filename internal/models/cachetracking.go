// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/autobrr/lumen/internal/dbinterface"
)

// CacheTracking is the per-directory invalidation marker consumed by the
// sync engine. The invalidator flips it on; a successful sync flips it off.
type CacheTracking struct {
	DirSHA      string
	Invalidated bool
	LastScan    *time.Time
}

// CacheTrackingStore handles database operations for cache_tracking.
type CacheTrackingStore struct {
	db dbinterface.Querier
}

func NewCacheTrackingStore(db dbinterface.Querier) *CacheTrackingStore {
	return &CacheTrackingStore{db: db}
}

// Get returns the tracking entry for a directory, or a synthetic
// invalidated entry when none exists yet (a never-scanned directory is by
// definition stale).
func (s *CacheTrackingStore) Get(ctx context.Context, dirSHA string) (*CacheTracking, error) {
	query := `SELECT dir_sha256, invalidated, lastscan FROM cache_tracking WHERE dir_sha256 = ?`

	var ct CacheTracking
	var lastScan sql.NullTime
	err := s.db.QueryRowContext(ctx, query, dirSHA).Scan(&ct.DirSHA, &ct.Invalidated, &lastScan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &CacheTracking{DirSHA: dirSHA, Invalidated: true}, nil
		}
		return nil, err
	}

	if lastScan.Valid {
		t := lastScan.Time
		ct.LastScan = &t
	}

	return &ct, nil
}

// MarkInvalid flags a directory's cached data as stale. Idempotent.
func (s *CacheTrackingStore) MarkInvalid(ctx context.Context, dirSHA string) error {
	query := `
		INSERT INTO cache_tracking (dir_sha256, invalidated)
		VALUES (?, 1)
		ON CONFLICT(dir_sha256) DO UPDATE SET invalidated = 1
	`

	_, err := s.db.ExecContext(ctx, query, dirSHA)
	return err
}

// MarkValid records a completed sync.
func (s *CacheTrackingStore) MarkValid(ctx context.Context, dirSHA string, lastScan time.Time) error {
	query := `
		INSERT INTO cache_tracking (dir_sha256, invalidated, lastscan)
		VALUES (?, 0, ?)
		ON CONFLICT(dir_sha256) DO UPDATE SET invalidated = 0, lastscan = excluded.lastscan
	`

	_, err := s.db.ExecContext(ctx, query, dirSHA, lastScan)
	return err
}

// InvalidateAll flags every tracked directory. Coarse fallback used when
// the invalidator's buffer overflows its key cap.
func (s *CacheTrackingStore) InvalidateAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE cache_tracking SET invalidated = 1`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
