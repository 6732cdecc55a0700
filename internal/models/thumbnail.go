// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autobrr/lumen/internal/dbinterface"
	"github.com/autobrr/lumen/internal/domain"
)

var ErrThumbnailNotFound = errors.New("thumbnail record not found")

// ThumbnailRecord holds the cached previews for one content SHA. Duplicate
// files across the tree share a single record. Slots fill independently; a
// nil slot means not generated yet.
type ThumbnailRecord struct {
	SHA    string
	Small  []byte
	Medium []byte
	Large  []byte
}

// Slot returns the blob for one size.
func (r *ThumbnailRecord) Slot(size domain.ThumbnailSize) []byte {
	switch size {
	case domain.ThumbnailSmall:
		return r.Small
	case domain.ThumbnailMedium:
		return r.Medium
	case domain.ThumbnailLarge:
		return r.Large
	}
	return nil
}

// SetSlot stores the blob for one size.
func (r *ThumbnailRecord) SetSlot(size domain.ThumbnailSize, data []byte) {
	switch size {
	case domain.ThumbnailSmall:
		r.Small = data
	case domain.ThumbnailMedium:
		r.Medium = data
	case domain.ThumbnailLarge:
		r.Large = data
	}
}

// Complete reports whether all three slots are populated.
func (r *ThumbnailRecord) Complete() bool {
	return len(r.Small) > 0 && len(r.Medium) > 0 && len(r.Large) > 0
}

// ThumbnailStore handles database operations for thumbnail records.
type ThumbnailStore struct {
	db dbinterface.Querier
}

func NewThumbnailStore(db dbinterface.Querier) *ThumbnailStore {
	return &ThumbnailStore{db: db}
}

// Get returns the record for a content SHA.
func (s *ThumbnailStore) Get(ctx context.Context, sha string) (*ThumbnailRecord, error) {
	query := `SELECT sha256_hash, small_thumb, medium_thumb, large_thumb FROM thumbnail_records WHERE sha256_hash = ?`

	var r ThumbnailRecord
	err := s.db.QueryRowContext(ctx, query, sha).Scan(&r.SHA, &r.Small, &r.Medium, &r.Large)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThumbnailNotFound
		}
		return nil, err
	}

	return &r, nil
}

// Upsert writes one record; non-nil slots replace stored ones, nil slots
// leave the stored value untouched.
func (s *ThumbnailStore) Upsert(ctx context.Context, r *ThumbnailRecord) error {
	query := `
		INSERT INTO thumbnail_records (sha256_hash, small_thumb, medium_thumb, large_thumb)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sha256_hash) DO UPDATE SET
			small_thumb = COALESCE(excluded.small_thumb, small_thumb),
			medium_thumb = COALESCE(excluded.medium_thumb, medium_thumb),
			large_thumb = COALESCE(excluded.large_thumb, large_thumb)
	`

	if _, err := s.db.ExecContext(ctx, query, r.SHA, r.Small, r.Medium, r.Large); err != nil {
		return fmt.Errorf("upsert thumbnail record %s: %w", r.SHA, err)
	}

	return nil
}

// UpsertBatch writes a generation batch in a single transaction, amortizing
// the store-write overhead across the batch.
func (s *ThumbnailStore) UpsertBatch(ctx context.Context, db dbinterface.TxBeginner, records []*ThumbnailRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin thumbnail batch: %w", err)
	}
	defer tx.Rollback()

	txStore := NewThumbnailStore(tx)
	for _, r := range records {
		if err := txStore.Upsert(ctx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit thumbnail batch: %w", err)
	}

	return nil
}

// Clear empties all three slots. The record row remains, ready to be
// refilled by the next generation pass.
func (s *ThumbnailStore) Clear(ctx context.Context, sha string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE thumbnail_records SET small_thumb = NULL, medium_thumb = NULL, large_thumb = NULL WHERE sha256_hash = ?`, sha)
	return err
}

// ReapOrphans deletes records whose SHA matches no live file row.
func (s *ThumbnailStore) ReapOrphans(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM thumbnail_records
		WHERE sha256_hash NOT IN (
			SELECT DISTINCT file_sha256 FROM files WHERE delete_pending = 0
		)
	`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count returns the number of thumbnail records, for metrics.
func (s *ThumbnailStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM thumbnail_records`).Scan(&n)
	return n, err
}
