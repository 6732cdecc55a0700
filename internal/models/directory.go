// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/lumen/internal/dbinterface"
)

var ErrDirectoryNotFound = errors.New("directory not found")

// Directory mirrors one on-disk directory under the managed root.
type Directory struct {
	SHA           string     `json:"dirSha256"`
	FQPN          string     `json:"fqpn"`
	ParentSHA     *string    `json:"parentDirSha256,omitempty"`
	CombinedSHA   string     `json:"combinedSha256"`
	CountFiles    int        `json:"countFiles"`
	CountSubdirs  int        `json:"countSubdirs"`
	DeletePending bool       `json:"-"`
	LastSyncTime  *time.Time `json:"lastSyncTime,omitempty"`
}

// DirectoryStore handles database operations for directories. Stores are
// thin over a Querier so the sync engine can run them inside its
// transaction by constructing a tx-scoped store.
type DirectoryStore struct {
	db dbinterface.Querier
}

func NewDirectoryStore(db dbinterface.Querier) *DirectoryStore {
	return &DirectoryStore{db: db}
}

const directoryColumns = `dir_sha256, fqpn, parent_dir_sha256, combined_sha256, count_files, count_subdirs, delete_pending, last_sync_time`

func scanDirectory(row interface{ Scan(...any) error }) (*Directory, error) {
	var d Directory
	var parent sql.NullString
	var lastSync sql.NullTime

	if err := row.Scan(
		&d.SHA,
		&d.FQPN,
		&parent,
		&d.CombinedSHA,
		&d.CountFiles,
		&d.CountSubdirs,
		&d.DeletePending,
		&lastSync,
	); err != nil {
		return nil, err
	}

	if parent.Valid {
		d.ParentSHA = &parent.String
	}
	if lastSync.Valid {
		t := lastSync.Time
		d.LastSyncTime = &t
	}

	return &d, nil
}

// GetBySHA looks a directory up by its path SHA.
func (s *DirectoryStore) GetBySHA(ctx context.Context, sha string) (*Directory, error) {
	query := `SELECT ` + directoryColumns + ` FROM directories WHERE dir_sha256 = ?`

	d, err := scanDirectory(s.db.QueryRowContext(ctx, query, sha))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDirectoryNotFound
		}
		return nil, err
	}

	return d, nil
}

// Upsert inserts the directory or revives/updates an existing row for the
// same SHA. delete_pending is cleared: an upsert means the path exists on
// disk again.
func (s *DirectoryStore) Upsert(ctx context.Context, d *Directory) error {
	query := `
		INSERT INTO directories (dir_sha256, fqpn, parent_dir_sha256, delete_pending)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(dir_sha256) DO UPDATE SET
			fqpn = excluded.fqpn,
			parent_dir_sha256 = excluded.parent_dir_sha256,
			delete_pending = 0
	`

	var parent any
	if d.ParentSHA != nil {
		parent = *d.ParentSHA
	}

	if _, err := s.db.ExecContext(ctx, query, d.SHA, d.FQPN, parent); err != nil {
		return fmt.Errorf("upsert directory %s: %w", d.FQPN, err)
	}

	return nil
}

// ListChildren returns the non-delete-pending subdirectories of a parent.
func (s *DirectoryStore) ListChildren(ctx context.Context, parentSHA string) ([]Directory, error) {
	query := `SELECT ` + directoryColumns + ` FROM directories WHERE parent_dir_sha256 = ? AND delete_pending = 0`

	rows, err := s.db.QueryContext(ctx, query, parentSHA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dirs []Directory
	for rows.Next() {
		d, err := scanDirectory(rows)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, *d)
	}

	return dirs, rows.Err()
}

// MarkDeletePending soft-deletes a directory. The row stays until the
// sweeper reaps it so thumbnails referenced by in-flight responses survive.
func (s *DirectoryStore) MarkDeletePending(ctx context.Context, sha string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE directories SET delete_pending = 1 WHERE dir_sha256 = ?`, sha)
	return err
}

// UpdateSummary writes back the derived fields recomputed at the end of a
// sync pass.
func (s *DirectoryStore) UpdateSummary(ctx context.Context, sha string, countFiles, countSubdirs int, combinedSHA string, lastSync time.Time) error {
	query := `
		UPDATE directories
		SET count_files = ?, count_subdirs = ?, combined_sha256 = ?, last_sync_time = ?
		WHERE dir_sha256 = ?
	`

	_, err := s.db.ExecContext(ctx, query, countFiles, countSubdirs, combinedSHA, lastSync, sha)
	return err
}

// HardDeletePending removes delete-pending directory rows whose last sync is
// older than the grace period. Files cascade.
func (s *DirectoryStore) HardDeletePending(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM directories
		WHERE delete_pending = 1 AND (last_sync_time IS NULL OR last_sync_time < ?)
	`

	result, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count returns the number of live directory rows, for metrics.
func (s *DirectoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM directories WHERE delete_pending = 0`).Scan(&n)
	return n, err
}
