// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/lumen/internal/dbinterface"
)

var ErrFileNotFound = errors.New("file not found")

// File mirrors one on-disk regular file. Names are stored title-cased;
// matching against the filesystem is always case-insensitive.
type File struct {
	ID            int64     `json:"-"`
	Name          string    `json:"name"`
	HomeDirectory string    `json:"homeDirectory"`
	FileSHA       string    `json:"fileSha256"`
	UniqueSHA     string    `json:"uniqueSha256"`
	Ext           string    `json:"ext"`
	Size          int64     `json:"size"`
	MTime         time.Time `json:"mtime"`
	DeletePending bool      `json:"-"`
}

// FileStore handles database operations for files.
type FileStore struct {
	db dbinterface.Querier
}

func NewFileStore(db dbinterface.Querier) *FileStore {
	return &FileStore{db: db}
}

const fileColumns = `id, name, home_directory, file_sha256, unique_sha256, ext, size, mtime, delete_pending`

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	var f File
	if err := row.Scan(
		&f.ID,
		&f.Name,
		&f.HomeDirectory,
		&f.FileSHA,
		&f.UniqueSHA,
		&f.Ext,
		&f.Size,
		&f.MTime,
		&f.DeletePending,
	); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListByDirectory returns file rows for one directory. includePending
// controls whether soft-deleted rows are returned (the sync matching pass
// wants them, listings never do).
func (s *FileStore) ListByDirectory(ctx context.Context, dirSHA string, includePending bool) ([]File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE home_directory = ?`
	if !includePending {
		query += ` AND delete_pending = 0`
	}

	rows, err := s.db.QueryContext(ctx, query, dirSHA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}

	return files, rows.Err()
}

// GetByUniqueSHA resolves the primary external identity for a file.
func (s *FileStore) GetByUniqueSHA(ctx context.Context, uniqueSHA string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE unique_sha256 = ? AND delete_pending = 0`

	f, err := scanFile(s.db.QueryRowContext(ctx, query, uniqueSHA))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return f, nil
}

// GetByUniqueSHAWithPending resolves a unique SHA accepting soft-deleted
// rows, preferring a live row when both spellings of the identity exist.
// Serving paths use it so links in flight keep resolving through the
// delete-pending grace period.
func (s *FileStore) GetByUniqueSHAWithPending(ctx context.Context, uniqueSHA string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE unique_sha256 = ? ORDER BY delete_pending LIMIT 1`

	f, err := scanFile(s.db.QueryRowContext(ctx, query, uniqueSHA))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return f, nil
}

// Insert creates a row for a newly discovered file.
func (s *FileStore) Insert(ctx context.Context, f *File) error {
	query := `
		INSERT INTO files (name, home_directory, file_sha256, unique_sha256, ext, size, mtime, delete_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`

	result, err := s.db.ExecContext(ctx, query,
		f.Name, f.HomeDirectory, f.FileSHA, f.UniqueSHA, f.Ext, f.Size, f.MTime)
	if err != nil {
		return fmt.Errorf("insert file %s: %w", f.Name, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		f.ID = id
	}

	return nil
}

// Update rewrites a row in place. The row identity (id) is preserved, which
// is what keeps the thumbnail association alive across case renames and
// content changes.
func (s *FileStore) Update(ctx context.Context, f *File) error {
	query := `
		UPDATE files
		SET name = ?, file_sha256 = ?, unique_sha256 = ?, ext = ?, size = ?, mtime = ?, delete_pending = 0
		WHERE id = ?
	`

	if _, err := s.db.ExecContext(ctx, query,
		f.Name, f.FileSHA, f.UniqueSHA, f.Ext, f.Size, f.MTime, f.ID); err != nil {
		return fmt.Errorf("update file %s: %w", f.Name, err)
	}

	return nil
}

// MarkDeletePending soft-deletes rows by id.
func (s *FileStore) MarkDeletePending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `UPDATE files SET delete_pending = 1 WHERE id IN (` + placeholders + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// FirstLiveByFileSHA returns one live row carrying a content SHA, lowest id
// first so the pick is stable. The thumbnail pipeline uses it to find a
// readable path for regeneration.
func (s *FileStore) FirstLiveByFileSHA(ctx context.Context, fileSHA string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE file_sha256 = ? AND delete_pending = 0 ORDER BY id LIMIT 1`

	f, err := scanFile(s.db.QueryRowContext(ctx, query, fileSHA))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	return f, nil
}

// CountLiveByFileSHA reports how many live rows share a content SHA. Used by
// the thumbnail sweeper to decide whether a record is reapable.
func (s *FileStore) CountLiveByFileSHA(ctx context.Context, fileSHA string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE file_sha256 = ? AND delete_pending = 0`, fileSHA).Scan(&n)
	return n, err
}

// DuplicateOccurrence is one live row whose content SHA appears more than
// once across the whole index.
type DuplicateOccurrence struct {
	FileSHA   string
	UniqueSHA string
	Name      string
	FQPN      string
}

// DuplicateOccurrences returns every live row participating in a duplicate
// group. The layout engine decides which occurrence is retained when
// duplicates are hidden.
func (s *FileStore) DuplicateOccurrences(ctx context.Context) ([]DuplicateOccurrence, error) {
	query := `
		SELECT f.file_sha256, f.unique_sha256, f.name, d.fqpn
		FROM files f
		JOIN directories d ON d.dir_sha256 = f.home_directory
		WHERE f.delete_pending = 0
		  AND f.file_sha256 IN (
			SELECT file_sha256 FROM files WHERE delete_pending = 0
			GROUP BY file_sha256 HAVING COUNT(*) > 1
		  )
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occurrences []DuplicateOccurrence
	for rows.Next() {
		var o DuplicateOccurrence
		if err := rows.Scan(&o.FileSHA, &o.UniqueSHA, &o.Name, &o.FQPN); err != nil {
			return nil, err
		}
		occurrences = append(occurrences, o)
	}

	return occurrences, rows.Err()
}

// HardDeletePending removes soft-deleted rows. The sweeper calls this on a
// schedule, so rows marked during the last interval have already outlived
// any in-flight response that referenced them.
func (s *FileStore) HardDeletePending(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE delete_pending = 1`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count returns the number of live file rows, for metrics.
func (s *FileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE delete_pending = 0`).Scan(&n)
	return n, err
}
