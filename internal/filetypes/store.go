// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filetypes

import (
	"context"
	"fmt"

	"github.com/autobrr/lumen/internal/dbinterface"
)

// Store handles database operations for the filetypes table.
type Store struct {
	db dbinterface.Querier
}

func NewStore(db dbinterface.Querier) *Store {
	return &Store{db: db}
}

// All returns every filetype row.
func (s *Store) All(ctx context.Context) ([]Filetype, error) {
	query := `
		SELECT ext, mimetype, icon_filename, color,
		       is_image, is_pdf, is_movie, is_archive, is_dir,
		       is_text, is_markdown, is_html, is_link, generic, thumbnail
		FROM filetypes
		ORDER BY ext ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var filetypes []Filetype
	for rows.Next() {
		var ft Filetype
		if err := rows.Scan(
			&ft.Ext,
			&ft.Mimetype,
			&ft.IconFilename,
			&ft.Color,
			&ft.IsImage,
			&ft.IsPDF,
			&ft.IsMovie,
			&ft.IsArchive,
			&ft.IsDir,
			&ft.IsText,
			&ft.IsMarkdown,
			&ft.IsHTML,
			&ft.IsLink,
			&ft.Generic,
			&ft.Thumbnail,
		); err != nil {
			return nil, err
		}
		filetypes = append(filetypes, ft)
	}

	return filetypes, rows.Err()
}

// Upsert inserts or replaces one filetype row.
func (s *Store) Upsert(ctx context.Context, ft Filetype) error {
	query := `
		INSERT INTO filetypes
		(ext, mimetype, icon_filename, color,
		 is_image, is_pdf, is_movie, is_archive, is_dir,
		 is_text, is_markdown, is_html, is_link, generic, thumbnail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ext) DO UPDATE SET
			mimetype = excluded.mimetype,
			icon_filename = excluded.icon_filename,
			color = excluded.color,
			is_image = excluded.is_image,
			is_pdf = excluded.is_pdf,
			is_movie = excluded.is_movie,
			is_archive = excluded.is_archive,
			is_dir = excluded.is_dir,
			is_text = excluded.is_text,
			is_markdown = excluded.is_markdown,
			is_html = excluded.is_html,
			is_link = excluded.is_link,
			generic = excluded.generic,
			thumbnail = excluded.thumbnail
	`

	_, err := s.db.ExecContext(ctx, query,
		ft.Ext,
		ft.Mimetype,
		ft.IconFilename,
		ft.Color,
		ft.IsImage,
		ft.IsPDF,
		ft.IsMovie,
		ft.IsArchive,
		ft.IsDir,
		ft.IsText,
		ft.IsMarkdown,
		ft.IsHTML,
		ft.IsLink,
		ft.Generic,
		ft.Thumbnail,
	)
	if err != nil {
		return fmt.Errorf("upsert filetype %s: %w", ft.Ext, err)
	}

	return nil
}

// Seed upserts the built-in filetype set. Idempotent; run by the
// administrative `filetypes seed` command and on first start.
func (s *Store) Seed(ctx context.Context) (int, error) {
	entries := SeedData()
	for _, ft := range entries {
		if err := s.Upsert(ctx, ft); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}
