// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package thumbnail

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
)

// pdfBackend renders the first page of a document via MuPDF.
type pdfBackend struct{}

func (pdfBackend) Name() string { return "pdf" }

func (pdfBackend) Handles(ft filetypes.Filetype) bool { return ft.IsPDF }

func (pdfBackend) Extract(_ context.Context, path string) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, domain.ErrCorrupt)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf %s has no pages: %w", path, domain.ErrCorrupt)
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("render pdf page %s: %w", path, domain.ErrCorrupt)
	}

	return img, nil
}
