// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package thumbnail

import (
	"context"
	"fmt"
	"image"
	"os"

	// Decoders for every image kind the registry knows.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
)

// Backend extracts a single source frame from one media kind. The service
// scales and encodes the frame into the configured sizes.
type Backend interface {
	Name() string
	Handles(ft filetypes.Filetype) bool
	Extract(ctx context.Context, path string) (image.Image, error)
}

type imageBackend struct{}

func (imageBackend) Name() string { return "image" }

func (imageBackend) Handles(ft filetypes.Filetype) bool { return ft.IsImage }

func (imageBackend) Extract(_ context.Context, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, domain.ErrCorrupt)
	}

	return img, nil
}
