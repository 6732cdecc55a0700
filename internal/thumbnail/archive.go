// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/mholt/archives"

	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/pkg/natcmp"
)

// archiveBackend renders the first image inside an archive, in natural name
// order. Comic archives (.cbz/.cbr) name pages so natural order is reading
// order, which makes the first page the cover.
type archiveBackend struct{}

func (archiveBackend) Name() string { return "archive" }

func (archiveBackend) Handles(ft filetypes.Filetype) bool { return ft.IsArchive }

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

// errStopWalk aborts an archive walk early once the target entry is read.
var errStopWalk = errors.New("stop walk")

func (archiveBackend) Extract(ctx context.Context, archivePath string) (image.Image, error) {
	// First pass: collect image entry names so the natural-first page can be
	// chosen without holding decompressed data.
	names, err := ListImages(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("archive %s contains no images: %w", archivePath, domain.ErrCorrupt)
	}
	first := names[0]

	// Second pass: extract the chosen entry.
	var img image.Image
	err = walkArchive(ctx, archivePath, func(_ context.Context, f archives.FileInfo) error {
		if f.NameInArchive != first {
			return nil
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		img, _, err = image.Decode(rc)
		if err != nil {
			return fmt.Errorf("decode archive entry %s: %w", first, domain.ErrCorrupt)
		}
		return errStopWalk
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("archive entry %s vanished between passes: %w", first, domain.ErrCorrupt)
	}

	return img, nil
}

// ListImages returns the image entry names inside an archive in natural
// order, which for comic archives is reading order. Invalid archives map to
// domain.ErrCorrupt.
func ListImages(ctx context.Context, archivePath string) ([]string, error) {
	var names []string
	err := walkArchive(ctx, archivePath, func(_ context.Context, f archives.FileInfo) error {
		if f.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(f.NameInArchive))
		if _, ok := imageExts[ext]; !ok {
			return nil
		}
		names = append(names, f.NameInArchive)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(names, func(i, j int) bool { return natcmp.Less(names[i], names[j]) })
	return names, nil
}

func walkArchive(ctx context.Context, archivePath string, handle archives.FileHandler) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	format, stream, err := archives.Identify(ctx, archivePath, f)
	if err != nil {
		return fmt.Errorf("identify archive %s: %w", archivePath, domain.ErrCorrupt)
	}

	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("archive format %s is not extractable: %w", format.Extension(), domain.ErrCorrupt)
	}

	if err := extractor.Extract(ctx, stream, handle); err != nil {
		if errors.Is(err, errStopWalk) {
			return errStopWalk
		}
		return fmt.Errorf("extract %s: %w", archivePath, err)
	}
	return nil
}
