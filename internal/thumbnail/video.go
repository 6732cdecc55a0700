// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
)

// videoBackend grabs a frame from the middle of a video through the ffmpeg
// binaries, falling back to the first non-uniform frame when the middle is a
// solid color. Probed at construction; when the binaries are missing the
// backend is not registered and videos fall back to their kind icon.
type videoBackend struct {
	ffmpeg  string
	ffprobe string
}

func newVideoBackend() (*videoBackend, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &videoBackend{ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

func (*videoBackend) Name() string { return "video" }

func (*videoBackend) Handles(ft filetypes.Filetype) bool { return ft.IsMovie }

func (b *videoBackend) Extract(ctx context.Context, path string) (image.Image, error) {
	var dur float64
	if d, err := b.probeDuration(ctx, path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("duration probe failed, grabbing first frame")
	} else {
		dur = d
	}

	img, err := b.grabFrame(ctx, path, dur/2)
	if err != nil {
		return nil, err
	}
	if !uniformFrame(img) {
		return img, nil
	}

	// Solid middle frame: a black intro card or a white fade. Walk forward
	// from the start and take the first frame showing any detail.
	for _, at := range fallbackOffsets(dur) {
		candidate, err := b.grabFrame(ctx, path, at)
		if err != nil {
			log.Trace().Err(err).Str("path", path).Float64("offset", at).Msg("fallback frame grab failed")
			continue
		}
		if !uniformFrame(candidate) {
			return candidate, nil
		}
	}

	// Every sampled frame is uniform; the middle frame represents the video
	// as well as anything else would.
	return img, nil
}

func (b *videoBackend) grabFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	cmd := exec.CommandContext(ctx, b.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %s: %w", path, strings.TrimSpace(stderr.String()), domain.ErrCorrupt)
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg frame %s: %w", path, domain.ErrCorrupt)
	}

	return img, nil
}

// fallbackOffsets are the seek positions tried, in order, when the middle
// frame turns out solid. Offsets past the known duration are dropped.
func fallbackOffsets(dur float64) []float64 {
	offsets := []float64{0, 1, 2, 5, 10, 30}
	if dur <= 0 {
		return offsets[:1]
	}

	kept := offsets[:0]
	for _, at := range offsets {
		if at < dur {
			kept = append(kept, at)
		}
	}
	return kept
}

// uniformTolerance is the per-channel distance (16-bit units) under which
// two pixels count as the same color, absorbing JPEG round-trip noise.
const uniformTolerance = 10 << 8

// uniformFrame reports whether a frame is a solid color: every pixel on a
// sampling grid within tolerance of the top-left pixel.
func uniformFrame(img image.Image) bool {
	bounds := img.Bounds()
	if bounds.Empty() {
		return true
	}

	r0, g0, b0, _ := img.At(bounds.Min.X, bounds.Min.Y).RGBA()

	const grid = 12
	for i := 0; i <= grid; i++ {
		for j := 0; j <= grid; j++ {
			x := bounds.Min.X + (bounds.Dx()-1)*i/grid
			y := bounds.Min.Y + (bounds.Dy()-1)*j/grid
			r, g, b, _ := img.At(x, y).RGBA()
			if chanDiff(r, r0) > uniformTolerance ||
				chanDiff(g, g0) > uniformTolerance ||
				chanDiff(b, b0) > uniformTolerance {
				return false
			}
		}
	}

	return true
}

func chanDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func (b *videoBackend) probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, b.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}

	return dur, nil
}
