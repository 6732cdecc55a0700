// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package thumbnail

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/lumen/internal/domain"
)

func TestFitInsidePreservesAspect(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 800, 400))
	out := FitInside(src, domain.Box{Width: 200, Height: 200})

	require.Equal(t, 200, out.Bounds().Dx())
	require.Equal(t, 100, out.Bounds().Dy())
}

func TestFitInsideNeverUpscales(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 50, 40))
	out := FitInside(src, domain.Box{Width: 200, Height: 200})

	require.Equal(t, 50, out.Bounds().Dx())
	require.Equal(t, 40, out.Bounds().Dy())
}

func TestRenderSentinelDecodes(t *testing.T) {
	t.Parallel()

	b, err := renderSentinel(domain.Box{Width: 200, Height: 200})
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, 200, img.Bounds().Dx())
}
