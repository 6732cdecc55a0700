// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/autobrr/lumen/internal/domain"
)

const jpegQuality = 85

// FitInside scales src to fit within the box, preserving aspect ratio.
// Sources already smaller than the box pass through unscaled.
func FitInside(src image.Image, box domain.Box) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= box.Width && h <= box.Height {
		return src
	}

	scale := float64(box.Width) / float64(w)
	if s := float64(box.Height) / float64(h); s < scale {
		scale = s
	}

	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

// EncodeJPEG serializes a rendered thumbnail.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// renderSentinel draws the placeholder stored for media that failed to
// decode: a dark tile with a centered lighter square. Generated once per
// size at service construction, then reused for every broken file.
func renderSentinel(box domain.Box) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, box.Width, box.Height))

	bg := color.RGBA{R: 0x2b, G: 0x2b, B: 0x2b, A: 0xff}
	fg := color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}

	for y := 0; y < box.Height; y++ {
		for x := 0; x < box.Width; x++ {
			img.SetRGBA(x, y, bg)
		}
	}

	inset := box.Width / 4
	if h := box.Height / 4; h < inset {
		inset = h
	}
	for y := inset; y < box.Height-inset; y++ {
		for x := inset; x < box.Width-inset; x++ {
			img.SetRGBA(x, y, fg)
		}
	}

	return EncodeJPEG(img)
}
