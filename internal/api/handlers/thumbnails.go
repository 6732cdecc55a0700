// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/thumbnail"
)

// ThumbnailHandler serves content-addressed thumbnail blobs.
type ThumbnailHandler struct {
	thumbs *thumbnail.Service
}

func NewThumbnailHandler(thumbs *thumbnail.Service) *ThumbnailHandler {
	return &ThumbnailHandler{thumbs: thumbs}
}

// Get handles GET /thumbnail/{sha}/{size}. The blob is keyed by content SHA,
// so it never goes stale and can be cached hard.
func (h *ThumbnailHandler) Get(w http.ResponseWriter, r *http.Request) {
	sha := chi.URLParam(r, "sha")

	size, err := domain.ParseThumbnailSize(chi.URLParam(r, "size"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid size")
		return
	}

	blob, err := h.thumbs.Get(r.Context(), sha, size)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		_, _ = w.Write(blob)
	}
}
