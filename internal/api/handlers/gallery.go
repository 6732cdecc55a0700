// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/layout"
)

// GalleryHandler serves directory listing pages and archive interiors.
type GalleryHandler struct {
	index  *index.Service
	engine *layout.Engine
}

func NewGalleryHandler(idx *index.Service, engine *layout.Engine) *GalleryHandler {
	return &GalleryHandler{index: idx, engine: engine}
}

// List handles GET /<relpath>/?sort=N&page=M&duplicates=bool.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	sortCode, err := queryInt(r, "sort", 0)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid sort")
		return
	}
	order, err := index.ParseSortOrder(sortCode)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid sort")
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		RespondError(w, http.StatusBadRequest, "invalid page")
		return
	}

	showDuplicates := queryBool(r, "duplicates", true)

	rootFQPN, _ := h.index.Root()
	target := filepath.Join(rootFQPN, filepath.FromSlash(r.URL.Path))

	payload, err := h.engine.Build(r.Context(), target, order, page, showDuplicates)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, payload)
}

// Archive handles GET /archive/{usha}?page=M, the paginated view into an
// archive file's image entries.
func (h *GalleryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	usha := chi.URLParam(r, "usha")

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		RespondError(w, http.StatusBadRequest, "invalid page")
		return
	}

	payload, err := h.engine.BuildArchive(r.Context(), usha, page)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, payload)
}
