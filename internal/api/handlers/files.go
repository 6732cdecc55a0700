// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/models"
	"github.com/autobrr/lumen/internal/thumbnail"
)

// FileHandler streams original file bytes.
type FileHandler struct {
	index    *index.Service
	dirs     *models.DirectoryStore
	files    *models.FileStore
	registry *filetypes.Registry
}

func NewFileHandler(db *database.DB, idx *index.Service, registry *filetypes.Registry) *FileHandler {
	return &FileHandler{
		index:    idx,
		dirs:     models.NewDirectoryStore(db),
		files:    models.NewFileStore(db),
		registry: registry,
	}
}

// Get handles GET /<relpath>/<filename>?usha=<unique_sha256>. The usha query
// pins the exact row, so a rename racing the request still serves the bytes
// the page referenced. Without it the name is resolved case-insensitively
// under its parent directory.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var f *models.File
	var err error

	if usha := r.URL.Query().Get("usha"); usha != "" {
		f, err = h.index.FileByUniqueSHA(ctx, usha)
	} else {
		f, err = h.resolveByPath(r)
	}
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	// The store lookup deliberately skips the delete-pending filter: a row
	// awaiting the sweeper can still serve its bytes while they exist on disk.
	dir, err := h.dirs.GetBySHA(ctx, f.HomeDirectory)
	if err != nil {
		if errors.Is(err, models.ErrDirectoryNotFound) {
			err = domain.ErrNotFound
		}
		RespondDomainError(w, err)
		return
	}

	diskPath, err := thumbnail.ResolveDiskPath(dir.FQPN, f.Name)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	src, err := os.Open(diskPath)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			err = domain.ErrNotFound
		case errors.Is(err, fs.ErrPermission):
			err = domain.ErrAccessDenied
		}
		RespondDomainError(w, err)
		return
	}
	defer src.Close()

	if mt := h.registry.GetByExt(f.Ext).Mimetype; mt != "" {
		w.Header().Set("Content-Type", mt)
	}

	// ServeContent handles range requests; the open handle keeps the stream
	// alive even if the file is unlinked mid-response.
	http.ServeContent(w, r, f.Name, f.MTime, src)
}

func (h *FileHandler) resolveByPath(r *http.Request) (*models.File, error) {
	rootFQPN, _ := h.index.Root()

	urlPath := filepath.FromSlash(r.URL.Path)
	name := filepath.Base(urlPath)
	parent := filepath.Join(rootFQPN, filepath.Dir(urlPath))

	dir, err := h.index.SearchForDirectory(r.Context(), parent)
	if err != nil {
		return nil, err
	}

	files, err := h.files.ListByDirectory(r.Context(), dir.SHA, false)
	if err != nil {
		return nil, err
	}

	for i := range files {
		if strings.EqualFold(files[i].Name, name) {
			return &files[i], nil
		}
	}

	return nil, domain.ErrNotFound
}
