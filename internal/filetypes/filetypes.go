// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package filetypes maps file extensions to a semantic kind (image, pdf,
// movie, archive, ...) with per-kind display metadata. The registry is
// loaded once per process and read-only at runtime.
package filetypes

import "strings"

// FallbackExt is the registry entry used for empty, missing, or unknown
// extensions. It always exists.
const FallbackExt = ".none"

// Filetype describes one extension's kind flags and display metadata.
type Filetype struct {
	Ext          string `json:"ext"`
	Mimetype     string `json:"mimetype"`
	IconFilename string `json:"iconFilename"`
	Color        string `json:"color"`

	IsImage    bool `json:"isImage"`
	IsPDF      bool `json:"isPdf"`
	IsMovie    bool `json:"isMovie"`
	IsArchive  bool `json:"isArchive"`
	IsDir      bool `json:"isDir"`
	IsText     bool `json:"isText"`
	IsMarkdown bool `json:"isMarkdown"`
	IsHTML     bool `json:"isHtml"`
	IsLink     bool `json:"isLink"`
	Generic    bool `json:"generic"`

	// Thumbnail holds a canned preview for generic kinds that never get a
	// per-file one.
	Thumbnail []byte `json:"-"`
}

// Kind returns a short label for the dominant kind flag, used in API
// payloads and log lines.
func (ft Filetype) Kind() string {
	switch {
	case ft.IsDir:
		return "dir"
	case ft.IsLink:
		return "link"
	case ft.IsImage:
		return "image"
	case ft.IsPDF:
		return "pdf"
	case ft.IsMovie:
		return "movie"
	case ft.IsArchive:
		return "archive"
	case ft.IsMarkdown:
		return "markdown"
	case ft.IsHTML:
		return "html"
	case ft.IsText:
		return "text"
	default:
		return "unknown"
	}
}

// HasOwnThumbnail reports whether files of this type get a generated,
// per-content preview rather than the kind icon.
func (ft Filetype) HasOwnThumbnail() bool {
	return ft.IsImage || ft.IsPDF || ft.IsMovie || ft.IsArchive
}

// NormalizeExt lower-cases and dots an extension, mapping empty and
// "unknown" to the fallback entry.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "unknown" || ext == ".unknown" {
		return FallbackExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
