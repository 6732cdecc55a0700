// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filetypes

// SeedData returns the built-in filetype set the registry is populated
// from. Only extensions listed here are surfaced by directory scans.
func SeedData() []Filetype {
	image := func(ext, mime string) Filetype {
		return Filetype{Ext: ext, Mimetype: mime, IconFilename: "image.png", Color: "#4caf50", IsImage: true}
	}
	movie := func(ext, mime string) Filetype {
		return Filetype{Ext: ext, Mimetype: mime, IconFilename: "movie.png", Color: "#3f51b5", IsMovie: true}
	}
	archive := func(ext, mime string) Filetype {
		return Filetype{Ext: ext, Mimetype: mime, IconFilename: "archive.png", Color: "#795548", IsArchive: true}
	}
	text := func(ext, mime string) Filetype {
		return Filetype{Ext: ext, Mimetype: mime, IconFilename: "text.png", Color: "#607d8b", IsText: true}
	}

	return []Filetype{
		// images
		image(".jpg", "image/jpeg"),
		image(".jpeg", "image/jpeg"),
		image(".png", "image/png"),
		image(".gif", "image/gif"),
		image(".webp", "image/webp"),
		image(".bmp", "image/bmp"),
		image(".tif", "image/tiff"),
		image(".tiff", "image/tiff"),

		// documents
		{Ext: ".pdf", Mimetype: "application/pdf", IconFilename: "pdf.png", Color: "#f44336", IsPDF: true},

		// movies
		movie(".mp4", "video/mp4"),
		movie(".mkv", "video/x-matroska"),
		movie(".webm", "video/webm"),
		movie(".avi", "video/x-msvideo"),
		movie(".mov", "video/quicktime"),
		movie(".m4v", "video/x-m4v"),

		// archives (plus comic variants)
		archive(".zip", "application/zip"),
		archive(".cbz", "application/zip"),
		archive(".rar", "application/vnd.rar"),
		archive(".cbr", "application/vnd.rar"),

		// text-ish
		text(".txt", "text/plain"),
		{Ext: ".md", Mimetype: "text/markdown", IconFilename: "markdown.png", Color: "#00bcd4", IsMarkdown: true},
		{Ext: ".html", Mimetype: "text/html", IconFilename: "html.png", Color: "#ff9800", IsHTML: true},
		{Ext: ".htm", Mimetype: "text/html", IconFilename: "html.png", Color: "#ff9800", IsHTML: true},

		// synthetic kinds
		{Ext: ".dir", Mimetype: "inode/directory", IconFilename: "folder.png", Color: "#ffc107", IsDir: true},
		{Ext: ".link", Mimetype: "inode/symlink", IconFilename: "link.png", Color: "#9c27b0", IsLink: true},
		{Ext: FallbackExt, Mimetype: "application/octet-stream", IconFilename: "unknown.png", Color: "#9e9e9e", Generic: true},
	}
}
