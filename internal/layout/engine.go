// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package layout composes directory listings into paginated page payloads:
// ordered entries with resolved thumbnail URLs, prev/next navigation,
// sibling directories, and breadcrumbs. Prepared pages are memoized per
// (directory SHA, sort, page, duplicate flag) and purged whenever the index
// invalidates the directory.
package layout

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/identity"
	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/models"
	"github.com/autobrr/lumen/internal/thumbnail"
	"github.com/autobrr/lumen/pkg/natcmp"
)

const (
	defaultPageSize        = 30
	defaultArchivePageSize = 21
)

// Entry is one row of a rendered page.
type Entry struct {
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	URL          string     `json:"url"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	IconURL      string     `json:"iconUrl,omitempty"`
	Color        string     `json:"color,omitempty"`
	UniqueSHA    string     `json:"uniqueSha256,omitempty"`
	FileSHA      string     `json:"fileSha256,omitempty"`
	Size         int64      `json:"size,omitempty"`
	MTime        *time.Time `json:"mtime,omitempty"`
	CountFiles   int        `json:"countFiles,omitempty"`
	CountSubdirs int        `json:"countSubdirs,omitempty"`
}

// Pagination carries the page window and its neighbor URLs.
type Pagination struct {
	TotalItems int    `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
	Page       int    `json:"page"`
	PrevURL    string `json:"prevUrl,omitempty"`
	NextURL    string `json:"nextUrl,omitempty"`
}

// Sibling is the previous or next directory under the same parent, in the
// requested sort order.
type Sibling struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Breadcrumb is one step of the path from the gallery root to the current
// directory.
type Breadcrumb struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Page is a fully prepared directory listing page.
type Page struct {
	Path        string       `json:"path"`
	DirSHA      string       `json:"dirSha256"`
	Entries     []Entry      `json:"entries"`
	Pagination  Pagination   `json:"pagination"`
	PrevSibling *Sibling     `json:"prevSibling,omitempty"`
	NextSibling *Sibling     `json:"nextSibling,omitempty"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs"`
}

// ArchiveEntry is one image page inside an archive file.
type ArchiveEntry struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// ArchivePage is a paginated view into an archive's image entries.
type ArchivePage struct {
	Name       string         `json:"name"`
	UniqueSHA  string         `json:"uniqueSha256"`
	Entries    []ArchiveEntry `json:"entries"`
	Pagination Pagination     `json:"pagination"`
}

// Warmer queues background thumbnail generation for the files of a page.
type Warmer interface {
	Warm(files []models.File)
}

// Options configures an Engine from the application config.
type Options struct {
	PageSize        int
	ArchivePageSize int
	// CoverNames are filename stems preferred when picking a directory's
	// cover file, in priority order.
	CoverNames []string
}

// Engine builds pages on top of the index and memoizes the results.
type Engine struct {
	index    *index.Service
	files    *models.FileStore
	dirs     *models.DirectoryStore
	registry *filetypes.Registry
	warmer   Warmer

	cache *pageCache
	sf    singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64

	rootFQPN        string
	pageSize        int
	archivePageSize int
	coverNames      []string
}

// NewEngine wires the engine and registers its cache purge hooks on the
// index, so invalidation is observable before MarkInvalid returns.
func NewEngine(db *database.DB, idx *index.Service, registry *filetypes.Registry, warmer Warmer, opts Options) *Engine {
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	if opts.ArchivePageSize < 1 {
		opts.ArchivePageSize = defaultArchivePageSize
	}

	covers := make([]string, 0, len(opts.CoverNames))
	for _, c := range opts.CoverNames {
		covers = append(covers, strings.ToLower(c))
	}

	rootFQPN, _ := idx.Root()

	e := &Engine{
		index:           idx,
		files:           models.NewFileStore(db),
		dirs:            models.NewDirectoryStore(db),
		registry:        registry,
		warmer:          warmer,
		cache:           newPageCache(),
		rootFQPN:        rootFQPN,
		pageSize:        opts.PageSize,
		archivePageSize: opts.ArchivePageSize,
		coverNames:      covers,
	}

	idx.OnInvalidate(e.cache.purgeDir, e.cache.purgeAll)

	return e
}

// entryWithFile keeps the backing row next to a composed entry so the page's
// files can be queued for thumbnail warming after pagination.
type entryWithFile struct {
	entry Entry
	file  *models.File
}

// Build returns the prepared page for one directory, from cache when the
// directory has not been invalidated since it was rendered.
func (e *Engine) Build(ctx context.Context, path string, order index.SortOrder, page int, showDuplicates bool) (*Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: %w", page, domain.ErrNotFound)
	}

	_, sha, err := e.index.Resolve(path)
	if err != nil {
		return nil, err
	}

	key := cacheKey{dirSHA: sha, sort: order, page: page, showDuplicates: showDuplicates}
	if p, ok := e.cache.get(key); ok {
		e.hits.Add(1)
		return p, nil
	}
	e.misses.Add(1)

	// Concurrent misses for the same key build once. A sync fires the
	// directory's purge hook, so the disk state is settled first and the
	// generation snapshotted after: an invalidation landing while the page
	// is being composed bumps it, and set then drops the result instead of
	// caching a page that predates the change.
	v, err, _ := e.sf.Do(key.String(), func() (any, error) {
		if p, ok := e.cache.get(key); ok {
			return p, nil
		}

		if err := e.index.Sync(ctx, path); err != nil {
			return nil, err
		}
		gen := e.cache.generation(key.dirSHA)

		p, err := e.build(ctx, path, key)
		if err != nil {
			return nil, err
		}
		e.cache.set(key, p, gen)
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Page), nil
}

func (e *Engine) build(ctx context.Context, path string, key cacheKey) (*Page, error) {
	dir, files, subdirs, err := e.index.ListDirectory(ctx, path, key.sort)
	if err != nil {
		return nil, err
	}

	if !key.showDuplicates {
		hidden, err := e.hiddenDuplicates(ctx)
		if err != nil {
			return nil, err
		}
		if len(hidden) > 0 {
			kept := files[:0]
			for _, f := range files {
				if _, hide := hidden[f.UniqueSHA]; !hide {
					kept = append(kept, f)
				}
			}
			files = kept
		}
	}

	dirPath := e.relPath(dir.FQPN)

	all := make([]entryWithFile, 0, len(subdirs)+len(files))
	for i := range subdirs {
		entry, err := e.directoryEntry(ctx, &subdirs[i])
		if err != nil {
			return nil, err
		}
		all = append(all, entryWithFile{entry: entry})
	}
	for i := range files {
		f := files[i]
		all = append(all, entryWithFile{entry: e.fileEntry(dirPath, f), file: &f})
	}

	// Name-only ordering mixes directories and files; the grouped orders
	// keep directories first. Both input slices are already sorted, so a
	// stable re-sort on name settles the merged order.
	if key.sort == index.SortNameOnly {
		sort.SliceStable(all, func(i, j int) bool {
			return natcmp.Less(all[i].entry.Name, all[j].entry.Name)
		})
	}

	total := len(all)
	totalPages := (total + e.pageSize - 1) / e.pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if key.page > totalPages {
		return nil, fmt.Errorf("page %d of %d: %w", key.page, totalPages, domain.ErrNotFound)
	}

	start := (key.page - 1) * e.pageSize
	end := start + e.pageSize
	if end > total {
		end = total
	}
	window := all[start:end]

	entries := make([]Entry, 0, len(window))
	var warm []models.File
	for _, ef := range window {
		entries = append(entries, ef.entry)
		if ef.file != nil {
			warm = append(warm, *ef.file)
		}
	}
	if e.warmer != nil && len(warm) > 0 {
		e.warmer.Warm(warm)
	}

	pagination := Pagination{TotalItems: total, TotalPages: totalPages, Page: key.page}
	if key.page > 1 {
		pagination.PrevURL = e.pageURL(dirPath, key.sort, key.page-1, key.showDuplicates)
	}
	if key.page < totalPages {
		pagination.NextURL = e.pageURL(dirPath, key.sort, key.page+1, key.showDuplicates)
	}

	prev, next, err := e.siblings(ctx, dir, key.sort)
	if err != nil {
		return nil, err
	}

	return &Page{
		Path:        dirPath,
		DirSHA:      dir.SHA,
		Entries:     entries,
		Pagination:  pagination,
		PrevSibling: prev,
		NextSibling: next,
		Breadcrumbs: e.breadcrumbs(dir.FQPN),
	}, nil
}

// BuildArchive returns a paginated view of an archive file's image entries.
// Archive pages are not memoized: they are cheap relative to a directory
// page and keyed by file rather than directory.
func (e *Engine) BuildArchive(ctx context.Context, uniqueSHA string, page int) (*ArchivePage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: %w", page, domain.ErrNotFound)
	}

	f, err := e.index.FileByUniqueSHA(ctx, uniqueSHA)
	if err != nil {
		return nil, err
	}
	if !e.registry.GetByExt(f.Ext).IsArchive {
		return nil, fmt.Errorf("%s is not an archive: %w", f.Name, domain.ErrNotFound)
	}

	dir, err := e.dirs.GetBySHA(ctx, f.HomeDirectory)
	if err != nil {
		return nil, err
	}
	diskPath, err := thumbnail.ResolveDiskPath(dir.FQPN, f.Name)
	if err != nil {
		return nil, err
	}

	names, err := thumbnail.ListImages(ctx, diskPath)
	if err != nil {
		return nil, err
	}

	total := len(names)
	totalPages := (total + e.archivePageSize - 1) / e.archivePageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		return nil, fmt.Errorf("page %d of %d: %w", page, totalPages, domain.ErrNotFound)
	}

	start := (page - 1) * e.archivePageSize
	end := start + e.archivePageSize
	if end > total {
		end = total
	}

	entries := make([]ArchiveEntry, 0, end-start)
	for i := start; i < end; i++ {
		entries = append(entries, ArchiveEntry{Name: names[i], Index: i})
	}

	pagination := Pagination{TotalItems: total, TotalPages: totalPages, Page: page}
	base := "/archive/" + uniqueSHA
	if page > 1 {
		pagination.PrevURL = fmt.Sprintf("%s?page=%d", base, page-1)
	}
	if page < totalPages {
		pagination.NextURL = fmt.Sprintf("%s?page=%d", base, page+1)
	}

	return &ArchivePage{
		Name:       f.Name,
		UniqueSHA:  f.UniqueSHA,
		Entries:    entries,
		Pagination: pagination,
	}, nil
}

// CacheLen reports the number of memoized pages, for metrics.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

// CacheStats reports lifetime cache hit and miss counts.
func (e *Engine) CacheStats() (hits, misses uint64) {
	return e.hits.Load(), e.misses.Load()
}

// hiddenDuplicates returns the unique SHAs to hide when duplicates are
// filtered: for every content SHA appearing more than once, every occurrence
// except the natural-name-first one across the whole tree.
func (e *Engine) hiddenDuplicates(ctx context.Context) (map[string]struct{}, error) {
	occurrences, err := e.files.DuplicateOccurrences(ctx)
	if err != nil {
		return nil, err
	}
	if len(occurrences) == 0 {
		return nil, nil
	}

	retained := make(map[string]models.DuplicateOccurrence)
	for _, o := range occurrences {
		cur, ok := retained[o.FileSHA]
		if !ok || natcmp.Less(occurrencePath(o), occurrencePath(cur)) {
			retained[o.FileSHA] = o
		}
	}

	hidden := make(map[string]struct{}, len(occurrences)-len(retained))
	for _, o := range occurrences {
		if retained[o.FileSHA].UniqueSHA != o.UniqueSHA {
			hidden[o.UniqueSHA] = struct{}{}
		}
	}

	return hidden, nil
}

func occurrencePath(o models.DuplicateOccurrence) string {
	return o.FQPN + strings.ToLower(o.Name)
}

func (e *Engine) directoryEntry(ctx context.Context, d *models.Directory) (Entry, error) {
	name := identity.TitleCase(index.DirectoryDisplayName(*d))
	ft := e.registry.DirEntry()

	entry := Entry{
		Name:         name,
		Kind:         "dir",
		URL:          pathURL(e.relPath(d.FQPN)),
		IconURL:      iconURL(ft.IconFilename),
		Color:        ft.Color,
		CountFiles:   d.CountFiles,
		CountSubdirs: d.CountSubdirs,
	}

	coverSHA, err := e.coverSHA(ctx, d.SHA)
	if err != nil {
		return Entry{}, err
	}
	if coverSHA != "" {
		entry.ThumbnailURL = thumbURL(coverSHA)
	}

	return entry, nil
}

// coverSHA picks the content SHA representing a directory: a file whose stem
// matches the configured cover names, else the natural-name-first image.
// Unsynced or coverless directories return "" and fall back to the kind icon.
func (e *Engine) coverSHA(ctx context.Context, dirSHA string) (string, error) {
	files, err := e.files.ListByDirectory(ctx, dirSHA, false)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	for _, stem := range e.coverNames {
		for _, f := range files {
			if fileStem(f.Name) == stem && e.registry.GetByExt(f.Ext).HasOwnThumbnail() {
				return f.FileSHA, nil
			}
		}
	}

	index.SortFiles(files, index.SortNaturalName)
	for _, f := range files {
		if e.registry.GetByExt(f.Ext).IsImage {
			return f.FileSHA, nil
		}
	}

	return "", nil
}

func fileStem(name string) string {
	lower := strings.ToLower(name)
	if i := strings.LastIndex(lower, "."); i > 0 {
		return lower[:i]
	}
	return lower
}

func (e *Engine) fileEntry(dirPath string, f models.File) Entry {
	ft := e.registry.GetByExt(f.Ext)
	mtime := f.MTime

	entry := Entry{
		Name:      f.Name,
		Kind:      ft.Kind(),
		URL:       pathURL(dirPath+f.Name) + "?usha=" + f.UniqueSHA,
		IconURL:   iconURL(ft.IconFilename),
		Color:     ft.Color,
		UniqueSHA: f.UniqueSHA,
		FileSHA:   f.FileSHA,
		Size:      f.Size,
		MTime:     &mtime,
	}

	if ft.HasOwnThumbnail() {
		entry.ThumbnailURL = thumbURL(f.FileSHA)
	}

	return entry
}

func (e *Engine) siblings(ctx context.Context, dir *models.Directory, order index.SortOrder) (prev, next *Sibling, err error) {
	if dir.ParentSHA == nil {
		return nil, nil, nil
	}

	sibs, err := e.dirs.ListChildren(ctx, *dir.ParentSHA)
	if err != nil {
		return nil, nil, err
	}
	index.SortDirectories(sibs, order)

	for i := range sibs {
		if sibs[i].SHA != dir.SHA {
			continue
		}
		if i > 0 {
			prev = e.sibling(sibs[i-1])
		}
		if i+1 < len(sibs) {
			next = e.sibling(sibs[i+1])
		}
		break
	}

	return prev, next, nil
}

func (e *Engine) sibling(d models.Directory) *Sibling {
	return &Sibling{
		Name: identity.TitleCase(index.DirectoryDisplayName(d)),
		URL:  pathURL(e.relPath(d.FQPN)),
	}
}

func (e *Engine) breadcrumbs(fqpn string) []Breadcrumb {
	crumbs := []Breadcrumb{{Label: "Home", URL: "/"}}

	rel := strings.TrimPrefix(fqpn, e.rootFQPN)
	if rel == "" {
		return crumbs
	}

	acc := "/"
	for _, seg := range strings.Split(strings.Trim(rel, "/"), "/") {
		if seg == "" {
			continue
		}
		acc += seg + "/"
		crumbs = append(crumbs, Breadcrumb{Label: identity.TitleCase(seg), URL: pathURL(acc)})
	}

	return crumbs
}

// relPath maps a canonical FQPN to its root-relative URL path, with leading
// and trailing slashes.
func (e *Engine) relPath(fqpn string) string {
	return "/" + strings.TrimPrefix(fqpn, e.rootFQPN)
}

func (e *Engine) pageURL(dirPath string, order index.SortOrder, page int, showDuplicates bool) string {
	u := pathURL(dirPath) + fmt.Sprintf("?sort=%d&page=%d", order, page)
	if showDuplicates {
		u += "&duplicates=true"
	}
	return u
}

func pathURL(p string) string {
	u := url.URL{Path: p}
	return u.EscapedPath()
}

func thumbURL(fileSHA string) string {
	return "/thumbnail/" + fileSHA + "/" + string(domain.ThumbnailSmall)
}

func iconURL(filename string) string {
	if filename == "" {
		return ""
	}
	return "/static/icons/" + filename
}
