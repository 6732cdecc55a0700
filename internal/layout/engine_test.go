// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package layout

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/identity"
	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/models"
)

type recordingWarmer struct {
	mu    sync.Mutex
	files []models.File
}

func (w *recordingWarmer) Warm(files []models.File) {
	w.mu.Lock()
	w.files = append(w.files, files...)
	w.mu.Unlock()
}

type testEnv struct {
	db     *database.DB
	idx    *index.Service
	engine *Engine
	warmer *recordingWarmer
	root   string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "lumen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	registry := filetypes.NewRegistryFromSlice(filetypes.SeedData())
	idx, err := index.NewService(db, registry, identity.NewCanonicalizer(), index.Options{Root: t.TempDir()})
	require.NoError(t, err)

	warmer := &recordingWarmer{}
	engine := NewEngine(db, idx, registry, warmer, opts)

	root, _ := idx.Root()
	return &testEnv{db: db, idx: idx, engine: engine, warmer: warmer, root: root}
}

func (e *testEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.root, rel), []byte(content), 0o644))
}

func TestBuildComposesDirectoryPage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.writeFile(t, "beta.jpg", "b")
	env.writeFile(t, "alpha.jpg", "a")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "nested"), 0o755))

	page, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)

	require.Len(t, page.Entries, 3)
	require.Equal(t, "Nested", page.Entries[0].Name)
	require.Equal(t, "dir", page.Entries[0].Kind)
	require.Equal(t, "Alpha.Jpg", page.Entries[1].Name)
	require.Equal(t, "Beta.Jpg", page.Entries[2].Name)

	alpha := page.Entries[1]
	require.Equal(t, "image", alpha.Kind)
	require.Equal(t, "/thumbnail/"+alpha.FileSHA+"/small", alpha.ThumbnailURL)
	require.Contains(t, alpha.URL, "?usha="+alpha.UniqueSHA)

	require.Equal(t, 3, page.Pagination.TotalItems)
	require.Equal(t, 1, page.Pagination.TotalPages)
	require.Empty(t, page.Pagination.PrevURL)
	require.Empty(t, page.Pagination.NextURL)

	require.Equal(t, []Breadcrumb{{Label: "Home", URL: "/"}}, page.Breadcrumbs)
	require.Nil(t, page.PrevSibling)
	require.Nil(t, page.NextSibling)
}

func TestBuildPaginates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{PageSize: 10})
	for i := 0; i < 23; i++ {
		env.writeFile(t, fmt.Sprintf("f%04d.jpg", i), fmt.Sprintf("content-%d", i))
	}

	first, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Len(t, first.Entries, 10)
	require.Equal(t, 3, first.Pagination.TotalPages)
	require.Empty(t, first.Pagination.PrevURL)
	require.Equal(t, "/?sort=0&page=2&duplicates=true", first.Pagination.NextURL)

	last, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 3, true)
	require.NoError(t, err)
	require.Len(t, last.Entries, 3)
	require.Equal(t, "F0020.Jpg", last.Entries[0].Name)
	require.Empty(t, last.Pagination.NextURL)

	_, err = env.engine.Build(ctx, env.root, index.SortNaturalName, 4, true)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.engine.Build(ctx, env.root, index.SortNaturalName, 0, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDuplicateFiltering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.writeFile(t, "a.jpg", "same-content")
	env.writeFile(t, "b.jpg", "same-content")
	env.writeFile(t, "c.jpg", "other-content")

	all, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Len(t, all.Entries, 3)

	// Both duplicates resolve to the same thumbnail.
	require.Equal(t, all.Entries[0].ThumbnailURL, all.Entries[1].ThumbnailURL)
	require.NotEqual(t, all.Entries[0].UniqueSHA, all.Entries[1].UniqueSHA)

	filtered, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, false)
	require.NoError(t, err)
	require.Len(t, filtered.Entries, 2)
	require.Equal(t, "A.Jpg", filtered.Entries[0].Name)
	require.Equal(t, "C.Jpg", filtered.Entries[1].Name)
}

func TestCachePurgedOnInvalidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.writeFile(t, "a.jpg", "a")

	page, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)

	// A disk change alone does not bust the memo; the same payload is served.
	env.writeFile(t, "b.jpg", "b")
	cached, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Same(t, page, cached)

	// Invalidation purges every page for the directory before returning.
	require.NoError(t, env.idx.MarkInvalid(ctx, env.root))
	require.Zero(t, env.engine.CacheLen())

	fresh, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Len(t, fresh.Entries, 2)
}

type hookWarmer struct {
	fn func()
}

func (w *hookWarmer) Warm([]models.File) {
	if w.fn != nil {
		w.fn()
	}
}

func TestInvalidationDuringBuildIsNotOverwritten(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "lumen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	registry := filetypes.NewRegistryFromSlice(filetypes.SeedData())
	idx, err := index.NewService(db, registry, identity.NewCanonicalizer(), index.Options{Root: t.TempDir()})
	require.NoError(t, err)

	warmer := &hookWarmer{}
	engine := NewEngine(db, idx, registry, warmer, Options{})
	root, _ := idx.Root()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("a"), 0o644))

	// The warmer runs while the page is being composed. A change landing
	// there, with its invalidation, must not be overwritten by the page the
	// in-flight build produces.
	fired := false
	warmer.fn = func() {
		if fired {
			return
		}
		fired = true
		require.NoError(t, os.WriteFile(filepath.Join(root, "b.jpg"), []byte("b"), 0o644))
		require.NoError(t, idx.MarkInvalid(ctx, root))
	}

	stale, err := engine.Build(ctx, root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Len(t, stale.Entries, 1, "the in-flight build returns what it saw")
	require.Zero(t, engine.CacheLen(), "a page predating the invalidation is never cached")

	fresh, err := engine.Build(ctx, root, index.SortNaturalName, 1, true)
	require.NoError(t, err)
	require.Len(t, fresh.Entries, 2)
}

func TestSiblingsAndBreadcrumbs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{})
	for _, d := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, os.Mkdir(filepath.Join(env.root, d), 0o755))
	}

	// Sync the parent so all three siblings are indexed.
	_, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)

	page, err := env.engine.Build(ctx, filepath.Join(env.root, "beta"), index.SortNaturalName, 1, true)
	require.NoError(t, err)

	require.NotNil(t, page.PrevSibling)
	require.Equal(t, "Alpha", page.PrevSibling.Name)
	require.NotNil(t, page.NextSibling)
	require.Equal(t, "Gamma", page.NextSibling.Name)

	require.Len(t, page.Breadcrumbs, 2)
	require.Equal(t, "Home", page.Breadcrumbs[0].Label)
	require.Equal(t, "Beta", page.Breadcrumbs[1].Label)
	require.Equal(t, "/beta/", page.Breadcrumbs[1].URL)
}

func TestDirectoryCoverSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{CoverNames: []string{"cover", "title"}})

	sub := filepath.Join(env.root, "album")
	require.NoError(t, os.Mkdir(sub, 0o755))
	env.writeFile(t, "album/zz.jpg", "zz")
	env.writeFile(t, "album/cover.jpg", "the-cover")

	// Sync the subdirectory so its files are indexed, then render the parent.
	require.NoError(t, env.idx.Sync(ctx, sub))
	page, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)

	coverSHA, _ := identity.ContentSHAs([]byte("the-cover"), "")
	require.Equal(t, "/thumbnail/"+coverSHA+"/small", page.Entries[0].ThumbnailURL)
}

func TestDirectoryCoverFallsBackToFirstImage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{CoverNames: []string{"cover"}})

	sub := filepath.Join(env.root, "album")
	require.NoError(t, os.Mkdir(sub, 0o755))
	env.writeFile(t, "album/b.jpg", "second")
	env.writeFile(t, "album/a.jpg", "first")

	require.NoError(t, env.idx.Sync(ctx, sub))
	page, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)

	firstSHA, _ := identity.ContentSHAs([]byte("first"), "")
	require.Equal(t, "/thumbnail/"+firstSHA+"/small", page.Entries[0].ThumbnailURL)
}

func TestSortNameOnlyMixesKinds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{})
	env.writeFile(t, "aaa.jpg", "a")
	env.writeFile(t, "zzz.jpg", "z")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "mmm"), 0o755))

	page, err := env.engine.Build(ctx, env.root, index.SortNameOnly, 1, true)
	require.NoError(t, err)

	require.Equal(t, "Aaa.Jpg", page.Entries[0].Name)
	require.Equal(t, "Mmm", page.Entries[1].Name)
	require.Equal(t, "Zzz.Jpg", page.Entries[2].Name)
}

func TestWarmerReceivesPageFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{PageSize: 2})
	env.writeFile(t, "a.jpg", "a")
	env.writeFile(t, "b.jpg", "b")
	env.writeFile(t, "c.jpg", "c")

	_, err := env.engine.Build(ctx, env.root, index.SortNaturalName, 1, true)
	require.NoError(t, err)

	env.warmer.mu.Lock()
	defer env.warmer.mu.Unlock()
	require.Len(t, env.warmer.files, 2, "only the rendered page is warmed")
}

func TestBuildArchivePage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, Options{ArchivePageSize: 2})

	archivePath := filepath.Join(env.root, "comic.cbz")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"p10.png", "p1.png", "p2.png", "notes.txt"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	require.NoError(t, env.idx.Sync(ctx, env.root))
	files, err := models.NewFileStore(env.db).ListByDirectory(ctx, mustSHA(env), false)
	require.NoError(t, err)
	require.Len(t, files, 1)

	page, err := env.engine.BuildArchive(ctx, files[0].UniqueSHA, 1)
	require.NoError(t, err)
	require.Equal(t, 3, page.Pagination.TotalItems)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Equal(t, []ArchiveEntry{{Name: "p1.png", Index: 0}, {Name: "p2.png", Index: 1}}, page.Entries)

	second, err := env.engine.BuildArchive(ctx, files[0].UniqueSHA, 2)
	require.NoError(t, err)
	require.Equal(t, []ArchiveEntry{{Name: "p10.png", Index: 2}}, second.Entries)
}

func mustSHA(env *testEnv) string {
	_, sha := env.idx.Root()
	return sha
}
