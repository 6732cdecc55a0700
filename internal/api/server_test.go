// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/identity"
	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/layout"
	"github.com/autobrr/lumen/internal/models"
	"github.com/autobrr/lumen/internal/thumbnail"
)

type testEnv struct {
	srv   *httptest.Server
	idx   *index.Service
	files *models.FileStore
	root  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "lumen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	registry := filetypes.NewRegistryFromSlice(filetypes.SeedData())

	idx, err := index.NewService(db, registry, identity.NewCanonicalizer(), index.Options{Root: t.TempDir()})
	require.NoError(t, err)

	boxes := make(map[domain.ThumbnailSize]domain.Box)
	for name, box := range domain.DefaultThumbnailSizes() {
		boxes[domain.ThumbnailSize(name)] = box
	}
	thumbs, err := thumbnail.NewService(db, registry, thumbnail.Options{Boxes: boxes})
	require.NoError(t, err)
	t.Cleanup(thumbs.Close)

	engine := layout.NewEngine(db, idx, registry, thumbs, layout.Options{})

	root, _ := idx.Root()
	cfg := &domain.Config{Host: "localhost", Port: 0, GalleryRoot: root}

	server := NewServer(cfg, db, idx, engine, thumbs, registry)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, idx: idx, files: models.NewFileStore(db), root: root}
}

func (e *testEnv) writePNG(t *testing.T, rel string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(e.root, rel), buf.Bytes(), 0o644))
}

// listedFile syncs the root and returns the indexed row for rel.
func (e *testEnv) listedFile(t *testing.T, name string) models.File {
	t.Helper()

	_, files, _, err := e.idx.ListDirectory(context.Background(), e.root, index.SortNaturalName)
	require.NoError(t, err)

	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("file %s not indexed", name)
	return models.File{}
}

func TestListDirectoryPage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writePNG(t, "photo.png")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "albums"), 0o755))

	resp, err := http.Get(env.srv.URL + "/?sort=0&page=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var page layout.Page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))

	require.Len(t, page.Entries, 2)
	require.Equal(t, "Albums", page.Entries[0].Name)
	require.Equal(t, "dir", page.Entries[0].Kind)
	require.Equal(t, "Photo.Png", page.Entries[1].Name)
	require.Equal(t, 1, page.Pagination.TotalPages)
}

func TestListRejectsBadQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for _, q := range []string{"?sort=9", "?sort=x", "?page=0", "?page=x"} {
		resp, err := http.Get(env.srv.URL + "/" + q)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestUnknownDirectoryIs404(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/no/such/place/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFileServedByUniqueSHA(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writePNG(t, "photo.png")
	f := env.listedFile(t, "Photo.Png")

	resp, err := http.Get(env.srv.URL + "/photo.png?usha=" + f.UniqueSHA)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestFileServedByCaseInsensitivePath(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writePNG(t, "photo.png")
	env.listedFile(t, "Photo.Png")

	resp, err := http.Get(env.srv.URL + "/PHOTO.PNG")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestMissingFileIs404(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writePNG(t, "photo.png")
	env.listedFile(t, "Photo.Png")

	resp, err := http.Get(env.srv.URL + "/other.png")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestThumbnailEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writePNG(t, "photo.png")
	f := env.listedFile(t, "Photo.Png")

	resp, err := http.Get(env.srv.URL + "/thumbnail/" + f.FileSHA + "/small")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Cache-Control"), "immutable")
}

func TestThumbnailBadSizeAndUnknownSHA(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writePNG(t, "photo.png")
	f := env.listedFile(t, "Photo.Png")

	resp, err := http.Get(env.srv.URL + "/thumbnail/" + f.FileSHA + "/huge")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/thumbnail/0000000000000000000000000000000000000000000000000000000000000000/small")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/health/liveness")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/api/health/readiness")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
