// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/models"
)

type fakeLayout struct {
	pages        int
	hits, misses uint64
}

func (f fakeLayout) CacheLen() int                     { return f.pages }
func (f fakeLayout) CacheStats() (hits, misses uint64) { return f.hits, f.misses }

type fakeIndex struct{ syncs uint64 }

func (f fakeIndex) SyncsRun() uint64 { return f.syncs }

func TestGalleryCollectorReportsIndexState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "lumen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	dirs := models.NewDirectoryStore(db)
	files := models.NewFileStore(db)
	thumbs := models.NewThumbnailStore(db)

	require.NoError(t, dirs.Upsert(ctx, &models.Directory{SHA: "dir-1", FQPN: "/gallery/"}))
	f := models.File{Name: "A.Jpg", HomeDirectory: "dir-1", FileSHA: "sha-1", UniqueSHA: "u-1", Ext: ".jpg", MTime: time.Now()}
	require.NoError(t, files.Insert(ctx, &f))
	require.NoError(t, thumbs.Upsert(ctx, &models.ThumbnailRecord{SHA: "sha-1", Small: []byte("s")}))

	c := NewGalleryCollector(db, Sources{
		Layout: fakeLayout{pages: 4, hits: 7, misses: 2},
		Index:  fakeIndex{syncs: 3},
	})

	expected := `
		# HELP lumen_directories Number of live directories in the index
		# TYPE lumen_directories gauge
		lumen_directories 1
		# HELP lumen_directory_syncs_total Directory scans executed by the sync engine
		# TYPE lumen_directory_syncs_total counter
		lumen_directory_syncs_total 3
		# HELP lumen_files Number of live files in the index
		# TYPE lumen_files gauge
		lumen_files 1
		# HELP lumen_layout_cache_hits_total Layout page cache hits
		# TYPE lumen_layout_cache_hits_total counter
		lumen_layout_cache_hits_total 7
		# HELP lumen_layout_cache_misses_total Layout page cache misses
		# TYPE lumen_layout_cache_misses_total counter
		lumen_layout_cache_misses_total 2
		# HELP lumen_layout_cache_pages Number of memoized layout pages
		# TYPE lumen_layout_cache_pages gauge
		lumen_layout_cache_pages 4
		# HELP lumen_thumbnail_records Number of content-addressed thumbnail records
		# TYPE lumen_thumbnail_records gauge
		lumen_thumbnail_records 1
	`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}
