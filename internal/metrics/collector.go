// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes gallery state as Prometheus metrics on an
// optional dedicated listener.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/models"
)

const scrapeTimeout = 5 * time.Second

// LayoutCache is the slice of the layout engine the collector reads.
type LayoutCache interface {
	CacheLen() int
	CacheStats() (hits, misses uint64)
}

// IndexStats exposes the sync engine's lifetime counters.
type IndexStats interface {
	SyncsRun() uint64
}

// PipelineStats exposes the thumbnail pipeline's lifetime counters.
type PipelineStats interface {
	GenerationStats() (generated, failed uint64)
}

// WatcherStats exposes the invalidator's lifetime counters.
type WatcherStats interface {
	FlushedInvalidations() uint64
}

// Sources bundles the live services the collector reads from. Nil fields are
// skipped, so partial wiring (tests, disabled subsystems) stays valid.
type Sources struct {
	Layout  LayoutCache
	Index   IndexStats
	Thumbs  PipelineStats
	Watcher WatcherStats
}

// GalleryCollector reads index and cache state at scrape time.
type GalleryCollector struct {
	dirs   *models.DirectoryStore
	files  *models.FileStore
	thumbs *models.ThumbnailStore
	src    Sources

	directoriesDesc *prometheus.Desc
	filesDesc       *prometheus.Desc
	thumbnailsDesc  *prometheus.Desc
	layoutPagesDesc *prometheus.Desc

	syncsDesc       *prometheus.Desc
	generatedDesc   *prometheus.Desc
	genFailedDesc   *prometheus.Desc
	invalidatedDesc *prometheus.Desc
	cacheHitsDesc   *prometheus.Desc
	cacheMissesDesc *prometheus.Desc
}

func NewGalleryCollector(db *database.DB, src Sources) *GalleryCollector {
	return &GalleryCollector{
		dirs:   models.NewDirectoryStore(db),
		files:  models.NewFileStore(db),
		thumbs: models.NewThumbnailStore(db),
		src:    src,

		directoriesDesc: prometheus.NewDesc(
			"lumen_directories",
			"Number of live directories in the index",
			nil,
			nil,
		),
		filesDesc: prometheus.NewDesc(
			"lumen_files",
			"Number of live files in the index",
			nil,
			nil,
		),
		thumbnailsDesc: prometheus.NewDesc(
			"lumen_thumbnail_records",
			"Number of content-addressed thumbnail records",
			nil,
			nil,
		),
		layoutPagesDesc: prometheus.NewDesc(
			"lumen_layout_cache_pages",
			"Number of memoized layout pages",
			nil,
			nil,
		),
		syncsDesc: prometheus.NewDesc(
			"lumen_directory_syncs_total",
			"Directory scans executed by the sync engine",
			nil,
			nil,
		),
		generatedDesc: prometheus.NewDesc(
			"lumen_thumbnails_generated_total",
			"Thumbnail records generated",
			nil,
			nil,
		),
		genFailedDesc: prometheus.NewDesc(
			"lumen_thumbnails_failed_total",
			"Thumbnail generations that failed or stored a sentinel",
			nil,
			nil,
		),
		invalidatedDesc: prometheus.NewDesc(
			"lumen_invalidations_flushed_total",
			"Directory invalidations applied by the filesystem watcher",
			nil,
			nil,
		),
		cacheHitsDesc: prometheus.NewDesc(
			"lumen_layout_cache_hits_total",
			"Layout page cache hits",
			nil,
			nil,
		),
		cacheMissesDesc: prometheus.NewDesc(
			"lumen_layout_cache_misses_total",
			"Layout page cache misses",
			nil,
			nil,
		),
	}
}

func (c *GalleryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.directoriesDesc
	ch <- c.filesDesc
	ch <- c.thumbnailsDesc
	ch <- c.layoutPagesDesc
	ch <- c.syncsDesc
	ch <- c.generatedDesc
	ch <- c.genFailedDesc
	ch <- c.invalidatedDesc
	ch <- c.cacheHitsDesc
	ch <- c.cacheMissesDesc
}

func (c *GalleryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	if n, err := c.dirs.Count(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.directoriesDesc, prometheus.GaugeValue, float64(n))
	} else {
		log.Warn().Err(err).Msg("metrics: failed to count directories")
	}

	if n, err := c.files.Count(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.filesDesc, prometheus.GaugeValue, float64(n))
	} else {
		log.Warn().Err(err).Msg("metrics: failed to count files")
	}

	if n, err := c.thumbs.Count(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.thumbnailsDesc, prometheus.GaugeValue, float64(n))
	} else {
		log.Warn().Err(err).Msg("metrics: failed to count thumbnail records")
	}

	if c.src.Layout != nil {
		ch <- prometheus.MustNewConstMetric(c.layoutPagesDesc, prometheus.GaugeValue, float64(c.src.Layout.CacheLen()))

		hits, misses := c.src.Layout.CacheStats()
		ch <- prometheus.MustNewConstMetric(c.cacheHitsDesc, prometheus.CounterValue, float64(hits))
		ch <- prometheus.MustNewConstMetric(c.cacheMissesDesc, prometheus.CounterValue, float64(misses))
	}

	if c.src.Index != nil {
		ch <- prometheus.MustNewConstMetric(c.syncsDesc, prometheus.CounterValue, float64(c.src.Index.SyncsRun()))
	}

	if c.src.Thumbs != nil {
		generated, failed := c.src.Thumbs.GenerationStats()
		ch <- prometheus.MustNewConstMetric(c.generatedDesc, prometheus.CounterValue, float64(generated))
		ch <- prometheus.MustNewConstMetric(c.genFailedDesc, prometheus.CounterValue, float64(failed))
	}

	if c.src.Watcher != nil {
		ch <- prometheus.MustNewConstMetric(c.invalidatedDesc, prometheus.CounterValue, float64(c.src.Watcher.FlushedInvalidations()))
	}
}
