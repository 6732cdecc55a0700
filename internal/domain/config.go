// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ThumbnailSize is one of the three generated preview sizes.
type ThumbnailSize string

const (
	ThumbnailSmall  ThumbnailSize = "small"
	ThumbnailMedium ThumbnailSize = "medium"
	ThumbnailLarge  ThumbnailSize = "large"
)

// ParseThumbnailSize validates a size name from a URL segment.
func ParseThumbnailSize(s string) (ThumbnailSize, error) {
	switch ThumbnailSize(strings.ToLower(s)) {
	case ThumbnailSmall:
		return ThumbnailSmall, nil
	case ThumbnailMedium:
		return ThumbnailMedium, nil
	case ThumbnailLarge:
		return ThumbnailLarge, nil
	default:
		return "", fmt.Errorf("unknown thumbnail size %q", s)
	}
}

// Box is a bounding box thumbnails are fitted inside (aspect preserved).
type Box struct {
	Width  int `toml:"width" mapstructure:"width"`
	Height int `toml:"height" mapstructure:"height"`
}

// Config represents the application configuration.
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`

	// GalleryRoot is the single managed filesystem tree the gallery mirrors.
	GalleryRoot string `toml:"galleryRoot" mapstructure:"galleryRoot"`

	IgnoreDotfiles     bool     `toml:"ignoreDotfiles" mapstructure:"ignoreDotfiles"`
	FilesToIgnore      []string `toml:"filesToIgnore" mapstructure:"filesToIgnore"`
	ExtensionsToIgnore []string `toml:"extensionsToIgnore" mapstructure:"extensionsToIgnore"`

	// CoverNames are filename stems preferred when picking a directory cover,
	// in priority order.
	CoverNames []string `toml:"coverNames" mapstructure:"coverNames"`

	GalleryPageSize int `toml:"galleryPageSize" mapstructure:"galleryPageSize"`
	ArchivePageSize int `toml:"archivePageSize" mapstructure:"archivePageSize"`

	ThumbnailSizes            map[string]Box `toml:"thumbnailSizes" mapstructure:"thumbnailSizes"`
	ThumbnailConcurrencyLimit int            `toml:"thumbnailConcurrencyLimit" mapstructure:"thumbnailConcurrencyLimit"`
	ThumbnailBatchSize        int            `toml:"thumbnailBatchSize" mapstructure:"thumbnailBatchSize"`

	InvalidatorDebounceSeconds int `toml:"invalidatorDebounceSeconds" mapstructure:"invalidatorDebounceSeconds"`

	// WatcherRestartSchedule is either a single Go duration ("1h") or a list
	// of wall-clock HH:MM times at which the watcher is torn down and rebuilt.
	WatcherRestartSchedule []string `toml:"watcherRestartSchedule" mapstructure:"watcherRestartSchedule"`

	SyncFreshnessWindowSeconds int `toml:"syncFreshnessWindowSeconds" mapstructure:"syncFreshnessWindowSeconds"`
}

// Validate checks settings the server cannot run without.
func (c *Config) Validate() error {
	if c.GalleryRoot == "" {
		return errors.New("galleryRoot is required")
	}
	if !filepath.IsAbs(c.GalleryRoot) {
		return fmt.Errorf("galleryRoot must be an absolute path: %s", c.GalleryRoot)
	}
	if c.GalleryPageSize < 1 {
		return fmt.Errorf("galleryPageSize must be positive: %d", c.GalleryPageSize)
	}
	if c.ArchivePageSize < 1 {
		return fmt.Errorf("archivePageSize must be positive: %d", c.ArchivePageSize)
	}
	if c.ThumbnailConcurrencyLimit < 1 {
		return fmt.Errorf("thumbnailConcurrencyLimit must be positive: %d", c.ThumbnailConcurrencyLimit)
	}

	for _, size := range []ThumbnailSize{ThumbnailSmall, ThumbnailMedium, ThumbnailLarge} {
		box, ok := c.ThumbnailSizes[string(size)]
		if !ok {
			return fmt.Errorf("thumbnailSizes is missing the %q entry", size)
		}
		if box.Width < 1 || box.Height < 1 {
			return fmt.Errorf("thumbnailSizes.%s has invalid dimensions %dx%d", size, box.Width, box.Height)
		}
	}

	return nil
}

// DefaultThumbnailSizes returns the stock small/medium/large bounding boxes.
func DefaultThumbnailSizes() map[string]Box {
	return map[string]Box{
		string(ThumbnailSmall):  {Width: 200, Height: 200},
		string(ThumbnailMedium): {Width: 740, Height: 740},
		string(ThumbnailLarge):  {Width: 1024, Height: 1024},
	}
}
