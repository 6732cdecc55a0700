// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration from a TOML file with
// LUMEN__ environment overrides, creating a commented default file on first
// run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/lumen/internal/domain"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// LUMEN__GALLERY_ROOT maps to the galleryRoot key.
const envPrefix = "LUMEN__"

var configTemplate = `# config.toml - lumen

# Hostname / IP
#
host = "{{ .host }}"

# Port
#
port = 7414

# Base url
# Set custom baseUrl eg /lumen/ to serve in subdirectory.
# Not needed for subdomain, or by accessing with the :port directly.
#
#baseUrl = "/lumen/"

# The gallery root: the single directory tree served and indexed.
# Must be an absolute path.
#
galleryRoot = "{{ .galleryRoot }}"

# Lumen logs file
# If not defined, logs to stdout
#
#logPath = "log/lumen.log"

# Log level
#
# Default: "DEBUG"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
#
logLevel = "DEBUG"

# Prometheus metrics listener
#
#metricsEnabled = true
#metricsHost = "127.0.0.1"
#metricsPort = 9414
`

// AppConfig wraps the parsed configuration and the viper instance backing
// it.
type AppConfig struct {
	Config *domain.Config

	m          sync.Mutex
	viper      *viper.Viper
	configPath string
}

// New loads (creating if needed) the configuration. An empty configPath
// resolves to the platform user config directory.
func New(configPath string, version string) (*AppConfig, error) {
	c := &AppConfig{viper: viper.New()}

	c.defaults(version)
	if err := c.load(configPath); err != nil {
		return nil, err
	}
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return c, nil
}

func (c *AppConfig) defaults(version string) {
	c.Config = &domain.Config{
		Version:       version,
		Host:          "localhost",
		Port:          7414,
		LogLevel:      "DEBUG",
		LogMaxSize:    50,
		LogMaxBackups: 3,

		MetricsEnabled: false,
		MetricsHost:    "127.0.0.1",
		MetricsPort:    9414,

		IgnoreDotfiles:     true,
		FilesToIgnore:      []string{"thumbs.db", "desktop.ini", ".ds_store"},
		ExtensionsToIgnore: []string{".tmp", ".part", ".crdownload"},
		CoverNames:         []string{"cover", "title", "folder"},

		GalleryPageSize: 30,
		ArchivePageSize: 21,

		ThumbnailSizes:            domain.DefaultThumbnailSizes(),
		ThumbnailConcurrencyLimit: 2,
		ThumbnailBatchSize:        5,

		InvalidatorDebounceSeconds: 5,
		WatcherRestartSchedule:     []string{"1h"},
		SyncFreshnessWindowSeconds: 0,
	}

	c.viper.SetDefault("host", c.Config.Host)
	c.viper.SetDefault("port", c.Config.Port)
	c.viper.SetDefault("logLevel", c.Config.LogLevel)
	c.viper.SetDefault("logMaxSize", c.Config.LogMaxSize)
	c.viper.SetDefault("logMaxBackups", c.Config.LogMaxBackups)
	c.viper.SetDefault("metricsEnabled", c.Config.MetricsEnabled)
	c.viper.SetDefault("metricsHost", c.Config.MetricsHost)
	c.viper.SetDefault("metricsPort", c.Config.MetricsPort)
	c.viper.SetDefault("ignoreDotfiles", c.Config.IgnoreDotfiles)
	c.viper.SetDefault("filesToIgnore", c.Config.FilesToIgnore)
	c.viper.SetDefault("extensionsToIgnore", c.Config.ExtensionsToIgnore)
	c.viper.SetDefault("coverNames", c.Config.CoverNames)
	c.viper.SetDefault("galleryPageSize", c.Config.GalleryPageSize)
	c.viper.SetDefault("archivePageSize", c.Config.ArchivePageSize)
	c.viper.SetDefault("thumbnailSizes", c.Config.ThumbnailSizes)
	c.viper.SetDefault("thumbnailConcurrencyLimit", c.Config.ThumbnailConcurrencyLimit)
	c.viper.SetDefault("thumbnailBatchSize", c.Config.ThumbnailBatchSize)
	c.viper.SetDefault("invalidatorDebounceSeconds", c.Config.InvalidatorDebounceSeconds)
	c.viper.SetDefault("watcherRestartSchedule", c.Config.WatcherRestartSchedule)
	c.viper.SetDefault("syncFreshnessWindowSeconds", c.Config.SyncFreshnessWindowSeconds)
}

func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err == nil && info.IsDir() {
			configPath = filepath.Join(configPath, "config.toml")
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve user config dir: %w", err)
		}
		configPath = filepath.Join(dir, "lumen", "config.toml")
	}
	c.configPath = configPath

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(configPath); err != nil {
			return err
		}
	}

	c.viper.SetConfigFile(configPath)
	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("config read error: %w", err)
	}

	c.bindEnv()

	return nil
}

// bindEnv maps LUMEN__SNAKE_CASE environment variables onto config keys.
func (c *AppConfig) bindEnv() {
	bindings := map[string]string{
		"host":                       "HOST",
		"port":                       "PORT",
		"baseUrl":                    "BASE_URL",
		"logLevel":                   "LOG_LEVEL",
		"logPath":                    "LOG_PATH",
		"dataDir":                    "DATA_DIR",
		"galleryRoot":                "GALLERY_ROOT",
		"metricsEnabled":             "METRICS_ENABLED",
		"metricsHost":                "METRICS_HOST",
		"metricsPort":                "METRICS_PORT",
		"ignoreDotfiles":             "IGNORE_DOTFILES",
		"galleryPageSize":            "GALLERY_PAGE_SIZE",
		"archivePageSize":            "ARCHIVE_PAGE_SIZE",
		"thumbnailConcurrencyLimit":  "THUMBNAIL_CONCURRENCY_LIMIT",
		"thumbnailBatchSize":         "THUMBNAIL_BATCH_SIZE",
		"invalidatorDebounceSeconds": "INVALIDATOR_DEBOUNCE_SECONDS",
		"syncFreshnessWindowSeconds": "SYNC_FRESHNESS_WINDOW_SECONDS",
	}

	for key, env := range bindings {
		_ = c.viper.BindEnv(key, envPrefix+env)
	}
}

func (c *AppConfig) writeDefaultConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	host := "127.0.0.1"
	// Containers want to listen on all interfaces.
	if _, err := os.Stat("/.dockerenv"); err == nil {
		host = "0.0.0.0"
	} else if _, err := os.Stat("/dev/.lxc-boot-id"); err == nil {
		host = "0.0.0.0"
	}

	galleryRoot := c.Config.GalleryRoot
	if galleryRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			galleryRoot = filepath.Join(home, "Pictures")
		}
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("parse config template: %w", err)
	}
	if err := tmpl.Execute(f, map[string]string{"host": host, "galleryRoot": galleryRoot}); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	log.Info().Str("path", configPath).Msg("wrote default config file")
	return nil
}

// DatabasePath resolves the SQLite file location: dataDir when configured,
// otherwise next to the config file.
func (c *AppConfig) DatabasePath() string {
	c.m.Lock()
	defer c.m.Unlock()

	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, "lumen.db")
	}
	return filepath.Join(filepath.Dir(c.configPath), "lumen.db")
}

// ConfigPath returns the resolved config file location.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}
