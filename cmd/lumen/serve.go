// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/lumen/internal/api"
	"github.com/autobrr/lumen/internal/buildinfo"
	"github.com/autobrr/lumen/internal/config"
	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/domain"
	"github.com/autobrr/lumen/internal/filetypes"
	"github.com/autobrr/lumen/internal/identity"
	"github.com/autobrr/lumen/internal/index"
	"github.com/autobrr/lumen/internal/invalidator"
	"github.com/autobrr/lumen/internal/layout"
	"github.com/autobrr/lumen/internal/metrics"
	"github.com/autobrr/lumen/internal/sweeper"
	"github.com/autobrr/lumen/internal/thumbnail"
)

func RunServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gallery server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}

func runServe(configPath string) error {
	appCfg, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := appCfg.Config

	config.InitLogger(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Info().
		Str("version", buildinfo.Version).
		Str("configPath", appCfg.ConfigPath()).
		Str("galleryRoot", cfg.GalleryRoot).
		Msg("Starting lumen")

	db, err := database.New(appCfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := loadRegistry(ctx, db)

	idx, err := index.NewService(db, registry, identity.NewCanonicalizer(), index.Options{
		Root:               cfg.GalleryRoot,
		IgnoreDotfiles:     cfg.IgnoreDotfiles,
		FilesToIgnore:      cfg.FilesToIgnore,
		ExtensionsToIgnore: cfg.ExtensionsToIgnore,
		FreshnessWindow:    time.Duration(cfg.SyncFreshnessWindowSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}

	boxes := make(map[domain.ThumbnailSize]domain.Box, len(cfg.ThumbnailSizes))
	for name, box := range cfg.ThumbnailSizes {
		boxes[domain.ThumbnailSize(name)] = box
	}
	thumbs, err := thumbnail.NewService(db, registry, thumbnail.Options{
		Boxes:            boxes,
		ConcurrencyLimit: int64(cfg.ThumbnailConcurrencyLimit),
		BatchSize:        cfg.ThumbnailBatchSize,
	})
	if err != nil {
		return fmt.Errorf("init thumbnails: %w", err)
	}
	defer thumbs.Close()

	engine := layout.NewEngine(db, idx, registry, thumbs, layout.Options{
		PageSize:        cfg.GalleryPageSize,
		ArchivePageSize: cfg.ArchivePageSize,
		CoverNames:      cfg.CoverNames,
	})

	watcher, err := invalidator.NewService(idx, invalidator.Options{
		Root:            cfg.GalleryRoot,
		Debounce:        time.Duration(cfg.InvalidatorDebounceSeconds) * time.Second,
		RestartSchedule: cfg.WatcherRestartSchedule,
	})
	if err != nil {
		return fmt.Errorf("init invalidator: %w", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	go sweeper.New(db, sweeper.Options{}).Start(ctx)

	if cfg.MetricsEnabled {
		manager := metrics.NewManager(db, metrics.Sources{
			Layout:  engine,
			Index:   idx,
			Thumbs:  thumbs,
			Watcher: watcher,
		})
		metricsServer := metrics.NewServer(manager, cfg.MetricsHost, cfg.MetricsPort)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	srv := api.NewServer(cfg, db, idx, engine, thumbs, registry)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}

// loadRegistry seeds the filetype table on a fresh database and builds the
// registry. Seeding and loading failures are non-fatal: the server starts
// with an empty registry and every file resolves to the fallback entry.
func loadRegistry(ctx context.Context, db *database.DB) *filetypes.Registry {
	store := filetypes.NewStore(db)

	if entries, err := store.All(ctx); err == nil && len(entries) == 0 {
		if n, err := store.Seed(ctx); err != nil {
			log.Error().Err(err).Msg("failed to seed filetype registry")
		} else {
			log.Info().Int("count", n).Msg("Seeded filetype registry")
		}
	}

	return filetypes.NewRegistry(ctx, store)
}
