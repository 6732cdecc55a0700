// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/autobrr/lumen/internal/buildinfo"
	"github.com/autobrr/lumen/internal/config"
	"github.com/autobrr/lumen/internal/database"
	"github.com/autobrr/lumen/internal/models"
	"github.com/autobrr/lumen/internal/sweeper"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBInfoCommand())
	cmd.AddCommand(runDBSweepCommand())
	return cmd
}

func openDatabase(configPath string) (*database.DB, string, error) {
	appCfg, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return nil, "", err
	}

	path := appCfg.DatabasePath()
	db, err := database.New(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

func runDBInfoCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print index database statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, path, err := openDatabase(configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()

			dirCount, err := models.NewDirectoryStore(db).Count(ctx)
			if err != nil {
				return err
			}
			fileCount, err := models.NewFileStore(db).Count(ctx)
			if err != nil {
				return err
			}
			thumbCount, err := models.NewThumbnailStore(db).Count(ctx)
			if err != nil {
				return err
			}

			cmd.Printf("Database: %s\n", path)
			cmd.Printf("Directories: %d\n", dirCount)
			cmd.Printf("Files: %d\n", fileCount)
			cmd.Printf("Thumbnail records: %d\n", thumbCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}

func runDBSweepCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reaping pass over soft-deleted rows and orphaned thumbnails",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openDatabase(configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sweeper.New(db, sweeper.Options{}).Sweep(cmd.Context()); err != nil {
				return err
			}

			cmd.Println("Sweep complete.")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}
