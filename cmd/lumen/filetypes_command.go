// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/autobrr/lumen/internal/filetypes"
)

func RunFiletypesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filetypes",
		Short: "Filetype registry operations",
	}

	cmd.AddCommand(runFiletypesSeedCommand())
	cmd.AddCommand(runFiletypesListCommand())
	return cmd
}

func runFiletypesSeedCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the built-in filetype set into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openDatabase(configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := filetypes.NewStore(db).Seed(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Seeded %d filetypes.\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}

func runFiletypesListCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered filetypes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openDatabase(configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := filetypes.NewStore(db).All(cmd.Context())
			if err != nil {
				return err
			}

			for _, ft := range entries {
				cmd.Printf("%-8s %-24s %s\n", ft.Ext, ft.Mimetype, ft.Kind())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}
