// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/metrics"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/spf13/cobra"
)

var nowFunc = time.Now

func newImportXMLTVCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-xmltv FILE",
		Short: "Import an XMLTV guide into the listings database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.store.ImportXMLTVFile(ctx, args[0], a.importOptions())
			metrics.RecordListingsImport(err == nil, stats.Programs)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			a.logger.Info().
				Str(log.FieldEvent, "listings.imported").
				Str(log.FieldPath, args[0]).
				Int("programs", stats.Programs).
				Msg("xmltv imported")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d programs (%d skipped, %d unknown channels, %d pruned)\n",
				stats.Programs, stats.Skipped, stats.UnknownChannels, stats.Pruned)
			return err
		},
	}
}

func newImportTopologyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-topology FILE",
		Short: "Replace cards and inputs, and upsert channels, from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := topology.ParseFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.ImportTopology(ctx, f); err != nil {
				return fmt.Errorf("import topology: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d cards, %d inputs, %d channels\n",
				len(f.Cards), len(f.Inputs), len(f.Channels))
			return err
		},
	}
}

func newImportRulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-rules FILE",
		Short: "Store the recording rules of a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := dvr.NewManager(a.store).ImportFile(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", n)
			return err
		},
	}
}

func newExportRulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-rules FILE",
		Short: "Write all recording rules to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return dvr.NewManager(a.store).ExportFile(ctx, args[0])
		},
	}
}
