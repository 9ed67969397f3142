// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command recsched runs the recording scheduler daemon and its maintenance
// commands.
package main

import (
	"os"

	"github.com/ManuGH/recsched/internal/version"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "recsched",
		Short:         "Multi-tuner recording scheduler",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCmd(opts),
		newRebuildCmd(opts),
		newImportXMLTVCmd(opts),
		newImportTopologyCmd(opts),
		newImportRulesCmd(opts),
		newExportRulesCmd(opts),
		newVerifyDBCmd(opts),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
