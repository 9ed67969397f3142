// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/ManuGH/recsched/internal/persistence/sqlite"
	"github.com/spf13/cobra"
)

func newVerifyDBCmd(opts *rootOptions) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "verify-db",
		Short: "Check the listings database integrity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			checkMode, err := sqlite.ParseCheckMode(mode)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			issues, err := a.store.VerifyIntegrity(cmd.Context(), checkMode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(issues) > 0 {
				for _, issue := range issues {
					_, _ = fmt.Fprintf(out, "  - %s\n", issue)
				}
				return fmt.Errorf("%s: %d integrity issues", a.cfg.Database.Path, len(issues))
			}
			_, err = fmt.Fprintf(out, "%s: ok (%s)\n", a.cfg.Database.Path, checkMode)
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "quick", "verification mode: quick or full")
	return cmd
}
