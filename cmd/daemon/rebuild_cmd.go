// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var errRebuildFailed = errors.New("rebuild failed")

func newRebuildCmd(opts *rootOptions) *cobra.Command {
	var (
		autoResolve bool
		snapshot    string
		showPending bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Run one rebuild and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sched, err := a.newScheduler(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("auto-resolve") {
				autoResolve = a.cfg.Scheduler.AutoResolve
			}
			ok := sched.FillRecordLists(ctx, autoResolve)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if showPending {
				if err := enc.Encode(sched.AllPending()); err != nil {
					return err
				}
			} else if err := enc.Encode(sched.LastReport()); err != nil {
				return err
			}
			if !ok {
				return errRebuildFailed
			}
			if snapshot != "" {
				return sched.WriteSnapshot(snapshot)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoResolve, "auto-resolve", true, "drop conflict losers (defaults to scheduler.autoResolve)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "write a JSON snapshot to this path")
	cmd.Flags().BoolVar(&showPending, "pending", false, "print the pending list instead of the report")
	return cmd
}
