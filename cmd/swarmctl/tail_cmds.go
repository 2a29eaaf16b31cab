// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/swarm/internal/app"
	"github.com/teradata-labs/swarm/pkg/eventlog"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

var tailCmd = &cobra.Command{
	Use:   "tail <run-id>",
	Short: "Print a run's events.jsonl",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		runID := swarmtypes.RunID(args[0])
		events, _, err := eventlog.ReadAll(a.Layout.EventsPath(runID))
		if err != nil {
			return fmt.Errorf("tail: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	},
}

var rebuildAll bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [run-id]",
	Short: "Rebuild the projection for one run, or every run if omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 && !rebuildAll {
			n, err := a.Projection.RebuildRun(swarmtypes.RunID(args[0]))
			fmt.Printf("ingested %d event(s)\n", n)
			return err
		}
		n, err := a.Projection.RebuildAll()
		fmt.Printf("rebuilt %d run(s)\n", n)
		return err
	},
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildAll, "all", false, "rebuild every run even if one is named")
}
