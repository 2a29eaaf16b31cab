// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/swarm/internal/app"
	"github.com/teradata-labs/swarm/pkg/autopilot"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

var (
	startIssueRef string
	startFlows    string
	startPolicy   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new autopilot run",
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

		var flowKeys []swarmtypes.FlowKey
		if startFlows != "" {
			for _, k := range strings.Split(startFlows, ",") {
				flowKeys = append(flowKeys, swarmtypes.FlowKey(strings.TrimSpace(k)))
			}
		}

		policy := swarmtypes.EvolutionApplyPolicy(startPolicy)
		if policy == "" {
			policy = cfg.EvolutionApplyPolicy
		}

		runID, err := a.Autopilot.Start(startIssueRef, flowKeys, autopilot.Config{AutoApplyPolicy: policy})
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		fmt.Println(string(runID))
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick <run-id>",
	Short: "Advance a run by one flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			more, err := a.Autopilot.Tick(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("tick: %w", err)
			}
			fmt.Println("more_work:", more)
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Drive a run to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			result, err := a.Autopilot.RunToCompletion(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			return printJSON(result)
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <run-id>",
	Short: "Request a run pause at the next flow boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			if !a.Autopilot.Pause(id) {
				return fmt.Errorf("pause: run %s is not in a pausable state", id)
			}
			return nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a paused run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			if !a.Autopilot.Resume(id) {
				return fmt.Errorf("resume: run %s is not paused", id)
			}
			return nil
		})
	},
}

var stopReason string

var stopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Request a graceful stop, writing a stop report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			if !a.Autopilot.Stop(id, stopReason) {
				return fmt.Errorf("stop: run %s cannot be stopped from its current state", id)
			}
			return nil
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			if !a.Autopilot.Cancel(id) {
				return fmt.Errorf("cancel: run %s cannot be canceled from its current state", id)
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print an autopilot run's current result snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAutopilot(cmd, args[0], func(a *app.App, id swarmtypes.RunID) error {
			result := a.Autopilot.GetResult(id)
			if result == nil {
				return fmt.Errorf("status: unknown run %s", id)
			}
			return printJSON(result)
		})
	},
}

func init() {
	startCmd.Flags().StringVar(&startIssueRef, "issue", "", "issue/ticket reference the run addresses")
	startCmd.Flags().StringVar(&startFlows, "flows", "", "comma-separated flow keys (default: all SDLC flows)")
	startCmd.Flags().StringVar(&startPolicy, "evolution-policy", "", "SUGGEST_ONLY|AUTO_APPLY_SAFE|AUTO_APPLY_ALL (default: config)")
	stopCmd.Flags().StringVar(&stopReason, "reason", "operator requested stop", "reason recorded in stop_report.md")
}

func withAutopilot(cmd *cobra.Command, rawRunID string, fn func(a *app.App, id swarmtypes.RunID) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, swarmtypes.RunID(rawRunID))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
