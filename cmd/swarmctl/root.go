// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command swarmctl is the operator CLI for the stepwise flow
// orchestrator: start/tick/pause/stop/resume an autopilot run, tail a
// run's events, or rebuild the projection. It mirrors loom's cmd/looms
// in structure (a cobra root binding persistent flags into viper) but
// carries none of looms' server/chat business logic.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/internal/app"
	"github.com/teradata-labs/swarm/internal/log"
)

var (
	cfgFile string
	cfgRoot string
	runsRoot string
)

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "Operator CLI for the swarm flow orchestrator",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $SWARM_DATA_DIR/swarm.yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgRoot, "config-root", "", "flow/step YAML directory (overrides config file)")
	rootCmd.PersistentFlags().StringVar(&runsRoot, "runs-root", "", "run directory root (overrides config file)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(rebuildCmd)
}

func loadConfig() (app.Config, error) {
	v := viper.New()
	cfg, err := app.LoadConfig(v, cfgFile)
	if err != nil {
		return app.Config{}, err
	}
	if cfgRoot != "" {
		cfg.ConfigRoot = cfgRoot
	}
	if runsRoot != "" {
		cfg.RunsRoot = runsRoot
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// app.New (and its cfg.logger()) hasn't necessarily run by the time a
		// flag-parsing or config-loading error surfaces, so fall back to
		// internal/log's package-level default rather than a nil App.Logger.
		log.Error("swarmctl: command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
