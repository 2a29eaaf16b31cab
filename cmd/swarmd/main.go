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

// Command swarmd is the projection daemon: it keeps the SQLite
// projection caught up with every run's events.jsonl (on a cron sweep
// and, optionally, an fsnotify wake-up) and exposes /healthz, /metrics,
// and a live /events stream over HTTP. It drives no flow logic itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/internal/app"
	"github.com/teradata-labs/swarm/internal/daemon"
	"github.com/teradata-labs/swarm/internal/log"
)

var (
	cfgFile  string
	cfgRoot  string
	runsRoot string
	httpAddr string
)

var rootCmd = &cobra.Command{
	Use:   "swarmd",
	Short: "Projection daemon for the swarm flow orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		cfg, err := app.LoadConfig(v, cfgFile)
		if err != nil {
			return err
		}
		if cfgRoot != "" {
			cfg.ConfigRoot = cfgRoot
		}
		if runsRoot != "" {
			cfg.RunsRoot = runsRoot
		}
		if httpAddr != "" {
			cfg.HTTPAddr = httpAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("swarmd: build app: %w", err)
		}
		defer a.Close()

		d := daemon.New(a, cfg)
		return d.Run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: $SWARM_DATA_DIR/swarm.yaml)")
	rootCmd.Flags().StringVar(&cfgRoot, "config-root", "", "flow/step YAML directory (overrides config file)")
	rootCmd.Flags().StringVar(&runsRoot, "runs-root", "", "run directory root (overrides config file)")
	rootCmd.Flags().StringVar(&httpAddr, "http-addr", "", "address for /healthz, /metrics, /events (overrides config file)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error("swarmd: command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
