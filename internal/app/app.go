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

// Package app wires the runtime's packages together into one composition
// root shared by cmd/swarmctl and cmd/swarmd, the way loom's cmd/looms
// wires its own server out of config.go + root.go.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/internal/log"
	_ "github.com/teradata-labs/swarm/internal/sqlitedriver"
	"github.com/teradata-labs/swarm/pkg/autopilot"
	"github.com/teradata-labs/swarm/pkg/flowregistry"
	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/observability"
	"github.com/teradata-labs/swarm/pkg/policy"
	"github.com/teradata-labs/swarm/pkg/projection"
	"github.com/teradata-labs/swarm/pkg/routing"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/stepengine"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
	"github.com/teradata-labs/swarm/pkg/tailer"
)

// App is the fully wired runtime: everything cmd/swarmctl and cmd/swarmd
// need to start, drive and inspect autopilot runs.
type App struct {
	Config     Config
	Logger     *zap.Logger
	Tracer     observability.Tracer
	Registry   *flowregistry.Registry
	Layout     *runstore.Layout
	Store      *runstore.Store
	HandoffIO  *handoff.IO
	Projection *projection.Resilient
	Autopilot  *autopilot.Controller

	closers []func() error
}

// New builds an App from cfg. It loads the flow registry, opens the
// projection database (wrapped for crash-resilience), and constructs the
// autopilot controller with a policy-gated evolution processor.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.logger()
	log.SetLogger(logger)

	var tracer observability.Tracer = observability.NewNoOpTracer()
	if cfg.OTLPEndpoint != "" || cfg.EnableTracing {
		t, err := observability.NewOTelTracer(ctx, observability.OTelConfig{
			ServiceName:  "swarm",
			OTLPEndpoint: cfg.OTLPEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("app: build tracer: %w", err)
		}
		tracer = t
	}

	registry, err := flowregistry.Load(cfg.ConfigRoot)
	if err != nil {
		return nil, fmt.Errorf("app: load flow registry: %w", err)
	}

	if err := os.MkdirAll(cfg.RunsRoot, 0o750); err != nil {
		return nil, fmt.Errorf("app: ensure runs root: %w", err)
	}
	layout := runstore.NewLayout(cfg.RunsRoot)
	store := runstore.NewStore(layout, logger)

	strict := cfg.StrictEnvelopeValidation
	handoffIO := handoff.New(layout, logger, &strict)

	dbPath := cfg.ProjectionDBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.RunsRoot, "projection.db")
	}
	guardMode := projection.WriteGuardOpen
	if cfg.ProjectionStrict {
		guardMode = projection.WriteGuardStrict
	} else if cfg.ProjectionOnly {
		guardMode = projection.WriteGuardSilent
	}

	resilient := projection.NewResilient(
		projection.ResilientConfig{
			DBPath:      dbPath,
			AutoRebuild: true,
			GuardMode:   guardMode,
		},
		func(db *projection.DB) projection.Rebuilder {
			return tailer.New(db, layout, logger)
		},
		tracer,
		logger,
	)
	if health := resilient.Initialize(); !health.Healthy {
		logger.Warn("projection unhealthy at startup", zap.String("error", health.LastError))
	}

	backend := buildBackend(cfg)
	resolver := routing.NewResolver(backend)
	driver := routing.NewDriver(resolver)
	engine := stepengine.NewDefaultEngine(swarmtypes.BackendID(cfg.Backend), backend, layout, handoffIO, driver, cfg.Backend)
	selector := stepengine.NewSelector(engine)

	policyEngine := policy.NewEngine(cfg.ConfigRoot, layout, logger, policy.WithTracer(tracer))

	controller := autopilot.NewController(registry, store, layout, handoffIO, selector,
		autopilot.WithLogger(logger),
		autopilot.WithEvolutionProcessor(policyEngine),
		autopilot.WithDefaults(autopilot.Config{AutoApplyPolicy: cfg.EvolutionApplyPolicy}),
	)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Tracer:     tracer,
		Registry:   registry,
		Layout:     layout,
		Store:      store,
		HandoffIO:  handoffIO,
		Projection: resilient,
		Autopilot:  controller,
		closers:    []func() error{resilient.Close},
	}
	return a, nil
}

// Close releases every resource New opened, in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildBackend(cfg Config) llmio.LLMBackend {
	if cfg.AnthropicAPIKey == "" {
		return &llmio.StubBackend{}
	}
	return llmio.NewClaudeBackend(llmio.ClaudeConfig{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
	})
}
