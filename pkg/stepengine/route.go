// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"fmt"

	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/routing"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Router runs the Route phase in-process: it reads the committed
// envelope's routing_signal first (envelope-first routing), and
// only consults the routing.Driver fallback when none is present,
// write-through committing whatever signal it computes.
type Router struct {
	handoff *handoff.IO
	driver  *routing.Driver
}

// NewRouter builds a Router. driver may be nil for engines that always
// expect an inline routing signal (e.g. a router that never delegates to
// the orchestrator's fallback driver).
func NewRouter(handoffIO *handoff.IO, driver *routing.Driver) *Router {
	return &Router{handoff: handoffIO, driver: driver}
}

// Run resolves sc's routing signal and writes it through to the committed
// envelope exactly once (Invariant 5: write-through update, not a second
// commit path).
func (r *Router) Run(sc *StepContext, envelope *swarmtypes.HandoffEnvelope) (*swarmtypes.RoutingSignal, error) {
	if envelope.RoutingSignal != nil {
		return envelope.RoutingSignal, nil
	}
	if r.driver == nil {
		return nil, fmt.Errorf("stepengine: step %q has no routing signal and no fallback driver configured", sc.Step.ID)
	}

	signal, err := r.driver.Route(sc.Context, sc.Step, envelope, sc.State, &envelope.FileChanges, sc.TestSummary)
	if err != nil {
		return nil, fmt.Errorf("stepengine: route step %q: %w", sc.Step.ID, err)
	}

	if err := r.handoff.UpdateEnvelopeRouting(sc.RunID, sc.FlowKey, sc.Step.ID, signal); err != nil {
		return nil, fmt.Errorf("stepengine: write-through routing signal for step %q: %w", sc.Step.ID, err)
	}
	return signal, nil
}
