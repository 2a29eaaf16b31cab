// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"context"

	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// StepContext carries everything one step invocation needs: identity,
// the step's own definition, routing context (current loop iteration),
// and the run's flat history for legacy prompt assembly.
type StepContext struct {
	Context context.Context

	RunID   swarmtypes.RunID
	FlowKey swarmtypes.FlowKey
	Step    swarmtypes.StepDefinition
	Agent   swarmtypes.AgentKey

	LoopIteration int
	History       []swarmtypes.StepHistoryEntry

	ContextPack *swarmtypes.ContextPack

	// State is the run's loop-state/history scratchpad; the Route phase
	// mutates State.LoopState in place on LOOP decisions.
	State *swarmtypes.RunState
	// TestSummary is the most recent parsed test-runner output available
	// for this step, if any; used by microloop stall detection.
	TestSummary *swarmtypes.TestSummary
}

// Engine is the capability record every step backend satisfies, enabling
// dynamic dispatch to engines: BackendID registries look engines up by
// value rather than relying on inheritance.
type Engine interface {
	ID() swarmtypes.BackendID

	RunWorker(sc *StepContext) (swarmtypes.StepResult, []swarmtypes.RunEvent, *WorkSummary, error)
	FinalizeStep(sc *StepContext, result swarmtypes.StepResult, summary *WorkSummary) (swarmtypes.FinalizationResult, error)
	RouteStep(sc *StepContext, envelope *swarmtypes.HandoffEnvelope) (*swarmtypes.RoutingSignal, error)

	// RunStep is the convenience call combining the three phases above;
	// hydrate happens implicitly as part of RunWorker.
	RunStep(sc *StepContext) (swarmtypes.StepResult, []swarmtypes.RunEvent, error)
}

// WorkSummary is the internal hand-off between the work and finalize
// phases: the raw completion plus whatever draft envelope the agent may
// have inlined during work (inline finalization)).
type WorkSummary struct {
	Response       llmio.CompletionResponse
	DraftEnvelope  *swarmtypes.HandoffEnvelope
	PromptHash     string
	ContextTrunc   *swarmtypes.TruncationInfo
	UsedContextPack bool
}
