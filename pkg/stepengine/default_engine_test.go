// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/routing"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

func TestDefaultEngine_RunStep_InlineEnvelope(t *testing.T) {
	dir := t.TempDir()
	layout := runstore.NewLayout(dir)
	strict := false
	handoffIO := handoff.New(layout, nil, &strict)

	stub := &llmio.StubBackend{Replies: []llmio.CompletionResponse{
		{Text: `{"status":"VERIFIED","summary":"plan complete","artifacts":{"plan":"PLAN.md"}}`, Provider: "stub", Model: "stub-1"},
	}}

	driver := routing.NewDriver(nil)
	engine := NewDefaultEngine("stub", stub, layout, handoffIO, driver, "stub")

	step := swarmtypes.StepDefinition{
		ID:      "plan",
		Routing: &swarmtypes.StepRouting{Kind: swarmtypes.RoutingLinear, Next: "build"},
	}
	runID := swarmtypes.NewRunID()
	state := swarmtypes.NewRunState(runID, "build")

	sc := &StepContext{
		Context: context.Background(),
		RunID:   runID,
		FlowKey: "build",
		Step:    step,
		Agent:   "planner",
		State:   state,
	}

	result, _, err := engine.RunStep(sc)
	require.NoError(t, err)
	assert.Equal(t, string(swarmtypes.StatusVerified), result.Status)

	env, err := handoffIO.Read(runID, "build", "plan")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, swarmtypes.StatusVerified, env.Status)
	assert.Equal(t, swarmtypes.SourceLifecycle, env.EnvelopeSource)
	require.NotNil(t, env.RoutingSignal)
	assert.Equal(t, swarmtypes.DecisionAdvance, env.RoutingSignal.Decision)
	assert.Equal(t, swarmtypes.StepID("build"), env.RoutingSignal.NextStepID)
}

func TestDefaultEngine_RunStep_FallsBackToMinimalEnvelope(t *testing.T) {
	dir := t.TempDir()
	layout := runstore.NewLayout(dir)
	strict := false
	handoffIO := handoff.New(layout, nil, &strict)

	// Neither the work reply nor the finalization reply contain a JSON
	// envelope, forcing the orchestrator_fallback minimal envelope path.
	stub := &llmio.StubBackend{Replies: []llmio.CompletionResponse{
		{Text: "work is done, no structured output", Provider: "stub"},
	}}

	driver := routing.NewDriver(nil)
	engine := NewDefaultEngine("stub", stub, layout, handoffIO, driver, "stub")

	step := swarmtypes.StepDefinition{ID: "plan", Routing: &swarmtypes.StepRouting{Kind: swarmtypes.RoutingTerminal}}
	runID := swarmtypes.NewRunID()
	state := swarmtypes.NewRunState(runID, "build")

	sc := &StepContext{
		Context: context.Background(),
		RunID:   runID,
		FlowKey: "build",
		Step:    step,
		Agent:   "planner",
		State:   state,
	}

	_, _, err := engine.RunStep(sc)
	require.NoError(t, err)

	env, err := handoffIO.Read(runID, "build", "plan")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, swarmtypes.SourceOrchestratorFallback, env.EnvelopeSource)
}
