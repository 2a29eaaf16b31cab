// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

func TestDriver_Route_PrefersEnvelopeRoutingSignal(t *testing.T) {
	d := NewDriver(nil)
	step := swarmtypes.StepDefinition{ID: "plan", Routing: &swarmtypes.StepRouting{Kind: swarmtypes.RoutingLinear, Next: "build"}}
	existing := &swarmtypes.RoutingSignal{Decision: swarmtypes.DecisionTerminate, Reason: "already decided"}
	env := &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusVerified, RoutingSignal: existing}
	state := swarmtypes.NewRunState("run1", "build")

	sig, err := d.Route(context.Background(), step, env, state, &env.FileChanges, nil)
	require.NoError(t, err)
	assert.Same(t, existing, sig)
}

func TestDriver_Route_MicroloopMutatesLoopState(t *testing.T) {
	d := NewDriver(nil)
	step := swarmtypes.StepDefinition{ID: "verify", Routing: &swarmtypes.StepRouting{
		Kind:              swarmtypes.RoutingMicroloop,
		LoopTarget:        "fix_tests",
		LoopSuccessValues: []string{"VERIFIED"},
		MaxIterations:     5,
	}}
	env := &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusUnverified}
	state := swarmtypes.NewRunState("run1", "build")

	sig, err := d.Route(context.Background(), step, env, state, &env.FileChanges, nil)
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.DecisionLoop, sig.Decision)
	assert.Equal(t, 1, state.LoopState[swarmtypes.LoopKey("verify", "fix_tests")])
}

func TestDriver_Route_FallsBackToLLMWhenNoRouting(t *testing.T) {
	stub := &llmio.StubBackend{Replies: []llmio.CompletionResponse{
		{Text: `{"decision":"advance","next_step_id":"next_step","reason":"looks fine","confidence":0.9}`},
	}}
	d := NewDriver(NewResolver(stub))
	step := swarmtypes.StepDefinition{ID: "custom"}
	env := &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusVerified}
	state := swarmtypes.NewRunState("run1", "build")

	sig, err := d.Route(context.Background(), step, env, state, &env.FileChanges, nil)
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.DecisionAdvance, sig.Decision)
	assert.Equal(t, swarmtypes.StepID("next_step"), sig.NextStepID)
}
