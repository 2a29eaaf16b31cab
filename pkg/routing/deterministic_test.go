// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

func TestFromRoutingConfig_Linear(t *testing.T) {
	r := &swarmtypes.StepRouting{Kind: swarmtypes.RoutingLinear, Next: "build_plan"}
	sig, err := FromRoutingConfig(r, &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusVerified})
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.DecisionAdvance, sig.Decision)
	assert.Equal(t, swarmtypes.StepID("build_plan"), sig.NextStepID)
}

func TestFromRoutingConfig_Terminal(t *testing.T) {
	r := &swarmtypes.StepRouting{Kind: swarmtypes.RoutingTerminal}
	sig, err := FromRoutingConfig(r, &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusVerified})
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.DecisionTerminate, sig.Decision)
}

func TestFromRoutingConfig_BranchMatch(t *testing.T) {
	r := &swarmtypes.StepRouting{Kind: swarmtypes.RoutingBranch, Branches: map[string]swarmtypes.StepID{
		"VERIFIED": "next_ok",
		"default":  "human_review",
	}}
	sig, err := FromRoutingConfig(r, &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusVerified})
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.StepID("next_ok"), sig.NextStepID)
	assert.False(t, sig.NeedsHuman)
}

func TestFromRoutingConfig_BranchDefault(t *testing.T) {
	r := &swarmtypes.StepRouting{Kind: swarmtypes.RoutingBranch, Branches: map[string]swarmtypes.StepID{
		"VERIFIED": "next_ok",
		"default":  "human_review",
	}}
	sig, err := FromRoutingConfig(r, &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusBlocked})
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.StepID("human_review"), sig.NextStepID)
}

func TestFromRoutingConfig_BranchNoMatchNoDefault(t *testing.T) {
	r := &swarmtypes.StepRouting{Kind: swarmtypes.RoutingBranch, Branches: map[string]swarmtypes.StepID{
		"VERIFIED": "next_ok",
	}}
	sig, err := FromRoutingConfig(r, &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusBlocked})
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.DecisionTerminate, sig.Decision)
	assert.True(t, sig.NeedsHuman)
}

func TestFromMicroloop_SuccessAdvances(t *testing.T) {
	r := &swarmtypes.StepRouting{
		Kind:              swarmtypes.RoutingMicroloop,
		Next:              "implement",
		LoopTarget:        "fix_tests",
		LoopSuccessValues: []string{"VERIFIED"},
		MaxIterations:     3,
	}
	sig := FromMicroloop(r, &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusVerified}, 0)
	assert.Equal(t, swarmtypes.DecisionAdvance, sig.Decision)
	assert.Equal(t, swarmtypes.StepID("implement"), sig.NextStepID)
	assert.False(t, sig.NeedsHuman)
}

func TestFromMicroloop_LoopsUntilMaxIterations(t *testing.T) {
	r := &swarmtypes.StepRouting{
		Kind:              swarmtypes.RoutingMicroloop,
		Next:              "implement",
		LoopTarget:        "fix_tests",
		LoopSuccessValues: []string{"VERIFIED"},
		MaxIterations:     2,
	}
	env := &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusUnverified}

	sig := FromMicroloop(r, env, 0)
	assert.Equal(t, swarmtypes.DecisionLoop, sig.Decision)

	sig = FromMicroloop(r, env, 1)
	assert.Equal(t, swarmtypes.DecisionLoop, sig.Decision)

	// iteration == max_iterations: the cap advances with needs_human
	// rather than dead-ending the run.
	sig = FromMicroloop(r, env, 2)
	assert.Equal(t, swarmtypes.DecisionAdvance, sig.Decision)
	assert.Equal(t, swarmtypes.StepID("implement"), sig.NextStepID)
	assert.True(t, sig.NeedsHuman)
	assert.InDelta(t, 0.7, sig.Confidence, 0.001)
}

func TestFromMicroloop_CanFurtherIterationHelpFalse(t *testing.T) {
	r := &swarmtypes.StepRouting{
		Kind:              swarmtypes.RoutingMicroloop,
		Next:              "implement",
		LoopTarget:        "fix_tests",
		LoopSuccessValues: []string{"VERIFIED"},
		MaxIterations:     10,
	}
	no := false
	env := &swarmtypes.HandoffEnvelope{Status: swarmtypes.StatusPartial, CanFurtherIterationHelp: &no}
	sig := FromMicroloop(r, env, 0)
	assert.Equal(t, swarmtypes.DecisionAdvance, sig.Decision)
	assert.Equal(t, swarmtypes.StepID("implement"), sig.NextStepID)
	assert.True(t, sig.NeedsHuman)
}

func TestParseDecision_Aliases(t *testing.T) {
	assert.Equal(t, swarmtypes.DecisionAdvance, ParseDecision("Continue"))
	assert.Equal(t, swarmtypes.DecisionLoop, ParseDecision("retry"))
	assert.Equal(t, swarmtypes.DecisionTerminate, ParseDecision("BLOCKED"))
	assert.Equal(t, swarmtypes.DecisionBranch, ParseDecision("switch"))
	assert.Equal(t, swarmtypes.DecisionAdvance, ParseDecision("unknown_token"))
}
