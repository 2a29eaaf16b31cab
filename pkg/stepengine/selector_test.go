// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// fakeEngine is a minimal Engine stub identified only by its BackendID, for
// exercising Selector's dispatch logic without a real backend.
type fakeEngine struct {
	id swarmtypes.BackendID
}

func (f *fakeEngine) ID() swarmtypes.BackendID { return f.id }

func (f *fakeEngine) RunWorker(sc *StepContext) (swarmtypes.StepResult, []swarmtypes.RunEvent, *WorkSummary, error) {
	return swarmtypes.StepResult{}, nil, nil, nil
}

func (f *fakeEngine) FinalizeStep(sc *StepContext, result swarmtypes.StepResult, summary *WorkSummary) (swarmtypes.FinalizationResult, error) {
	return swarmtypes.FinalizationResult{}, nil
}

func (f *fakeEngine) RouteStep(sc *StepContext, envelope *swarmtypes.HandoffEnvelope) (*swarmtypes.RoutingSignal, error) {
	return nil, nil
}

func (f *fakeEngine) RunStep(sc *StepContext) (swarmtypes.StepResult, []swarmtypes.RunEvent, error) {
	return swarmtypes.StepResult{}, nil, nil
}

func TestSelector_FallsBackToDefaultWhenNoProfile(t *testing.T) {
	def := &fakeEngine{id: "default"}
	s := NewSelector(def)

	e, err := s.Select(swarmtypes.StepDefinition{ID: "step-1"})
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.BackendID("default"), e.ID())
}

func TestSelector_FallsBackToDefaultWhenModelUnregistered(t *testing.T) {
	def := &fakeEngine{id: "default"}
	s := NewSelector(def)

	step := swarmtypes.StepDefinition{
		ID:            "step-1",
		EngineProfile: &swarmtypes.EngineProfile{Model: "unregistered-model"},
	}
	e, err := s.Select(step)
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.BackendID("default"), e.ID())
}

func TestSelector_SelectsNamedEngineByExactModelMatch(t *testing.T) {
	def := &fakeEngine{id: "default"}
	named := &fakeEngine{id: "claude-opus"}
	s := NewSelector(def).Register("claude-opus", named)

	step := swarmtypes.StepDefinition{
		ID:            "step-1",
		EngineProfile: &swarmtypes.EngineProfile{Model: "claude-opus"},
	}
	e, err := s.Select(step)
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.BackendID("claude-opus"), e.ID())
}

func TestSelector_ErrorsWithNoDefaultEngine(t *testing.T) {
	s := NewSelector(nil)

	_, err := s.Select(swarmtypes.StepDefinition{ID: "step-1"})
	assert.Error(t, err)
}
