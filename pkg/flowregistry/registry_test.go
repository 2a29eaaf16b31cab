// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package flowregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

func writeConfigRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "flows.yaml"), []byte(`
flows:
  - key: signal
    index: 1
    title: Signal
    short_title: Signal
    description: Intake
    is_sdlc: true
  - key: build
    index: 2
    title: Build
    short_title: Build
    description: Implementation
    is_sdlc: true
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "signal.yaml"), []byte(`
steps:
  - id: intake
    agents: [triage]
    role: triage
cross_cutting: [scribe]
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.yaml"), []byte(`
steps:
  - id: author_tests
    agents: [tester]
    role: author
    routing:
      kind: linear
      next: critique_tests
  - id: critique_tests
    agents: [critic]
    role: critique
    routing:
      kind: microloop
      loop_target: author_tests
      loop_condition_field: status
      loop_success_values: [VERIFIED]
      max_iterations: 3
      next: implement
  - id: implement
    agents: [coder]
    role: implement
    routing:
      kind: terminal
cross_cutting: []
`), 0o644))

	return dir
}

func TestLoad_OrdersFlowsAndBuildsAgentIndex(t *testing.T) {
	reg, err := Load(writeConfigRoot(t))
	require.NoError(t, err)

	order := reg.FlowOrder()
	require.Len(t, order, 2)
	assert.Equal(t, swarmtypes.FlowKey("signal"), order[0].Key)
	assert.Equal(t, swarmtypes.FlowKey("build"), order[1].Key)

	assert.Equal(t, []swarmtypes.FlowKey{"signal", "build"}, reg.SDLCFlowKeys())
	assert.Equal(t, "2-build", reg.SpecID("build"))
	assert.Equal(t, UnknownFlowIndex, reg.GetIndex("nonexistent"))

	positions := reg.GetAgentPositions("scribe")
	require.Len(t, positions, 1)
	assert.Equal(t, swarmtypes.FlowKey("signal"), positions[0].FlowKey)
	assert.Equal(t, swarmtypes.StepID(""), positions[0].StepID)
}

func TestLoad_StepIndicesAreContiguous(t *testing.T) {
	reg, err := Load(writeConfigRoot(t))
	require.NoError(t, err)

	assert.Equal(t, 1, reg.GetStepIndex("build", "author_tests"))
	assert.Equal(t, 2, reg.GetStepIndex("build", "critique_tests"))
	assert.Equal(t, 0, reg.GetStepIndex("build", "missing_step"))
}

func TestLoad_MissingPerFlowYAMLYieldsEmptySteps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flows.yaml"), []byte(`
flows:
  - key: orphan
    index: 1
    title: Orphan
    short_title: Orphan
    description: no steps file
    is_sdlc: false
`), 0o644))

	reg, err := Load(dir)
	require.NoError(t, err)

	flow, ok := reg.GetFlow("orphan")
	require.True(t, ok)
	assert.Empty(t, flow.Steps)
	assert.Empty(t, flow.CrossCutting)
}

func TestLoad_DuplicateStepIDIsRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flows.yaml"), []byte(`
flows:
  - key: bad
    index: 1
    title: Bad
    short_title: Bad
    description: dup steps
    is_sdlc: false
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
steps:
  - id: a
    agents: [x]
    role: r
  - id: a
    agents: [y]
    role: r
`), 0o644))

	_, err := Load(dir)
	require.ErrorIs(t, err, ErrInvalidFlow)
}
