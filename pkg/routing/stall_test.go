// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

func TestStallTracker_DetectsRepeatedFailures(t *testing.T) {
	tracker := NewStallTracker()

	_, stalled := tracker.Observe(false, []string{"abc123"})
	assert.False(t, stalled)

	_, stalled = tracker.Observe(false, []string{"abc123"})
	assert.True(t, stalled)
}

func TestStallTracker_ResetsOnProgress(t *testing.T) {
	tracker := NewStallTracker()
	tracker.Observe(false, []string{"abc123"})
	_, stalled := tracker.Observe(true, []string{"abc123"})
	assert.False(t, stalled)

	_, stalled = tracker.Observe(false, []string{"abc123"})
	assert.False(t, stalled, "progress should reset the consecutive-stall counter")
}

func TestApplyStallOverride_OnlyAffectsLoopDecisions(t *testing.T) {
	advance := &swarmtypes.RoutingSignal{Decision: swarmtypes.DecisionAdvance}
	assert.Same(t, advance, ApplyStallOverride(advance))

	loop := &swarmtypes.RoutingSignal{Decision: swarmtypes.DecisionLoop, NextStepID: "fix_tests"}
	out := ApplyStallOverride(loop)
	assert.Equal(t, swarmtypes.DecisionTerminate, out.Decision)
	assert.True(t, out.NeedsHuman)
	assert.Equal(t, "stall_detected", out.Reason)
}
