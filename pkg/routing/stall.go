// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import "github.com/teradata-labs/swarm/pkg/swarmtypes"

// StallThreshold is the default number of consecutive loop iterations with
// identical error signatures and no file changes before the Elephant
// Protocol promotes a loop decision to terminate.
const StallThreshold = 2

// StallTracker accumulates ProgressDelta history for one microloop target
// and decides whether the loop has stalled. Callers key one tracker per
// "step:target" loop-state entry.
type StallTracker struct {
	consecutiveStalls int
	lastSignatures    []string
}

// NewStallTracker returns an empty tracker.
func NewStallTracker() *StallTracker {
	return &StallTracker{}
}

// Observe records one iteration's evidence and returns the ProgressDelta
// against the previous iteration plus whether the run of consecutive
// iterations with no file changes and identical signatures has reached
// StallThreshold.
func (t *StallTracker) Observe(filesChanged bool, signatures []string) (swarmtypes.ProgressDelta, bool) {
	identical := !filesChanged && sameSignatures(t.lastSignatures, signatures) && len(signatures) > 0

	delta := swarmtypes.ProgressDelta{
		FilesChanged:        filesChanged,
		IdenticalSignatures: identical,
		PreviousSignatures:  t.lastSignatures,
		CurrentSignatures:   signatures,
	}

	switch {
	case filesChanged || len(signatures) == 0:
		t.consecutiveStalls = 0
	case identical && t.consecutiveStalls > 0:
		t.consecutiveStalls++
	default:
		t.consecutiveStalls = 1
	}
	t.lastSignatures = signatures

	return delta, t.consecutiveStalls >= StallThreshold
}

func sameSignatures(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}

// ApplyStallOverride converts a LOOP decision into a terminate-with-human
// decision once a StallTracker reports stalling, preserving the original
// candidate audit trail and appending the stall candidate.
func ApplyStallOverride(signal *swarmtypes.RoutingSignal) *swarmtypes.RoutingSignal {
	if signal.Decision != swarmtypes.DecisionLoop {
		return signal
	}
	stallCandidate := swarmtypes.RoutingCandidate{
		Action:    string(swarmtypes.DecisionTerminate),
		Reason:    "stall_detected: identical error signatures and no file changes across consecutive iterations",
		Priority:  -1,
		Source:    string(SourceStall),
		IsDefault: false,
	}
	out := *signal
	out.Decision = swarmtypes.DecisionTerminate
	out.Reason = "stall_detected"
	out.NeedsHuman = true
	out.RoutingSource = string(SourceStall)
	out.ChosenCandidateID = string(swarmtypes.DecisionTerminate)
	out.RoutingCandidates = append(append([]swarmtypes.RoutingCandidate{}, signal.RoutingCandidates...), stallCandidate)
	return &out
}
