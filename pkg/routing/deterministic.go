// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import (
	"fmt"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// CandidateSource tags where a RoutingCandidate in the audit trail came
// from, so a later reviewer can tell a config-derived candidate from one
// a router-LLM proposed.
const (
	SourceConfig CandidateSource = "routing_config"
	SourceLLM    CandidateSource = "router_llm"
	SourceStall  CandidateSource = "stall_detector"
)

// CandidateSource is the origin tag attached to a RoutingCandidate.
type CandidateSource string

// FromRoutingConfig computes the routing signal implied directly by a
// step's declared StepRouting, without consulting an LLM ( It
// covers linear, terminal, and branch routing; microloop routing needs
// the envelope status and loop-state counter, so it is handled by
// FromMicroloop instead. Fork/join steps are dispatched by the
// orchestrator's ParallelExecutor and never reach the routing driver.
func FromRoutingConfig(r *swarmtypes.StepRouting, envelope *swarmtypes.HandoffEnvelope) (*swarmtypes.RoutingSignal, error) {
	switch r.Kind {
	case swarmtypes.RoutingLinear:
		return signalFromCandidates(SourceConfig, []swarmtypes.RoutingCandidate{{
			Action:     string(swarmtypes.DecisionAdvance),
			TargetNode: r.Next,
			Reason:     "linear routing: single configured next step",
			Priority:   0,
			Source:     string(SourceConfig),
			IsDefault:  true,
		}}), nil

	case swarmtypes.RoutingTerminal:
		return signalFromCandidates(SourceConfig, []swarmtypes.RoutingCandidate{{
			Action:    string(swarmtypes.DecisionTerminate),
			Reason:    "terminal routing: flow ends at this step",
			Priority:  0,
			Source:    string(SourceConfig),
			IsDefault: true,
		}}), nil

	case swarmtypes.RoutingBranch:
		return fromBranch(r, envelope)

	case swarmtypes.RoutingMicroloop:
		return nil, fmt.Errorf("routing: microloop routing requires FromMicroloop, not FromRoutingConfig")

	default:
		return nil, fmt.Errorf("routing: unsupported routing kind %q for deterministic driver", r.Kind)
	}
}

// fromBranch resolves a branch step by looking up envelope.Status (and,
// failing that, the routing_signal.Route an agent may have proposed
// in-band) against the configured branch map. An unmatched key falls
// through to a "default" branch entry if present, else terminates with
// needs_human so a human can add the missing branch.
func fromBranch(r *swarmtypes.StepRouting, envelope *swarmtypes.HandoffEnvelope) (*swarmtypes.RoutingSignal, error) {
	key := string(envelope.Status)
	if envelope.RoutingSignal != nil && envelope.RoutingSignal.Route != "" {
		key = envelope.RoutingSignal.Route
	}

	var candidates []swarmtypes.RoutingCandidate
	for k, target := range r.Branches {
		candidates = append(candidates, swarmtypes.RoutingCandidate{
			Action:     string(swarmtypes.DecisionBranch),
			TargetNode: target,
			Reason:     fmt.Sprintf("branch key %q configured", k),
			Priority:   1,
			Source:     string(SourceConfig),
			IsDefault:  k == "default",
		})
	}

	if target, ok := r.Branches[key]; ok {
		return &swarmtypes.RoutingSignal{
			Decision:          swarmtypes.DecisionBranch,
			NextStepID:        target,
			Route:             key,
			Reason:            fmt.Sprintf("matched branch key %q", key),
			Confidence:        1.0,
			RoutingSource:     string(SourceConfig),
			ChosenCandidateID: key,
			RoutingCandidates: candidates,
		}, nil
	}
	if target, ok := r.Branches["default"]; ok {
		return &swarmtypes.RoutingSignal{
			Decision:          swarmtypes.DecisionBranch,
			NextStepID:        target,
			Route:             "default",
			Reason:            fmt.Sprintf("no branch for key %q; using default", key),
			Confidence:        0.5,
			RoutingSource:     string(SourceConfig),
			ChosenCandidateID: "default",
			RoutingCandidates: candidates,
		}, nil
	}

	return &swarmtypes.RoutingSignal{
		Decision:          swarmtypes.DecisionTerminate,
		Reason:            fmt.Sprintf("no branch matches key %q and no default configured", key),
		NeedsHuman:        true,
		RoutingSource:     string(SourceConfig),
		RoutingCandidates: candidates,
	}, nil
}

// FromMicroloop resolves a microloop step's routing signal given the
// envelope's status/CanFurtherIterationHelp and the current iteration
// count from RunState.LoopState (
// iteration is the count BEFORE this resolution (0 on first pass).
func FromMicroloop(r *swarmtypes.StepRouting, envelope *swarmtypes.HandoffEnvelope, iteration int) *swarmtypes.RoutingSignal {
	candidates := []swarmtypes.RoutingCandidate{
		{Action: string(swarmtypes.DecisionAdvance), Reason: "loop success condition met", Priority: 0, Source: string(SourceConfig)},
		{Action: string(swarmtypes.DecisionLoop), TargetNode: r.LoopTarget, Reason: "loop success condition not met", Priority: 1, Source: string(SourceConfig), IsDefault: true},
	}

	if r.IsLoopSuccess(string(envelope.Status)) {
		return &swarmtypes.RoutingSignal{
			Decision:          swarmtypes.DecisionAdvance,
			NextStepID:        r.Next,
			Reason:            fmt.Sprintf("status %q satisfies loop success condition", envelope.Status),
			Confidence:        1.0,
			RoutingSource:     string(SourceConfig),
			ChosenCandidateID: string(swarmtypes.DecisionAdvance),
			RoutingCandidates: candidates,
		}
	}

	// An agent can report that further looping would not help even on a
	// non-success status; absent that signal, looping continues. This
	// still advances rather than terminates: a human reviews the result
	// in place rather than the run dead-ending at this step.
	if envelope.CanFurtherIterationHelp != nil && !*envelope.CanFurtherIterationHelp {
		return &swarmtypes.RoutingSignal{
			Decision:          swarmtypes.DecisionAdvance,
			NextStepID:        r.Next,
			Reason:            "agent reported further iteration would not help",
			NeedsHuman:        true,
			RoutingSource:     string(SourceConfig),
			RoutingCandidates: candidates,
		}
	}

	if r.MaxIterations > 0 && iteration >= r.MaxIterations {
		return &swarmtypes.RoutingSignal{
			Decision:          swarmtypes.DecisionAdvance,
			NextStepID:        r.Next,
			Reason:            fmt.Sprintf("loop target %q reached max_iterations=%d", r.LoopTarget, r.MaxIterations),
			Confidence:        0.7,
			NeedsHuman:        true,
			RoutingSource:     string(SourceConfig),
			RoutingCandidates: candidates,
		}
	}

	return &swarmtypes.RoutingSignal{
		Decision:          swarmtypes.DecisionLoop,
		NextStepID:        r.LoopTarget,
		Reason:            fmt.Sprintf("status %q does not satisfy loop success condition", envelope.Status),
		Confidence:        1.0,
		RoutingSource:     string(SourceConfig),
		ChosenCandidateID: string(swarmtypes.DecisionLoop),
		RoutingCandidates: candidates,
	}
}

func signalFromCandidates(source CandidateSource, candidates []swarmtypes.RoutingCandidate) *swarmtypes.RoutingSignal {
	chosen := candidates[0]
	return &swarmtypes.RoutingSignal{
		Decision:          swarmtypes.RoutingDecision(chosen.Action),
		NextStepID:        chosen.TargetNode,
		Reason:            chosen.Reason,
		Confidence:        1.0,
		RoutingSource:     string(source),
		ChosenCandidateID: chosen.Action,
		RoutingCandidates: candidates,
	}
}
