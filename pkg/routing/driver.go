// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import (
	"context"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Driver is the orchestrator's fallback routing path: it owns loop-state
// mutation and stall tracking across the lifetime of a run, invoked when
// the envelope-first routing read finds no routing_signal already
// attached to a step's committed envelope ( route_step).
type Driver struct {
	resolver *Resolver
	stalls   map[string]*StallTracker
}

// NewDriver builds a Driver. resolver may be nil if no router-LLM fallback
// is configured; in that case unresolvable steps terminate with
// needs_human rather than panicking.
func NewDriver(resolver *Resolver) *Driver {
	return &Driver{resolver: resolver, stalls: make(map[string]*StallTracker)}
}

// Route computes the routing signal for a just-finalized step, mutating
// state.LoopState in place on LOOP decisions (the increment happens here,
// once, so repeated calls for the same step never double-count an
// iteration already recorded by the caller).
func (d *Driver) Route(ctx context.Context, step swarmtypes.StepDefinition, envelope *swarmtypes.HandoffEnvelope, state *swarmtypes.RunState, fc *swarmtypes.FileChanges, ts *swarmtypes.TestSummary) (*swarmtypes.RoutingSignal, error) {
	if envelope.RoutingSignal != nil {
		return envelope.RoutingSignal, nil
	}

	r := step.Routing
	if r == nil {
		return d.resolveViaLLM(ctx, step, envelope, nil)
	}

	switch r.Kind {
	case swarmtypes.RoutingLinear, swarmtypes.RoutingTerminal:
		return FromRoutingConfig(r, envelope)

	case swarmtypes.RoutingBranch:
		sig, err := FromRoutingConfig(r, envelope)
		if err != nil {
			return nil, err
		}
		if sig.NeedsHuman && d.resolver != nil {
			return d.resolveViaLLM(ctx, step, envelope, sig.RoutingCandidates)
		}
		return sig, nil

	case swarmtypes.RoutingMicroloop:
		key := swarmtypes.LoopKey(step.ID, r.LoopTarget)
		iteration := state.LoopState[key]
		sig := FromMicroloop(r, envelope, iteration)

		if sig.Decision == swarmtypes.DecisionLoop {
			if fc != nil || ts != nil {
				tracker := d.trackerFor(key)
				var sigs []string
				if ts != nil {
					sigs = ts.ErrorSignatures
				}
				filesChanged := fc != nil && (fc.TotalInsertions > 0 || fc.TotalDeletions > 0)
				_, stalled := tracker.Observe(filesChanged, sigs)
				if stalled {
					sig = ApplyStallOverride(sig)
				}
			}
			if sig.Decision == swarmtypes.DecisionLoop {
				state.LoopState[key] = iteration + 1
			}
		}
		return sig, nil

	default:
		return d.resolveViaLLM(ctx, step, envelope, nil)
	}
}

func (d *Driver) trackerFor(key string) *StallTracker {
	t, ok := d.stalls[key]
	if !ok {
		t = NewStallTracker()
		d.stalls[key] = t
	}
	return t
}

func (d *Driver) resolveViaLLM(ctx context.Context, step swarmtypes.StepDefinition, envelope *swarmtypes.HandoffEnvelope, candidates []swarmtypes.RoutingCandidate) (*swarmtypes.RoutingSignal, error) {
	if d.resolver == nil {
		return &swarmtypes.RoutingSignal{
			Decision:          swarmtypes.DecisionTerminate,
			Reason:            "no routing configuration and no router-LLM fallback available",
			NeedsHuman:        true,
			RoutingSource:     string(SourceConfig),
			RoutingCandidates: candidates,
		}, nil
	}
	sessionID := "router:" + string(step.ID)
	return d.resolver.Resolve(ctx, sessionID, step.ID, envelope, candidates)
}
