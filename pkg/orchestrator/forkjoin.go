// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teradata-labs/swarm/pkg/routing"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// defaultForkConfig is the dispatch configuration of every fork step; a
// step cannot declare a ForkConfig of its own. Every branch runs concurrently, a branch failure never cancels its
// siblings, and the worker pool is sized to the branch count.
var defaultForkConfig = swarmtypes.ForkConfig{
	ExecutionPolicy: swarmtypes.ExecConcurrent,
	FailurePolicy:   swarmtypes.FailureContinueAll,
}

// defaultJoinConfig is the merge configuration of every join_point step;
// a step cannot declare a JoinConfig of its own.
var defaultJoinConfig = swarmtypes.JoinConfig{
	Strategy:        swarmtypes.JoinAllComplete,
	MergeArtifacts:  true,
	MergeConcerns:   true,
	AggregateStatus: swarmtypes.AggregateWorst,
}

// runFork dispatches a fork step's targets through a bounded worker pool
// (the ParallelExecutor of /, awaits every branch, aggregates their
// envelopes at the matching join_point step, and returns the step id the
// flow should resume at next.
func (o *Orchestrator) runFork(ctx context.Context, runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, flow *swarmtypes.FlowDefinition, forkStep swarmtypes.StepDefinition, state *swarmtypes.RunState, driver *routing.Driver) (swarmtypes.StepID, error) {
	cfg := defaultForkConfig

	targets := make([]swarmtypes.StepDefinition, 0, len(forkStep.Routing.ForkTargets))
	for _, id := range forkStep.Routing.ForkTargets {
		s, ok := o.stepByID(flow, id)
		if !ok {
			return "", fmt.Errorf("orchestrator: fork step %q names unknown target %q", forkStep.ID, id)
		}
		targets = append(targets, s)
	}

	branches, err := o.runBranches(ctx, runID, flowKey, targets, state, driver, cfg)
	if err != nil {
		return "", err
	}

	joinStep, ok := o.nextJoinPoint(flow, forkStep)
	if !ok {
		return "", fmt.Errorf("orchestrator: fork step %q has no downstream join_point step", forkStep.ID)
	}

	return o.runJoin(runID, flowKey, joinStep, branches, defaultJoinConfig, state)
}

// runBranches executes every target step once, concurrently, against an
// isolated clone of RunState's loop-state so siblings never race on the
// same map. Each branch's resulting clone is stashed rather than merged in
// place; the merge back into the shared state happens sequentially after
// wg.Wait(), the only safe linearization point, so no two goroutines ever
// write state.LoopState at once.
func (o *Orchestrator) runBranches(ctx context.Context, runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, targets []swarmtypes.StepDefinition, state *swarmtypes.RunState, driver *routing.Driver, cfg swarmtypes.ForkConfig) ([]swarmtypes.BranchResult, error) {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = len(targets)
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]swarmtypes.BranchResult, len(targets))
	branchStates := make([]*swarmtypes.RunState, len(targets))
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	var failureOnce sync.Once
	failed := make(chan struct{})

	for i, target := range targets {
		i, target := i, target
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if cfg.FailurePolicy == swarmtypes.FailureFailFast {
				select {
				case <-failed:
					results[i] = swarmtypes.BranchResult{StepID: target.ID, Err: fmt.Errorf("orchestrator: branch %q skipped after a sibling failure", target.ID)}
					return
				default:
				}
			}

			branchState := cloneLoopState(state)
			envelope, _, err := o.executeStep(ctx, runID, flowKey, target, branchState, driver)
			branchStates[i] = branchState

			results[i] = swarmtypes.BranchResult{StepID: target.ID, Envelope: envelope, Err: err}
			if err != nil && cfg.FailurePolicy == swarmtypes.FailureFailFast {
				failureOnce.Do(func() { close(failed) })
			}
		}()
	}
	wg.Wait()

	for _, bs := range branchStates {
		if bs != nil {
			mergeLoopState(state, bs)
		}
	}

	if cfg.FailurePolicy == swarmtypes.FailureContinueAll {
		for _, r := range results {
			if r.Err != nil {
				return results, fmt.Errorf("orchestrator: fork branch %q failed: %w", r.StepID, r.Err)
			}
		}
	}
	return results, nil
}

// cloneLoopState gives a fork branch its own copy of the shared loop
// counters so concurrent branches never write the same map entry at once.
func cloneLoopState(state *swarmtypes.RunState) *swarmtypes.RunState {
	clone := &swarmtypes.RunState{
		RunID:     state.RunID,
		FlowKey:   state.FlowKey,
		Status:    state.Status,
		Timestamp: state.Timestamp,
		LoopState: make(map[string]int, len(state.LoopState)),
		History:   append([]swarmtypes.StepHistoryEntry(nil), state.History...),
	}
	for k, v := range state.LoopState {
		clone.LoopState[k] = v
	}
	return clone
}

// mergeLoopState folds a branch's loop-state mutations back into the
// shared run state, taking the max of any counter both sides touched.
// Callers must not invoke this concurrently for the same dst.
func mergeLoopState(dst, src *swarmtypes.RunState) {
	for k, v := range src.LoopState {
		if cur, ok := dst.LoopState[k]; !ok || v > cur {
			dst.LoopState[k] = v
		}
	}
}

// nextJoinPoint scans forward from forkStep for the first step whose
// routing is tagged join_point.
func (o *Orchestrator) nextJoinPoint(flow *swarmtypes.FlowDefinition, forkStep swarmtypes.StepDefinition) (swarmtypes.StepDefinition, bool) {
	for _, s := range flow.Steps {
		if s.Index <= forkStep.Index {
			continue
		}
		if s.Routing != nil && s.Routing.Kind == swarmtypes.RoutingJoin {
			return s, true
		}
	}
	return swarmtypes.StepDefinition{}, false
}

// runJoin aggregates branch envelopes into one synthesized envelope for
// the join_point step and advances according to the join step's own
// routing.next (a join step's StepRouting shares the Next field with
// linear routing). The join step itself never invokes an engine: it is a pure
// aggregation point.
func (o *Orchestrator) runJoin(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, joinStep swarmtypes.StepDefinition, branches []swarmtypes.BranchResult, cfg swarmtypes.JoinConfig, state *swarmtypes.RunState) (swarmtypes.StepID, error) {
	o.emit(runID, swarmtypes.EventStepStart, flowKey, joinStep.ID, "", map[string]any{"join": true})

	merged := aggregateBranches(runID, flowKey, joinStep, branches, cfg)

	if err := o.handoffIO.Commit(runID, flowKey, merged); err != nil {
		return "", fmt.Errorf("orchestrator: commit join envelope for step %q: %w", joinStep.ID, err)
	}

	state.CurrentStepID = joinStep.ID
	state.History = append(state.History, swarmtypes.StepHistoryEntry{
		StepID:    joinStep.ID,
		Status:    string(merged.Status),
		Summary:   merged.Summary,
		Timestamp: merged.Timestamp,
	})
	o.emit(runID, swarmtypes.EventStepEnd, flowKey, joinStep.ID, "", map[string]any{"status": string(merged.Status)})

	if joinStep.Routing != nil && joinStep.Routing.Next != "" {
		return joinStep.Routing.Next, nil
	}
	return "", nil
}

// aggregateBranches merges branch envelopes per the join's configured
// strategy and status-aggregation mode.
func aggregateBranches(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, joinStep swarmtypes.StepDefinition, branches []swarmtypes.BranchResult, cfg swarmtypes.JoinConfig) *swarmtypes.HandoffEnvelope {
	merged := &swarmtypes.HandoffEnvelope{
		StepID:         joinStep.ID,
		FlowKey:        flowKey,
		RunID:          runID,
		EnvelopeSource: swarmtypes.SourceMinimalEnvelope,
		Timestamp:      time.Now().UTC(),
	}

	status := swarmtypes.EnvelopeStatus("")
	verifiedCount := 0
	artifacts := map[string]string{}
	var summaries []string

	for _, b := range branches {
		if b.Envelope == nil {
			status = swarmtypes.WorstOf(orDefault(status), swarmtypes.StatusBlocked)
			summaries = append(summaries, fmt.Sprintf("%s: no envelope (%v)", b.StepID, b.Err))
			continue
		}
		if status == "" {
			status = b.Envelope.Status
		} else if cfg.AggregateStatus == swarmtypes.AggregateBest {
			status = swarmtypes.BestOf(status, b.Envelope.Status)
		} else {
			status = swarmtypes.WorstOf(status, b.Envelope.Status)
		}
		if b.Envelope.Status == swarmtypes.StatusVerified {
			verifiedCount++
		}
		if cfg.MergeArtifacts {
			for k, v := range b.Envelope.Artifacts {
				artifacts[k] = v
			}
		}
		summaries = append(summaries, fmt.Sprintf("%s: %s", b.StepID, b.Envelope.Summary))
	}
	if status == "" {
		status = swarmtypes.StatusUnverified
	}

	switch cfg.Strategy {
	case swarmtypes.JoinAnyVerified:
		if verifiedCount > 0 {
			status = swarmtypes.StatusVerified
		}
	case swarmtypes.JoinQuorum:
		if cfg.QuorumCount > 0 && verifiedCount >= cfg.QuorumCount {
			status = swarmtypes.StatusVerified
		}
	case swarmtypes.JoinAllVerified:
		if verifiedCount < len(branches) {
			status = swarmtypes.WorstOf(status, swarmtypes.StatusUnverified)
		}
	}

	merged.Status = status
	merged.Summary = joinSummary(summaries)
	if cfg.MergeArtifacts {
		merged.Artifacts = artifacts
	}
	return merged
}

func orDefault(s swarmtypes.EnvelopeStatus) swarmtypes.EnvelopeStatus {
	if s == "" {
		return swarmtypes.StatusVerified
	}
	return s
}

func joinSummary(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "; "
		}
		out += l
	}
	if out == "" {
		return "join: no branches executed"
	}
	return out
}
