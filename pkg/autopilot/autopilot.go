// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package autopilot chains a run's SDLC flows to completion without a
// human in the loop, implementing the state machine of : one flow
// executes per tick, pause/stop/cancel take effect at the next flow
// boundary, and a stopped run leaves a resumable savepoint plus a
// human-readable stop_report.md.
package autopilot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/eventlog"
	"github.com/teradata-labs/swarm/pkg/flowregistry"
	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/orchestrator"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Config holds the per-run knobs a caller of Start may override; zero
// values fall back to the Controller's defaults.
type Config struct {
	AutoApplyWisdom bool
	AutoApplyPolicy swarmtypes.EvolutionApplyPolicy
}

// EvolutionProcessor applies policy-gated evolution at a run boundary
// ( "Policy-gated evolution"). pkg/policy implements this; it is
// injected here to avoid an autopilot -> policy -> autopilot cycle.
type EvolutionProcessor interface {
	ProcessBoundary(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, policy swarmtypes.EvolutionApplyPolicy, events *eventlog.Writer) (*swarmtypes.EvolutionSummary, map[string]string, error)
}

// FlowTransition records one completed-flow -> next-flow hop for the
// stop report's audit trail.
type FlowTransition struct {
	FromFlow  swarmtypes.FlowKey
	ToFlow    swarmtypes.FlowKey
	Status    string
	Timestamp time.Time
}

// state is one autopilot run's mutable bookkeeping. Controller owns a
// map of these behind a mutex; state itself is touched only while that
// mutex is held.
type state struct {
	runID             swarmtypes.RunID
	spec              swarmtypes.RunSpec
	config            Config
	flowsToExecute    []swarmtypes.FlowKey
	currentFlowIndex  int
	flowsCompleted    []swarmtypes.FlowKey
	flowsFailed       []swarmtypes.FlowKey
	transitionHistory []FlowTransition
	status            swarmtypes.AutopilotStatus
	startedAt         *time.Time
	completedAt       *time.Time
	errMsg            string
	wisdomArtifacts   map[string]string
	wisdomApplyResult *swarmtypes.EvolutionSummary
	events            *eventlog.Writer
}

// Controller runs one or more autopilot runs, each driving its own
// Orchestrator serially: at most one flow of a run executes at a time
//.
type Controller struct {
	registry  *flowregistry.Registry
	store     *runstore.Store
	layout    *runstore.Layout
	handoffIO *handoff.IO
	engines   orchestrator.EngineSelector
	evolution EvolutionProcessor
	defaults  Config
	logger    *zap.Logger

	mu     sync.Mutex
	states map[swarmtypes.RunID]*state
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithDefaults sets the Config merged into every Start call that leaves
// its own fields zero.
func WithDefaults(cfg Config) Option {
	return func(c *Controller) { c.defaults = cfg }
}

// WithEvolutionProcessor attaches the policy-gated evolution engine run
// at the end of a successful Wisdom flow.
func WithEvolutionProcessor(p EvolutionProcessor) Option {
	return func(c *Controller) { c.evolution = p }
}

// WithLogger attaches a zap logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController builds a Controller.
func NewController(registry *flowregistry.Registry, store *runstore.Store, layout *runstore.Layout, handoffIO *handoff.IO, engines orchestrator.EngineSelector, opts ...Option) *Controller {
	c := &Controller{
		registry:  registry,
		store:     store,
		layout:    layout,
		handoffIO: handoffIO,
		engines:   engines,
		defaults:  Config{AutoApplyPolicy: swarmtypes.PolicySuggestOnly},
		logger:    zap.NewNop(),
		states:    make(map[swarmtypes.RunID]*state),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start creates a new autopilot run, configured with no_human_mid_flow,
// and pre-computes the flow list (every is_sdlc=true flow, in order,
// unless flowKeys overrides it). It returns the new run's id.
func (c *Controller) Start(issueRef string, flowKeys []swarmtypes.FlowKey, cfg Config) (swarmtypes.RunID, error) {
	flows := flowKeys
	if len(flows) == 0 {
		flows = c.registry.SDLCFlowKeys()
	}
	if cfg.AutoApplyPolicy == "" {
		cfg.AutoApplyPolicy = c.defaults.AutoApplyPolicy
	}
	if !cfg.AutoApplyWisdom {
		cfg.AutoApplyWisdom = c.defaults.AutoApplyWisdom
	}

	runID := swarmtypes.NewRunID()
	spec := swarmtypes.RunSpec{
		FlowKeys:       flows,
		Backend:        swarmtypes.BackendID("claude-step-orchestrator"),
		Initiator:      "autopilot",
		NoHumanMidFlow: true,
		Params: map[string]string{
			"autopilot":        "true",
			"issue_ref":        issueRef,
			"auto_apply_wisdom": fmt.Sprintf("%t", cfg.AutoApplyWisdom),
			"auto_apply_policy": string(cfg.AutoApplyPolicy),
		},
	}

	if err := c.store.CreateRun(runID, spec); err != nil {
		return "", fmt.Errorf("autopilot: create run: %w", err)
	}

	writer, err := eventlog.NewWriter(c.layout.EventsPath(runID), c.logger)
	if err != nil {
		return "", fmt.Errorf("autopilot: open event writer: %w", err)
	}

	st := &state{
		runID:          runID,
		spec:           spec,
		config:         cfg,
		flowsToExecute: flows,
		status:         swarmtypes.AutopilotPending,
		events:         writer,
	}

	c.mu.Lock()
	c.states[runID] = st
	c.mu.Unlock()

	firstFlow := swarmtypes.FlowKey("")
	if len(flows) > 0 {
		firstFlow = flows[0]
	}
	c.emit(st, swarmtypes.EventAutopilotStarted, firstFlow, map[string]any{
		"flows":             flows,
		"issue_ref":         issueRef,
		"no_human_mid_flow": true,
	})

	c.logger.Info("autopilot run started", zap.String("run_id", string(runID)), zap.Int("flows", len(flows)))
	return runID, nil
}

// Tick advances runID by executing exactly one flow (or finalizing a
// pending pause/stop), returning true if more work remains.
func (c *Controller) Tick(ctx context.Context, runID swarmtypes.RunID) (bool, error) {
	c.mu.Lock()
	st, ok := c.states[runID]
	c.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("autopilot: unknown run %q", runID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch st.status {
	case swarmtypes.AutopilotSucceeded, swarmtypes.AutopilotFailed, swarmtypes.AutopilotCanceled, swarmtypes.AutopilotStopped:
		return false, nil
	case swarmtypes.AutopilotStopping:
		c.finalizeStop(st)
		return false, nil
	case swarmtypes.AutopilotPausing:
		c.finalizePause(st)
		return false, nil
	case swarmtypes.AutopilotPaused:
		return false, nil
	}

	if st.status == swarmtypes.AutopilotPending {
		st.status = swarmtypes.AutopilotRunning
		now := time.Now().UTC()
		st.startedAt = &now
	}

	if st.currentFlowIndex >= len(st.flowsToExecute) {
		c.finalizeRun(st, true)
		return false, nil
	}

	flowKey := st.flowsToExecute[st.currentFlowIndex]
	c.emit(st, swarmtypes.EventAutopilotFlowStarted, flowKey, map[string]any{
		"flow_index": st.currentFlowIndex,
		"total_flows": len(st.flowsToExecute),
	})

	orch := orchestrator.New(c.registry, c.store, c.layout, st.events, c.handoffIO, c.engines, orchestrator.WithLogger(c.logger))
	runState := &swarmtypes.RunState{
		RunID:     runID,
		FlowKey:   flowKey,
		Status:    swarmtypes.RunRunning,
		Timestamp: time.Now().UTC(),
		LoopState: make(map[string]int),
	}

	if err := orch.RunFlow(ctx, runID, flowKey, runState); err != nil {
		st.flowsFailed = append(st.flowsFailed, flowKey)
		st.errMsg = err.Error()
		c.emit(st, swarmtypes.EventAutopilotFlowFailed, flowKey, map[string]any{"error": err.Error()})
		c.finalizeRun(st, false)
		return false, nil
	}

	st.flowsCompleted = append(st.flowsCompleted, flowKey)
	nextFlow := swarmtypes.FlowKey("")
	if st.currentFlowIndex+1 < len(st.flowsToExecute) {
		nextFlow = st.flowsToExecute[st.currentFlowIndex+1]
	}
	st.transitionHistory = append(st.transitionHistory, FlowTransition{
		FromFlow: flowKey, ToFlow: nextFlow, Status: "succeeded", Timestamp: time.Now().UTC(),
	})
	c.emit(st, swarmtypes.EventAutopilotFlowCompleted, flowKey, map[string]any{"status": "succeeded"})

	if isWisdomFlow(flowKey) {
		c.processEvolutionBoundary(st, flowKey)
	}

	st.currentFlowIndex++
	return true, nil
}

// RunToCompletion calls Tick until IsComplete(runID) is true.
func (c *Controller) RunToCompletion(ctx context.Context, runID swarmtypes.RunID) (*swarmtypes.AutopilotResult, error) {
	for !c.IsComplete(runID) {
		more, err := c.Tick(ctx, runID)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return c.GetResult(runID), nil
}

// IsComplete reports whether runID has reached a terminal status.
// Unknown runs are treated as complete.
func (c *Controller) IsComplete(runID swarmtypes.RunID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	if !ok {
		return true
	}
	return st.status.IsTerminal()
}

// IsPaused reports whether runID is currently paused.
func (c *Controller) IsPaused(runID swarmtypes.RunID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	return ok && st.status == swarmtypes.AutopilotPaused
}

// IsResumable reports whether runID is paused or stopped, either of
// which resume() accepts.
func (c *Controller) IsResumable(runID swarmtypes.RunID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	return ok && (st.status == swarmtypes.AutopilotPaused || st.status == swarmtypes.AutopilotStopped)
}

// Cancel immediately terminates runID. Returns false if the run is
// already in a terminal state or unknown.
func (c *Controller) Cancel(runID swarmtypes.RunID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	if !ok || st.status.IsTerminal() {
		return false
	}

	st.status = swarmtypes.AutopilotCanceled
	now := time.Now().UTC()
	st.completedAt = &now
	c.emit(st, swarmtypes.EventAutopilotCanceled, c.currentFlow(st), nil)
	c.logger.Info("autopilot run canceled", zap.String("run_id", string(runID)))
	return true
}

// Stop requests a graceful stop at the next flow boundary; the current
// flow (if any) runs to completion first. Returns false if the run is
// already terminal or unknown.
func (c *Controller) Stop(runID swarmtypes.RunID, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	if !ok || st.status.IsTerminal() {
		return false
	}
	if reason == "" {
		reason = "user_initiated"
	}

	st.status = swarmtypes.AutopilotStopping
	st.errMsg = "Stop requested: " + reason
	c.emit(st, swarmtypes.EventAutopilotStopping, c.currentFlow(st), map[string]any{"reason": reason})
	c.logger.Info("autopilot run stopping", zap.String("run_id", string(runID)), zap.String("reason", reason))
	return true
}

// Pause requests a pause at the next flow boundary. Only accepted from
// PENDING or RUNNING.
func (c *Controller) Pause(runID swarmtypes.RunID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	if !ok {
		return false
	}
	if st.status != swarmtypes.AutopilotRunning && st.status != swarmtypes.AutopilotPending {
		return false
	}

	st.status = swarmtypes.AutopilotPausing
	c.emit(st, swarmtypes.EventAutopilotPausing, c.currentFlow(st), nil)
	c.logger.Info("autopilot run pausing", zap.String("run_id", string(runID)))
	return true
}

// Resume continues a paused or stopped run from its saved flow index.
func (c *Controller) Resume(runID swarmtypes.RunID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	if !ok {
		return false
	}
	if st.status != swarmtypes.AutopilotPaused && st.status != swarmtypes.AutopilotStopped {
		return false
	}

	previous := st.status
	st.status = swarmtypes.AutopilotRunning
	c.emit(st, swarmtypes.EventAutopilotResumed, c.currentFlow(st), map[string]any{"previous_status": string(previous)})
	c.logger.Info("autopilot run resumed", zap.String("run_id", string(runID)), zap.String("from", string(previous)))
	return true
}

// GetResult aggregates runID's current outcome. Safe to call at any
// point in the run's lifecycle, not only at completion.
func (c *Controller) GetResult(runID swarmtypes.RunID) *swarmtypes.AutopilotResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[runID]
	if !ok {
		return nil
	}

	var duration int64
	if st.startedAt != nil {
		end := time.Now().UTC()
		if st.completedAt != nil {
			end = *st.completedAt
		}
		duration = end.Sub(*st.startedAt).Milliseconds()
	}

	return &swarmtypes.AutopilotResult{
		RunID:             runID,
		FlowsCompleted:    append([]swarmtypes.FlowKey(nil), st.flowsCompleted...),
		FlowsFailed:       append([]swarmtypes.FlowKey(nil), st.flowsFailed...),
		CurrentFlow:       c.currentFlow(st),
		DurationMS:        duration,
		WisdomArtifacts:   st.wisdomArtifacts,
		WisdomApplyResult: st.wisdomApplyResult,
	}
}

func (c *Controller) currentFlow(st *state) swarmtypes.FlowKey {
	if st.currentFlowIndex < len(st.flowsToExecute) {
		return st.flowsToExecute[st.currentFlowIndex]
	}
	return ""
}

func (c *Controller) finalizeStop(st *state) {
	st.status = swarmtypes.AutopilotStopped
	now := time.Now().UTC()
	st.completedAt = &now

	if err := c.writeStopReport(st); err != nil {
		c.logger.Warn("autopilot: failed to write stop report", zap.String("run_id", string(st.runID)), zap.Error(err))
	}

	remaining := append([]swarmtypes.FlowKey(nil), st.flowsToExecute[st.currentFlowIndex:]...)
	c.emit(st, swarmtypes.EventAutopilotStopped, c.currentFlow(st), map[string]any{
		"flows_completed":  st.flowsCompleted,
		"flows_remaining":  remaining,
		"reason":           orUnknown(st.errMsg),
	})
	c.logger.Info("autopilot run stopped", zap.String("run_id", string(st.runID)))
}

func (c *Controller) finalizePause(st *state) {
	st.status = swarmtypes.AutopilotPaused
	remaining := append([]swarmtypes.FlowKey(nil), st.flowsToExecute[st.currentFlowIndex:]...)
	c.emit(st, swarmtypes.EventAutopilotPaused, c.currentFlow(st), map[string]any{
		"flows_completed": st.flowsCompleted,
		"flows_remaining": remaining,
	})
	c.logger.Info("autopilot run paused", zap.String("run_id", string(st.runID)))
}

func (c *Controller) finalizeRun(st *state, success bool) {
	now := time.Now().UTC()
	st.completedAt = &now
	if success {
		st.status = swarmtypes.AutopilotSucceeded
	} else {
		st.status = swarmtypes.AutopilotFailed
	}

	if success && len(st.flowsCompleted) > 0 && isWisdomFlow(st.flowsCompleted[len(st.flowsCompleted)-1]) {
		// evolution already processed at the flow_end boundary; nothing
		// further happens at run_end in that case.
	}

	c.emit(st, swarmtypes.EventAutopilotCompleted, "", map[string]any{
		"success":         success,
		"flows_completed": st.flowsCompleted,
		"flows_failed":    st.flowsFailed,
	})
}

// isWisdomFlow reports whether flowKey names the flow whose completion
// triggers policy-gated evolution; flow keys follow the
// "NN_name" convention and the wisdom step is always the final SDLC flow
// named "wisdom".
func isWisdomFlow(flowKey swarmtypes.FlowKey) bool {
	return strings.Contains(strings.ToLower(string(flowKey)), "wisdom")
}

func (c *Controller) processEvolutionBoundary(st *state, flowKey swarmtypes.FlowKey) {
	if c.evolution == nil {
		return
	}
	c.emit(st, swarmtypes.EventEvolutionProcessingStarted, flowKey, nil)

	summary, artifacts, err := c.evolution.ProcessBoundary(st.runID, flowKey, st.config.AutoApplyPolicy, st.events)
	if err != nil {
		c.logger.Warn("autopilot: evolution processing failed", zap.String("run_id", string(st.runID)), zap.Error(err))
		return
	}

	st.wisdomApplyResult = summary
	if artifacts != nil {
		if st.wisdomArtifacts == nil {
			st.wisdomArtifacts = map[string]string{}
		}
		for k, v := range artifacts {
			st.wisdomArtifacts[k] = v
		}
	}
	c.emit(st, swarmtypes.EventEvolutionProcessingCompleted, flowKey, nil)
}

func (c *Controller) writeStopReport(st *state) error {
	runPath := c.layout.RunBase(st.runID)
	reportPath := filepath.Join(runPath, "stop_report.md")

	current := c.currentFlow(st)
	remaining := st.flowsToExecute[st.currentFlowIndex:]

	var b strings.Builder
	fmt.Fprintf(&b, "# Autopilot Stop Report\n\n")
	fmt.Fprintf(&b, "**Run ID:** %s\n", st.runID)
	fmt.Fprintf(&b, "**Stopped At:** %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Reason:** %s\n\n", orUnknown(st.errMsg))
	fmt.Fprintf(&b, "## Execution State\n\n")
	fmt.Fprintf(&b, "- **Current Flow Index:** %d\n", st.currentFlowIndex)
	fmt.Fprintf(&b, "- **Current Flow:** %s\n", orNone(string(current)))
	fmt.Fprintf(&b, "- **Total Flows:** %d\n\n", len(st.flowsToExecute))

	b.WriteString("## Completed Flows\n\n")
	if len(st.flowsCompleted) == 0 {
		b.WriteString("- None\n")
	} else {
		for _, f := range st.flowsCompleted {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\n## Remaining Flows (not executed)\n\n")
	if len(remaining) == 0 {
		b.WriteString("- None (all flows completed)\n")
	} else {
		for _, f := range remaining {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	b.WriteString("\n## Flow Transition History\n\n")
	if len(st.transitionHistory) == 0 {
		b.WriteString("- No transitions recorded\n")
	} else {
		for _, t := range st.transitionHistory {
			fmt.Fprintf(&b, "- %s -> %s (%s) at %s\n", t.FromFlow, orNone(string(t.ToFlow)), t.Status, t.Timestamp.Format(time.RFC3339))
		}
	}

	b.WriteString("\n## Resume Instructions\n\n")
	b.WriteString("To resume this run from the stopped state:\n")
	b.WriteString("1. Call `Controller.Resume(run_id)` to continue from the current flow\n")
	b.WriteString("2. Or use the equivalent API endpoint if one is wired up\n")

	if err := os.MkdirAll(runPath, 0o750); err != nil {
		return err
	}
	return os.WriteFile(reportPath, []byte(b.String()), 0o640)
}

func (c *Controller) emit(st *state, kind swarmtypes.EventKind, flowKey swarmtypes.FlowKey, payload map[string]any) {
	if st.events == nil {
		return
	}
	_, err := st.events.Append(swarmtypes.RunEvent{
		RunID:   st.runID,
		EventID: string(st.runID) + ":" + string(kind) + ":" + time.Now().UTC().Format(time.RFC3339Nano),
		Kind:    kind,
		FlowKey: flowKey,
		Payload: payload,
	})
	if err != nil {
		c.logger.Warn("autopilot: failed to append event", zap.String("run_id", string(st.runID)), zap.Error(err))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
