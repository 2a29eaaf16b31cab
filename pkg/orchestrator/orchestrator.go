// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package orchestrator drives one flow's steps to completion: hydrate,
// work, finalize, route, repeat, enforcing the envelope and routing
// invariants the rest of the system relies on.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/eventlog"
	"github.com/teradata-labs/swarm/pkg/flowregistry"
	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/observability"
	"github.com/teradata-labs/swarm/pkg/routing"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/stepengine"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// EngineSelector resolves the Engine that should run a given step, honoring
// an engine_profile override with graceful fallback to the default engine.
type EngineSelector interface {
	Select(step swarmtypes.StepDefinition) (stepengine.Engine, error)
}

// Orchestrator runs one flow of one run to completion or termination.
type Orchestrator struct {
	registry  *flowregistry.Registry
	store     *runstore.Store
	layout    *runstore.Layout
	events    *eventlog.Writer
	handoffIO *handoff.IO
	engines   EngineSelector
	tracer    observability.Tracer
	logger    *zap.Logger

	// MaxSteps bounds the main loop against a pathological routing cycle
	// that never reaches terminate; zero means no bound.
	MaxSteps int
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithTracer attaches a tracer; defaults to observability.NoOpTracer.
func WithTracer(t observability.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger attaches a zap logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMaxSteps bounds the step loop.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) { o.MaxSteps = n }
}

// New builds an Orchestrator for one run.
func New(registry *flowregistry.Registry, store *runstore.Store, layout *runstore.Layout, events *eventlog.Writer, handoffIO *handoff.IO, engines EngineSelector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		store:     store,
		layout:    layout,
		events:    events,
		handoffIO: handoffIO,
		engines:   engines,
		tracer:    observability.NewNoOpTracer(),
		logger:    zap.NewNop(),
		MaxSteps:  500,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunFlow drives flowKey from its first step (or a resumed CurrentStepID)
// until a terminate decision or the end of the graph, mutating and
// persisting state as it goes.
func (o *Orchestrator) RunFlow(ctx context.Context, runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, state *swarmtypes.RunState) error {
	flow, ok := o.registry.GetFlow(flowKey)
	if !ok {
		return fmt.Errorf("orchestrator: unknown flow %q", flowKey)
	}
	if err := o.store.EnsureFlowDirs(runID, flowKey); err != nil {
		return err
	}

	driver := routing.NewDriver(nil)

	stepID := state.CurrentStepID
	if stepID == "" && len(flow.Steps) > 0 {
		stepID = flow.Steps[0].ID
	}

	for i := 0; stepID != ""; i++ {
		if o.MaxSteps > 0 && i >= o.MaxSteps {
			return fmt.Errorf("orchestrator: flow %q exceeded max step bound %d without terminating", flowKey, o.MaxSteps)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("orchestrator: canceled before step %q: %w", stepID, err)
		}

		step, ok := o.stepByID(flow, stepID)
		if !ok {
			return fmt.Errorf("orchestrator: flow %q has no step %q", flowKey, stepID)
		}

		if step.Routing != nil && step.Routing.Kind == swarmtypes.RoutingFork {
			next, err := o.runFork(ctx, runID, flowKey, flow, step, state, driver)
			if err != nil {
				return err
			}
			stepID = next
			continue
		}

		next, err := o.runOneStep(ctx, runID, flowKey, step, state, driver)
		if err != nil {
			return err
		}
		stepID = next
	}

	state.Status = swarmtypes.RunSucceeded
	return nil
}

// runOneStep executes hydrate->work->finalize->route for one step and
// returns the next step id, or "" when the flow should stop.
func (o *Orchestrator) runOneStep(ctx context.Context, runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, step swarmtypes.StepDefinition, state *swarmtypes.RunState, driver *routing.Driver) (swarmtypes.StepID, error) {
	state.CurrentStepID = step.ID
	envelope, signal, err := o.executeStep(ctx, runID, flowKey, step, state, driver)
	if err != nil {
		return "", err
	}
	_ = envelope
	return o.applyRoutingDecision(step, signal)
}

// executeStep runs hydrate->work->finalize->route for one step, enforcing
// the envelope invariant and envelope-first routing, but stops short of
// applying the routing decision: callers that need the committed envelope
// itself (fork branches, join aggregation) use this directly.
func (o *Orchestrator) executeStep(ctx context.Context, runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, step swarmtypes.StepDefinition, state *swarmtypes.RunState, driver *routing.Driver) (*swarmtypes.HandoffEnvelope, *swarmtypes.RoutingSignal, error) {
	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.step",
		observability.WithAttribute("step_id", string(step.ID)),
		observability.WithAttribute("flow_key", string(flowKey)))
	defer o.tracer.EndSpan(span)

	o.emit(runID, swarmtypes.EventStepStart, flowKey, step.ID, "", nil)

	engine, err := o.engines.Select(step)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: select engine for step %q: %w", step.ID, err)
	}

	agent := swarmtypes.AgentKey("")
	if len(step.Agents) > 0 {
		agent = step.Agents[0]
	}

	sc := &stepengine.StepContext{
		Context: ctx,
		RunID:   runID,
		FlowKey: flowKey,
		Step:    step,
		Agent:   agent,
		History: state.History,
		State:   state,
	}

	started := time.Now()
	result, _, err := engine.RunStep(sc)
	duration := time.Since(started).Milliseconds()

	// Invariant 1: a committed envelope must exist after every step,
	// even when the engine itself failed outright.
	if !o.handoffIO.Exists(runID, flowKey, step.ID) {
		fallback := &swarmtypes.HandoffEnvelope{
			StepID:         step.ID,
			FlowKey:        flowKey,
			RunID:          runID,
			Status:         swarmtypes.StatusBlocked,
			Summary:        "engine produced no committed envelope",
			EnvelopeSource: swarmtypes.SourceOrchestratorFallback,
			DurationMS:     duration,
		}
		if err != nil {
			fallback.Error = err.Error()
		}
		if commitErr := o.handoffIO.Commit(runID, flowKey, fallback); commitErr != nil {
			return nil, nil, fmt.Errorf("orchestrator: commit fallback envelope for step %q: %w", step.ID, commitErr)
		}
	}

	envelope, readErr := o.handoffIO.Read(runID, flowKey, step.ID)
	if readErr != nil || envelope == nil {
		return nil, nil, fmt.Errorf("orchestrator: read committed envelope for step %q: %w", step.ID, readErr)
	}

	state.History = append(state.History, swarmtypes.StepHistoryEntry{
		StepID:    step.ID,
		AgentKey:  agent,
		Status:    string(envelope.Status),
		Summary:   envelope.Summary,
		Timestamp: envelope.Timestamp,
	})

	kind := swarmtypes.EventStepEnd
	if envelope.Status == swarmtypes.StatusBlocked {
		kind = swarmtypes.EventStepError
	}
	o.emit(runID, kind, flowKey, step.ID, "", map[string]any{"status": string(envelope.Status)})
	o.tracer.RecordMetric("steps_run_total", 1, map[string]string{"status": string(envelope.Status)})

	// Envelope-first routing read: only fall back to the driver
	// when the engine did not already attach a routing signal.
	signal := envelope.RoutingSignal
	if signal == nil {
		var err error
		signal, err = driver.Route(ctx, step, envelope, state, &envelope.FileChanges, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: route step %q: %w", step.ID, err)
		}
		if err := o.handoffIO.UpdateEnvelopeRouting(runID, flowKey, step.ID, signal); err != nil {
			return nil, nil, fmt.Errorf("orchestrator: write-through routing for step %q: %w", step.ID, err)
		}
	}
	if signal != nil {
		o.tracer.RecordMetric("routing_decisions_total", 1, map[string]string{"decision": string(signal.Decision)})
	}

	_ = result
	return envelope, signal, nil
}

func (o *Orchestrator) applyRoutingDecision(step swarmtypes.StepDefinition, signal *swarmtypes.RoutingSignal) (swarmtypes.StepID, error) {
	switch signal.Decision {
	case swarmtypes.DecisionTerminate:
		return "", nil
	case swarmtypes.DecisionAdvance, swarmtypes.DecisionLoop, swarmtypes.DecisionBranch:
		if signal.NextStepID == "" {
			return "", fmt.Errorf("orchestrator: step %q routing decision %q carries no next_step_id", step.ID, signal.Decision)
		}
		return signal.NextStepID, nil
	default:
		return "", fmt.Errorf("orchestrator: step %q produced unknown routing decision %q", step.ID, signal.Decision)
	}
}

func (o *Orchestrator) stepByID(flow *swarmtypes.FlowDefinition, id swarmtypes.StepID) (swarmtypes.StepDefinition, bool) {
	for _, s := range flow.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return swarmtypes.StepDefinition{}, false
}

func (o *Orchestrator) emit(runID swarmtypes.RunID, kind swarmtypes.EventKind, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID, agent swarmtypes.AgentKey, payload map[string]any) {
	_, err := o.events.Append(swarmtypes.RunEvent{
		RunID:    runID,
		EventID:  string(runID) + ":" + string(stepID) + ":" + string(kind) + ":" + time.Now().UTC().Format(time.RFC3339Nano),
		Kind:     kind,
		FlowKey:  flowKey,
		StepID:   stepID,
		AgentKey: agent,
		Payload:  payload,
	})
	if err != nil {
		o.logger.Warn("failed to append event", zap.Error(err), zap.String("kind", string(kind)))
	}
}
