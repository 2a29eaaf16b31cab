// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"time"

	"github.com/teradata-labs/swarm/pkg/diffscan"
	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/routing"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// DefaultEngine implements Engine by composing the four lifecycle phases
// over one hot LLM session per step: Hydrate is folded into
// RunWorker's preparation, Work and Finalize share sc's session id, and
// Route consults the envelope-first signal before falling back to the
// routing driver.
type DefaultEngine struct {
	id       swarmtypes.BackendID
	layout   *runstore.Layout
	hydrator *Hydrator
	worker   *Worker
	finalize *Finalizer
	router   *Router
	receipts *ReceiptWriter
}

// NewDefaultEngine wires the four phases. engineName is the transcript
// filename token (e.g. "claude", "gemini", "stub").
func NewDefaultEngine(id swarmtypes.BackendID, backend llmio.LLMBackend, layout *runstore.Layout, handoffIO *handoff.IO, driver *routing.Driver, engineName string) *DefaultEngine {
	return &DefaultEngine{
		id:       id,
		layout:   layout,
		hydrator: NewHydrator(handoffIO),
		worker:   NewWorker(backend, layout, engineName),
		finalize: NewFinalizer(backend, diffscan.NewScanner("."), handoffIO),
		router:   NewRouter(handoffIO, driver),
		receipts: NewReceiptWriter(layout),
	}
}

// ID implements Engine.
func (e *DefaultEngine) ID() swarmtypes.BackendID { return e.id }

// RunWorker implements Engine: it hydrates a ContextPack (when sc doesn't
// already carry one) and then runs the Work phase.
func (e *DefaultEngine) RunWorker(sc *StepContext) (swarmtypes.StepResult, []swarmtypes.RunEvent, *WorkSummary, error) {
	started := time.Now()

	if sc.ContextPack == nil {
		sc.ContextPack = e.hydrator.Hydrate(sc)
	}

	var plan *swarmtypes.PromptPlan
	summary, err := e.worker.Run(sc, plan)
	duration := time.Since(started).Milliseconds()
	if err != nil {
		return swarmtypes.StepResult{
			StepID:     sc.Step.ID,
			Status:     string(swarmtypes.StatusBlocked),
			Error:      err.Error(),
			DurationMS: duration,
		}, nil, nil, err
	}

	result := swarmtypes.StepResult{
		StepID:     sc.Step.ID,
		Status:     string(swarmtypes.StatusUnverified),
		Output:     summary.Response.Text,
		DurationMS: duration,
	}
	return result, nil, summary, nil
}

// FinalizeStep implements Engine.
func (e *DefaultEngine) FinalizeStep(sc *StepContext, result swarmtypes.StepResult, summary *WorkSummary) (swarmtypes.FinalizationResult, error) {
	return e.finalize.Run(sc, result, summary)
}

// RouteStep implements Engine.
func (e *DefaultEngine) RouteStep(sc *StepContext, envelope *swarmtypes.HandoffEnvelope) (*swarmtypes.RoutingSignal, error) {
	return e.router.Run(sc, envelope)
}

// RunStep implements Engine's convenience call, combining all three
// phases and writing the mandatory per-step receipt regardless of
// outcome.
func (e *DefaultEngine) RunStep(sc *StepContext) (swarmtypes.StepResult, []swarmtypes.RunEvent, error) {
	started := time.Now()

	result, events, summary, err := e.RunWorker(sc)
	if err != nil {
		e.writeReceipt(sc, result, nil, started, err)
		return result, events, err
	}

	finalized, err := e.FinalizeStep(sc, result, summary)
	if err != nil {
		e.writeReceipt(sc, result, nil, started, err)
		return result, events, err
	}

	signal, err := e.RouteStep(sc, finalized.Envelope)
	if err != nil {
		e.writeReceipt(sc, result, finalized.Envelope, started, err)
		return result, events, err
	}

	result.Status = string(finalized.Envelope.Status)
	e.writeReceiptOK(sc, result, finalized.Envelope, signal, summary, started)
	return result, events, nil
}

func (e *DefaultEngine) writeReceiptOK(sc *StepContext, result swarmtypes.StepResult, envelope *swarmtypes.HandoffEnvelope, signal *swarmtypes.RoutingSignal, summary *WorkSummary, started time.Time) {
	r := &swarmtypes.StepReceipt{
		EngineID:      string(e.id),
		Mode:          swarmtypes.ReceiptModeSDK,
		ExecutionMode: swarmtypes.ExecutionSession,
		Provider:      summary.Response.Provider,
		Model:         summary.Response.Model,
		RunID:         sc.RunID,
		FlowKey:       sc.FlowKey,
		StepID:        sc.Step.ID,
		Agent:         sc.Agent,
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
		DurationMS:    result.DurationMS,
		Status:        result.Status,
		Tokens: swarmtypes.TokenUsage{
			Prompt:     summary.Response.Usage.PromptTokens,
			Completion: summary.Response.Usage.CompletionTokens,
			Total:      summary.Response.Usage.TotalTokens,
		},
		RoutingSignal:     signal,
		ContextTruncation: summary.ContextTrunc,
	}
	if envelope != nil {
		r.HandoffEnvelopePath = e.layout.HandoffCommittedPath(sc.RunID, sc.FlowKey, envelope.StepID)
	}
	_ = e.receipts.Write(r)
}

func (e *DefaultEngine) writeReceipt(sc *StepContext, result swarmtypes.StepResult, envelope *swarmtypes.HandoffEnvelope, started time.Time, runErr error) {
	r := &swarmtypes.StepReceipt{
		EngineID:      string(e.id),
		Mode:          swarmtypes.ReceiptModeSDK,
		ExecutionMode: swarmtypes.ExecutionSession,
		RunID:         sc.RunID,
		FlowKey:       sc.FlowKey,
		StepID:        sc.Step.ID,
		Agent:         sc.Agent,
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
		DurationMS:    result.DurationMS,
		Status:        result.Status,
	}
	if runErr != nil {
		r.Status = string(swarmtypes.StatusBlocked)
	}
	_ = e.receipts.Write(r)
}
