// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teradata-labs/swarm/pkg/diffscan"
	"github.com/teradata-labs/swarm/pkg/handoff"
	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Finalizer runs the Finalize phase: it resolves a step's handoff
// envelope, either by parsing one the agent inlined during work (
// inline finalization) or by issuing a dedicated finalization prompt on
// the same hot session, then attaches a forensic diff scan and commits
// the envelope.
type Finalizer struct {
	backend llmio.LLMBackend
	diff    *diffscan.Scanner
	handoff *handoff.IO
}

// NewFinalizer builds a Finalizer.
func NewFinalizer(backend llmio.LLMBackend, diff *diffscan.Scanner, handoffIO *handoff.IO) *Finalizer {
	return &Finalizer{backend: backend, diff: diff, handoff: handoffIO}
}

// Run produces and commits the envelope for sc given the work phase's
// result and summary.
func (f *Finalizer) Run(sc *StepContext, result swarmtypes.StepResult, summary *WorkSummary) (swarmtypes.FinalizationResult, error) {
	envelope := summary.DraftEnvelope
	source := swarmtypes.SourceLifecycle

	if envelope == nil {
		parsed, err := parseInlineEnvelope(summary.Response.Text)
		if err == nil {
			envelope = parsed
		}
	}

	if envelope == nil {
		issued, err := f.issueFinalizationPrompt(sc, result)
		if err != nil {
			// orchestrator_fallback: a minimal envelope derived straight from
			// the step result, so the envelope invariant
			// is never violated even when finalization itself fails.
			envelope = minimalEnvelope(sc, result)
			source = swarmtypes.SourceOrchestratorFallback
		} else {
			envelope = issued
		}
	}

	envelope.StepID = sc.Step.ID
	envelope.FlowKey = sc.FlowKey
	envelope.RunID = sc.RunID
	envelope.EnvelopeSource = source
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = time.Now().UTC()
	}

	if f.diff != nil {
		envelope.FileChanges = f.diff.Scan(sc.Context)
	}

	if err := f.handoff.Commit(sc.RunID, sc.FlowKey, envelope); err != nil {
		return swarmtypes.FinalizationResult{}, fmt.Errorf("stepengine: commit envelope for step %q: %w", sc.Step.ID, err)
	}

	return swarmtypes.FinalizationResult{Envelope: envelope}, nil
}

// issueFinalizationPrompt asks the same hot session to restate its work as
// a structured envelope, used when the work-phase reply did not already
// inline one.
func (f *Finalizer) issueFinalizationPrompt(sc *StepContext, result swarmtypes.StepResult) (*swarmtypes.HandoffEnvelope, error) {
	sessionID := string(sc.RunID) + ":" + string(sc.Step.ID)
	prompt := "Summarize the work just completed as exactly one JSON object: " +
		`{"status":"VERIFIED|UNVERIFIED|PARTIAL|BLOCKED","summary":"...","artifacts":{}}`

	resp, err := f.backend.Complete(sc.Context, llmio.CompletionRequest{
		SessionID: sessionID,
		Prompt:    prompt,
		MaxTurns:  1,
	})
	if err != nil {
		return nil, err
	}
	return parseInlineEnvelope(resp.Text)
}

func parseInlineEnvelope(text string) (*swarmtypes.HandoffEnvelope, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in reply")
	}
	var e swarmtypes.HandoffEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &e); err != nil {
		return nil, fmt.Errorf("invalid envelope JSON: %w", err)
	}
	if e.Status == "" {
		return nil, fmt.Errorf("envelope missing status")
	}
	return &e, nil
}

// minimalEnvelope builds the last-resort envelope guaranteeing the
// orchestrator's "exactly one committed envelope per step" invariant even
// when every finalization path has failed.
func minimalEnvelope(sc *StepContext, result swarmtypes.StepResult) *swarmtypes.HandoffEnvelope {
	status := swarmtypes.StatusUnverified
	if result.Error != "" {
		status = swarmtypes.StatusBlocked
	}
	return &swarmtypes.HandoffEnvelope{
		Status:     status,
		Summary:    firstNonEmpty(result.Output, "step completed with no structured handoff"),
		Artifacts:  result.Artifacts,
		Error:      result.Error,
		DurationMS: result.DurationMS,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
