// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Worker runs the Work phase: it builds a prompt (preferring a compiled
// PromptPlan, falling back to history-priority budgeting) and invokes the
// LLM backend, appending every turn to the step's transcript file.
type Worker struct {
	backend llmio.LLMBackend
	layout  *runstore.Layout
	engine  string
}

// NewWorker builds a Worker. engine names the transcript-file token the
// engine is registered under (e.g. "claude", "gemini", "stub").
func NewWorker(backend llmio.LLMBackend, layout *runstore.Layout, engine string) *Worker {
	return &Worker{backend: backend, layout: layout, engine: engine}
}

// Run executes the work phase for sc, optionally driven by a pre-compiled
// plan. When plan is nil, the legacy history-priority prompt is built from
// sc.History instead.
func (w *Worker) Run(sc *StepContext, plan *swarmtypes.PromptPlan) (*WorkSummary, error) {
	sessionID := string(sc.RunID) + ":" + string(sc.Step.ID)

	var prompt string
	var promptHash string
	var trunc *swarmtypes.TruncationInfo
	usedPack := sc.ContextPack != nil && len(sc.ContextPack.PreviousEnvelopes) > 0

	switch {
	case plan != nil:
		prompt = plan.Prompt
		promptHash = plan.PromptHash
	case usedPack:
		prompt = renderContextPack(sc.ContextPack)
	default:
		var body string
		body, trunc = BuildLegacyPrompt(DefaultBudgetConfig, sc.History)
		prompt = body
	}

	req := llmio.CompletionRequest{
		SessionID:    sessionID,
		Prompt:       prompt,
		MaxTurns:     1,
	}
	if plan != nil {
		req.AllowedTools = plan.AllowedTools
		req.PermissionMode = plan.PermissionMode
		req.MaxTurns = plan.MaxTurns
	}

	resp, err := w.backend.Complete(sc.Context, req)
	if err != nil {
		return nil, fmt.Errorf("stepengine: work completion for step %q: %w", sc.Step.ID, err)
	}

	if err := w.appendTranscript(sc, req, resp); err != nil {
		return nil, fmt.Errorf("stepengine: append transcript: %w", err)
	}

	return &WorkSummary{
		Response:        resp,
		PromptHash:      promptHash,
		ContextTrunc:    trunc,
		UsedContextPack: usedPack,
	}, nil
}

// transcriptLine is one JSONL record in a step's LLM transcript file.
type transcriptLine struct {
	TS       time.Time               `json:"ts"`
	Request  llmio.CompletionRequest  `json:"request"`
	Response llmio.CompletionResponse `json:"response"`
}

func (w *Worker) appendTranscript(sc *StepContext, req llmio.CompletionRequest, resp llmio.CompletionResponse) error {
	path := w.layout.LLMTranscriptPath(sc.RunID, sc.FlowKey, sc.Step.ID, sc.Agent, w.engine)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(transcriptLine{TS: time.Now().UTC(), Request: req, Response: resp})
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func renderContextPack(pack *swarmtypes.ContextPack) string {
	s := "Upstream artifacts:\n"
	for name, path := range pack.UpstreamArtifacts {
		s += fmt.Sprintf("  %s: %s\n", name, path)
	}
	for _, env := range pack.PreviousEnvelopes {
		s += fmt.Sprintf("\n### %s (%s)\n%s\n", env.StepID, env.Status, env.Summary)
	}
	for _, n := range pack.Notes {
		s += "\n[note] " + n
	}
	return s
}
