// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teradata-labs/swarm/pkg/llmio"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// rawResolution is the JSON shape a router-LLM session is expected to
// reply with; fields mirror the wording of 's resolver prompt.
type rawResolution struct {
	Decision   string  `json:"decision"`
	NextStepID string  `json:"next_step_id"`
	Route      string  `json:"route"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	NeedsHuman bool    `json:"needs_human"`
}

// Resolver issues a resolution prompt to a router-LLM session when the
// deterministic driver cannot decide on its own (ambiguous branch state,
// a step with no declared routing, or an explicit router_llm override).
type Resolver struct {
	backend llmio.LLMBackend
}

// NewResolver builds a Resolver over backend.
func NewResolver(backend llmio.LLMBackend) *Resolver {
	return &Resolver{backend: backend}
}

// Resolve asks the router-LLM session for a routing decision given the
// step's committed envelope and its candidate set, then normalizes the
// reply through the canonical decision-alias table (
func (r *Resolver) Resolve(ctx context.Context, sessionID string, stepID swarmtypes.StepID, envelope *swarmtypes.HandoffEnvelope, candidates []swarmtypes.RoutingCandidate) (*swarmtypes.RoutingSignal, error) {
	prompt, err := buildResolverPrompt(stepID, envelope, candidates)
	if err != nil {
		return nil, fmt.Errorf("routing: build resolver prompt: %w", err)
	}

	resp, err := r.backend.Complete(ctx, llmio.CompletionRequest{
		SessionID: sessionID,
		Prompt:    prompt,
		MaxTurns:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("routing: resolver completion: %w", err)
	}

	raw, err := parseResolution(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("routing: parse resolver reply: %w", err)
	}

	decision := ParseDecision(raw.Decision)
	return &swarmtypes.RoutingSignal{
		Decision:          decision,
		NextStepID:        swarmtypes.StepID(raw.NextStepID),
		Route:             raw.Route,
		Reason:            raw.Reason,
		Confidence:        raw.Confidence,
		NeedsHuman:        raw.NeedsHuman,
		RoutingSource:     string(SourceLLM),
		ChosenCandidateID: string(decision),
		RoutingCandidates: candidates,
	}, nil
}

func buildResolverPrompt(stepID swarmtypes.StepID, envelope *swarmtypes.HandoffEnvelope, candidates []swarmtypes.RoutingCandidate) (string, error) {
	env, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", err
	}
	cand, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Step %q completed. Decide the next routing action.\n\n", stepID)
	fmt.Fprintf(&b, "Handoff envelope:\n%s\n\n", env)
	fmt.Fprintf(&b, "Candidate routes:\n%s\n\n", cand)
	b.WriteString("Reply with exactly one JSON object: " +
		`{"decision":"advance|loop|terminate|branch","next_step_id":"...","route":"...","reason":"...","confidence":0.0,"needs_human":false}`)
	return b.String(), nil
}

func parseResolution(text string) (*rawResolution, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in resolver reply")
	}
	var raw rawResolution
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid resolver JSON: %w", err)
	}
	return &raw, nil
}
