// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package llmio

import "context"

// StubBackend is a deterministic, scripted LLMBackend for tests and dry
// runs; it never calls out to a real provider.
type StubBackend struct {
	// Replies is consumed in order, one per Complete call; the last entry
	// repeats once exhausted so a short script still serves extra calls.
	Replies []CompletionResponse
	calls   int

	// Requests records every CompletionRequest seen, for assertions.
	Requests []CompletionRequest
}

// Complete implements LLMBackend.
func (s *StubBackend) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	s.Requests = append(s.Requests, req)
	if len(s.Replies) == 0 {
		return CompletionResponse{Text: "{}", Provider: "stub"}, nil
	}
	idx := s.calls
	if idx >= len(s.Replies) {
		idx = len(s.Replies) - 1
	}
	s.calls++
	return s.Replies[idx], nil
}

// CloseSession implements LLMBackend.
func (s *StubBackend) CloseSession(string) {}
