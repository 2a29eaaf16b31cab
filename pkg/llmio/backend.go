// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llmio defines the external LLM backend contract shared by the
// step engine and the routing driver's router-LLM fallback (
//
// The LLM itself is explicitly out of scope: LLMBackend is the
// external collaborator interface any concrete adapter (Claude-style,
// Gemini-style, or a test stub) must satisfy.
package llmio

import "context"

// ToolCall is one tool invocation captured in a completion's transcript.
type ToolCall struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
}

// Usage is token accounting reported by a backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is one turn sent to an LLMBackend.
type CompletionRequest struct {
	SessionID      string   `json:"session_id"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	Prompt         string   `json:"prompt"`
	AllowedTools   []string `json:"allowed_tools,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	MaxTurns       int      `json:"max_turns,omitempty"`
}

// CompletionResponse is an LLMBackend's reply to one CompletionRequest.
type CompletionResponse struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Model     string     `json:"model"`
	Provider  string     `json:"provider"`
	Usage     Usage      `json:"usage"`
}

// LLMBackend produces assistant text and a tool-call transcript for a
// prompt; it holds one hot session across the work/finalize/route calls
// of a single step.
type LLMBackend interface {
	// Complete runs one turn of the session named by req.SessionID,
	// creating the session on first use.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// CloseSession releases any resources held for a session.
	CloseSession(sessionID string)
}
