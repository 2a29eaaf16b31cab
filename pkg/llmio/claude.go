// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package llmio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeConfig configures a ClaudeBackend.
type ClaudeConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// session holds the running turn history for one CompletionRequest.SessionID,
// so a step's work/finalize/route calls see a single growing conversation
// rather than three unrelated one-shot completions.
type session struct {
	messages []anthropic.MessageParam
}

// ClaudeBackend implements LLMBackend against the Anthropic Messages API
// directly (no Bedrock indirection); it is the production engine behind
// stepengine's default engine.
type ClaudeBackend struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64

	mu       sync.Mutex
	sessions map[string]*session
}

// NewClaudeBackend builds a ClaudeBackend. cfg.Model defaults to Claude
// Sonnet if empty; cfg.MaxTokens defaults to 4096.
func NewClaudeBackend(cfg ClaudeConfig) *ClaudeBackend {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &ClaudeBackend{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		sessions:  make(map[string]*session),
	}
}

// Complete implements LLMBackend.
func (c *ClaudeBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	c.mu.Lock()
	sess, ok := c.sessions[req.SessionID]
	if !ok {
		sess = &session{}
		c.sessions[req.SessionID] = sess
	}
	sess.messages = append(sess.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))
	messages := append([]anthropic.MessageParam(nil), sess.messages...)
	c.mu.Unlock()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("llmio: claude completion: %w", err)
	}

	resp := CompletionResponse{
		Model:    string(c.model),
		Provider: "anthropic",
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	var assistantBlocks []anthropic.ContentBlockParamUnion
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(block.Text))
		case "tool_use":
			var args map[string]any
			if block.Input != nil {
				_ = json.Unmarshal(block.Input, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
			input := any(args)
			if args == nil {
				input = map[string]any{}
			}
			assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(block.ID, input, block.Name))
		}
	}

	c.mu.Lock()
	if len(assistantBlocks) > 0 {
		sess.messages = append(sess.messages, anthropic.NewAssistantMessage(assistantBlocks...))
	}
	c.mu.Unlock()

	return resp, nil
}

// CloseSession implements LLMBackend.
func (c *ClaudeBackend) CloseSession(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

var _ LLMBackend = (*ClaudeBackend)(nil)
