// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/agentscript-lang/agentscript/engine"
)

// fakeLLM replays a scripted sequence of responses and records every request
// it sees.
type fakeLLM struct {
	responses []*llms.ContentResponse
	requests  [][]llms.MessageContent
	err       error
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "done"}}}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

func newTestAgent(t *testing.T, llm llms.Model, cfg engine.AgentConfig) *Agent {
	t.Helper()
	cfg.Model = &ModelHandle{Name: "test", LLM: llm}
	cfg.ModelName = "test"
	ag, err := NewAgent("helper", cfg, nil)
	require.NoError(t, err)
	return ag
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

func TestAgentRun_PlainAnswer(t *testing.T) {
	llm := &fakeLLM{responses: []*llms.ContentResponse{textResponse("hello back")}}
	ag := newTestAgent(t, llm, engine.AgentConfig{SystemPrompt: "be brief"})

	out, err := ag.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)

	require.Len(t, llm.requests, 1)
	msgs := llm.requests[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
}

func TestAgentRun_ToolRoundTrip(t *testing.T) {
	llm := &fakeLLM{responses: []*llms.ContentResponse{
		toolResponse("call-1", "shout", `{"text":"hi"}`),
		textResponse("the tool said: HI!"),
	}}

	var got map[string]any
	ag := newTestAgent(t, llm, engine.AgentConfig{Tools: []engine.Tool{{
		Name:        "shout",
		InputSchema: map[string]any{"type": "object"},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			got = args
			return "HI!", nil
		},
	}}})

	out, err := ag.Run(context.Background(), "shout hi")
	require.NoError(t, err)
	assert.Equal(t, "the tool said: HI!", out)
	assert.Equal(t, map[string]any{"text": "hi"}, got)

	// Second request carries the assistant's tool call and the tool answer.
	require.Len(t, llm.requests, 2)
	msgs := llm.requests[1]
	require.Len(t, msgs, 3)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeTool, msgs[2].Role)
	respPart, ok := msgs[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call-1", respPart.ToolCallID)
	assert.Equal(t, "HI!", respPart.Content)
}

func TestAgentRun_ToolFailureFedBack(t *testing.T) {
	llm := &fakeLLM{responses: []*llms.ContentResponse{
		toolResponse("call-1", "flaky", `{}`),
		textResponse("the tool failed"),
	}}
	ag := newTestAgent(t, llm, engine.AgentConfig{Tools: []engine.Tool{{
		Name: "flaky",
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	}}})

	out, err := ag.Run(context.Background(), "try it")
	require.NoError(t, err)
	assert.Equal(t, "the tool failed", out)

	respPart := llm.requests[1][2].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, respPart.Content, "boom")
}

func TestAgentRun_UnknownToolReported(t *testing.T) {
	llm := &fakeLLM{responses: []*llms.ContentResponse{
		toolResponse("call-1", "ghost", `{}`),
		textResponse("ok"),
	}}
	ag := newTestAgent(t, llm, engine.AgentConfig{})

	_, err := ag.Run(context.Background(), "go")
	require.NoError(t, err)
	respPart := llm.requests[1][2].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, respPart.Content, `unknown tool "ghost"`)
}

func TestAgentRun_BoundedToolRounds(t *testing.T) {
	// The model keeps asking for the same tool forever.
	responses := make([]*llms.ContentResponse, 0, maxToolRounds+2)
	for i := 0; i < maxToolRounds+2; i++ {
		responses = append(responses, toolResponse("loop", "echo", `{}`))
	}
	llm := &fakeLLM{responses: responses}
	ag := newTestAgent(t, llm, engine.AgentConfig{Tools: []engine.Tool{{
		Name: "echo",
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			return "again", nil
		},
	}}})

	_, err := ag.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool rounds")
}

func TestAgentRun_ModelErrorPropagates(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider down")}
	ag := newTestAgent(t, llm, engine.AgentConfig{})

	_, err := ag.Run(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestNewAgent_RejectsForeignModelHandle(t *testing.T) {
	_, err := NewAgent("helper", engine.AgentConfig{Model: "not a handle"}, nil)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Model config
// ---------------------------------------------------------------------------

func TestParseModelConfig(t *testing.T) {
	cfg := parseModelConfig(map[string]any{
		"provider":    "openai",
		"model":       "gpt-4o",
		"apiKey":      "sk-test",
		"baseURL":     "http://localhost:8080/v1",
		"temperature": 0.25,
	})
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.25, *cfg.Temperature)
}

func TestOpenModel_RequiresModelID(t *testing.T) {
	_, err := OpenModel(context.Background(), "gpt", map[string]any{"provider": "openai"})
	require.Error(t, err)
}

func TestOpenModel_UnsupportedProvider(t *testing.T) {
	_, err := OpenModel(context.Background(), "m", map[string]any{
		"provider": "carrier-pigeon",
		"model":    "fast-one",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
