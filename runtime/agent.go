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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/agentscript-lang/agentscript/engine"
)

// maxToolRounds bounds the model/tool round-trips of a single Run. A model
// that keeps requesting tools past this is looping, not converging.
const maxToolRounds = 8

// Agent runs a tool-calling conversation loop against its model. It is the
// collaborator behind the delegation operator.
type Agent struct {
	name   string
	cfg    engine.AgentConfig
	llm    llms.Model
	tools  map[string]engine.Tool
	defs   []llms.Tool
	logger *slog.Logger
}

// NewAgent builds an agent from a resolved declaration config. The config's
// Model must be a *ModelHandle produced by OpenModel.
func NewAgent(name string, cfg engine.AgentConfig, logger *slog.Logger) (*Agent, error) {
	handle, ok := cfg.Model.(*ModelHandle)
	if !ok {
		return nil, fmt.Errorf("agent %q: model %q did not resolve to a handle", name, cfg.ModelName)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{
		name:   name,
		cfg:    cfg,
		llm:    handle.LLM,
		tools:  make(map[string]engine.Tool, len(cfg.Tools)),
		logger: logger,
	}
	if cfg.Temperature == nil {
		a.cfg.Temperature = handle.Temperature
	}
	for _, t := range cfg.Tools {
		a.tools[t.Name] = t
		a.defs = append(a.defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return a, nil
}

// Run sends the prompt to the model and services tool calls until the model
// answers with text.
func (a *Agent) Run(ctx context.Context, prompt string) (string, error) {
	var history []llms.MessageContent
	if a.cfg.SystemPrompt != "" {
		history = append(history, llms.TextParts(llms.ChatMessageTypeSystem, a.cfg.SystemPrompt))
	}
	history = append(history, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{}
	if len(a.defs) > 0 {
		opts = append(opts, llms.WithTools(a.defs))
	}
	if a.cfg.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*a.cfg.Temperature))
	}
	if a.cfg.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*a.cfg.MaxTokens))
	}

	for round := 0; round <= maxToolRounds; round++ {
		resp, err := a.llm.GenerateContent(ctx, history, opts...)
		if err != nil {
			return "", fmt.Errorf("agent %q: %w", a.name, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("agent %q: model returned no choices", a.name)
		}
		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return choice.Content, nil
		}

		// Echo the assistant's tool requests, then answer each one.
		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		history = append(history, assistant)

		for _, tc := range choice.ToolCalls {
			result := a.callTool(ctx, tc)
			history = append(history, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       tc.FunctionCall.Name,
					Content:    result,
				}},
			})
		}
	}
	return "", fmt.Errorf("agent %q: exceeded %d tool rounds without an answer", a.name, maxToolRounds)
}

// callTool executes one requested tool and renders its result (or failure)
// for the model. Tool failures go back into the conversation instead of
// aborting the run: the model may recover or report them.
func (a *Agent) callTool(ctx context.Context, tc llms.ToolCall) string {
	name := tc.FunctionCall.Name
	tool, ok := a.tools[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}

	var args map[string]any
	if raw := tc.FunctionCall.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Sprintf("error: arguments are not valid JSON: %v", err)
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	a.logger.Debug("tool call", "agent", a.name, "tool", name)
	result, err := tool.Invoke(ctx, args)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	switch res := result.(type) {
	case string:
		return res
	case nil:
		return ""
	default:
		out, err := json.Marshal(res)
		if err != nil {
			return fmt.Sprintf("%v", res)
		}
		return string(out)
	}
}
