// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package runtime provides the engine's host collaborators: LLM-backed
// models and agents, tool-server clients, and the process environment
// bridge.
package runtime

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelHandle is the opaque value a model declaration resolves to. It is
// passed by reference into agent configs.
type ModelHandle struct {
	Name string
	LLM  llms.Model

	// Declaration-level generation defaults; an agent config may override.
	Temperature *float64
}

// ModelConfig carries the declaration entries of a model block.
type ModelConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature *float64
}

// parseModelConfig lifts the declaration's raw entries. Unknown keys are
// ignored; wrong value types read as zero values and fail later against the
// provider, which reports a more useful message than we could here.
func parseModelConfig(config map[string]any) ModelConfig {
	cfg := ModelConfig{}
	if v, ok := config["provider"].(string); ok {
		cfg.Provider = v
	}
	if v, ok := config["model"].(string); ok {
		cfg.Model = v
	}
	if v, ok := config["apiKey"].(string); ok {
		cfg.APIKey = v
	}
	if v, ok := config["baseURL"].(string); ok {
		cfg.BaseURL = v
	}
	if v, ok := toFloat(config["temperature"]); ok {
		cfg.Temperature = &v
	}
	return cfg
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// OpenModel resolves a model declaration into a live client. The "openai"
// provider covers any OpenAI-compatible endpoint when baseURL is set, which
// is how local inference servers are declared.
func OpenModel(ctx context.Context, name string, config map[string]any) (*ModelHandle, error) {
	cfg := parseModelConfig(config)
	if cfg.Model == "" {
		return nil, fmt.Errorf("model %q: missing model identifier", name)
	}

	switch cfg.Provider {
	case "", "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", name, err)
		}
		return &ModelHandle{Name: name, LLM: llm, Temperature: cfg.Temperature}, nil
	}
	return nil, fmt.Errorf("model %q: unsupported provider %q", name, cfg.Provider)
}
