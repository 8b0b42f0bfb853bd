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
	"log/slog"

	"github.com/agentscript-lang/agentscript/engine"
	"github.com/agentscript-lang/agentscript/mcpclient"
)

// Hosts is the production engine.Hosts implementation: mcp declarations
// connect through the Model Context Protocol client, model declarations open
// LLM clients, and agent declarations run the tool-calling loop.
type Hosts struct {
	Logger *slog.Logger
}

var _ engine.Hosts = (*Hosts)(nil)

func (h *Hosts) ConnectServer(ctx context.Context, name string, config map[string]any) (engine.ToolServer, error) {
	return mcpclient.Connect(ctx, name, config, h.Logger)
}

func (h *Hosts) OpenModel(ctx context.Context, name string, config map[string]any) (engine.Model, error) {
	return OpenModel(ctx, name, config)
}

func (h *Hosts) NewAgent(ctx context.Context, name string, config engine.AgentConfig) (engine.Agent, error) {
	return NewAgent(name, config, h.Logger)
}
