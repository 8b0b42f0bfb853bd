// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package mcpclient connects mcp declarations to Model Context Protocol
// servers. A declaration with a command entry runs the server as a child
// process over stdio; a declaration with a url entry speaks streamable HTTP.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentscript-lang/agentscript/engine"
)

// Client is a live session against one declared server. It implements
// engine.ToolServer.
type Client struct {
	name    string
	session *mcp.ClientSession
	logger  *slog.Logger
}

var _ engine.ToolServer = (*Client)(nil)

// Config carries the declaration entries of an mcp block. Exactly one of
// Command or URL must be set.
type Config struct {
	Command string
	Args    []string
	Env     map[string]string
	URL     string
}

// ParseConfig lifts the declaration's raw entries into a Config.
func ParseConfig(config map[string]any) (Config, error) {
	cfg := Config{}
	if v, ok := config["command"].(string); ok {
		cfg.Command = v
	}
	if v, ok := config["url"].(string); ok {
		cfg.URL = v
	}
	if list, ok := config["args"].([]any); ok {
		for _, a := range list {
			s, ok := a.(string)
			if !ok {
				return cfg, fmt.Errorf("args entries must be strings, got %T", a)
			}
			cfg.Args = append(cfg.Args, s)
		}
	}
	if m, ok := config["env"].(map[string]any); ok {
		cfg.Env = make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return cfg, fmt.Errorf("env values must be strings, got %T for %q", v, k)
			}
			cfg.Env[k] = s
		}
	}

	switch {
	case cfg.Command == "" && cfg.URL == "":
		return cfg, errors.New("declaration needs a command or a url")
	case cfg.Command != "" && cfg.URL != "":
		return cfg, errors.New("declaration cannot have both a command and a url")
	}
	return cfg, nil
}

// Connect establishes a session per the declaration config.
func Connect(ctx context.Context, name string, config map[string]any, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("mcp %q: %w", name, err)
	}

	var transport mcp.Transport
	if cfg.Command != "" {
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcp.CommandTransport{Command: cmd}
	} else {
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "agentscript", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp %q: connect: %w", name, err)
	}

	logger.Debug("mcp session established", "server", name)
	return &Client{name: name, session: session, logger: logger}, nil
}

// ListTools returns the server's tool descriptors with their input schemas
// flattened to plain maps.
func (c *Client) ListTools(ctx context.Context) ([]engine.ToolInfo, error) {
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp %q: list tools: %w", c.name, err)
	}

	infos := make([]engine.ToolInfo, 0, len(res.Tools))
	for _, tool := range res.Tools {
		info := engine.ToolInfo{Name: tool.Name, Description: tool.Description}
		if tool.InputSchema != nil {
			info.InputSchema, err = schemaToMap(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("mcp %q: tool %q schema: %w", c.name, tool.Name, err)
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// CallTool invokes one remote tool. Structured results are returned as-is;
// otherwise the text contents are joined.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp %q: call %q: %w", c.name, name, err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return nil, fmt.Errorf("mcp %q: tool %q failed: %s", c.name, name, text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return text, nil
}

// Close ends the session; for command servers this also reaps the child
// process.
func (c *Client) Close() error {
	return c.session.Close()
}

func contentText(contents []mcp.Content) string {
	var parts []string
	for _, content := range contents {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// schemaToMap round-trips a JSON Schema value into the plain map form the
// engine hands to agents.
func schemaToMap(schema any) (map[string]any, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
