// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package mcpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Command(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"command": "npx",
		"args":    []any{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
		"env":     map[string]any{"DEBUG": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "npx", cfg.Command)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}, cfg.Args)
	assert.Equal(t, map[string]string{"DEBUG": "1"}, cfg.Env)
	assert.Empty(t, cfg.URL)
}

func TestParseConfig_URL(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"url": "https://mcp.example.com/stream"})
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.example.com/stream", cfg.URL)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig(map[string]any{})
	require.Error(t, err)

	_, err = ParseConfig(map[string]any{"command": "npx", "url": "https://x"})
	require.Error(t, err)

	_, err = ParseConfig(map[string]any{"command": "npx", "args": []any{1}})
	require.Error(t, err)

	_, err = ParseConfig(map[string]any{"command": "npx", "env": map[string]any{"N": 1}})
	require.Error(t, err)
}

func TestContentText(t *testing.T) {
	// Exercised indirectly by CallTool; keep the joining behavior pinned.
	assert.Equal(t, "", contentText(nil))
}
