// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/naoina/toml"
)

// These settings ensure that TOML keys use the same names as Go struct
// fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// duration is a TOML-friendly time.Duration.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type logConfig struct {
	Level string
}

type runConfig struct {
	Timeout duration
}

// providerConfig supplies credentials for a model provider. Values reach the
// script through the provider's conventional environment variables, so a
// model declaration only needs apiKey when it wants to override them.
type providerConfig struct {
	APIKey  string
	BaseURL string
}

type aslConfig struct {
	Log       logConfig
	Run       runConfig
	Providers map[string]providerConfig
}

func loadConfig(file string) (*aslConfig, error) {
	cfg := &aslConfig{}
	if file == "" {
		return cfg, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}

// applyProviderEnv exports configured provider credentials as the
// environment variables the provider clients read. Variables already set in
// the process environment win.
func (c *aslConfig) applyProviderEnv() {
	for name, p := range c.Providers {
		prefix := strings.ToUpper(name)
		if p.APIKey != "" {
			setenvDefault(prefix+"_API_KEY", p.APIKey)
		}
		if p.BaseURL != "" {
			setenvDefault(prefix+"_BASE_URL", p.BaseURL)
		}
	}
}

func setenvDefault(key, value string) {
	if _, ok := os.LookupEnv(key); !ok {
		os.Setenv(key, value)
	}
}
