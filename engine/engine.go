// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package engine executes generated AgentScript artifacts inside a sandboxed
// JavaScript interpreter.
//
// Each Execute call owns a fresh interpreter: no state is shared between
// runs, so any number of runs may proceed concurrently. The script executes
// on a single goroutine and every host bridge call is serviced synchronously
// on that goroutine, which keeps side effects in exact source order and lets
// an agent re-enter a declared tool without deadlocking the interpreter.
//
// The time budget is enforced two ways: the interpreter is interrupted so a
// busy loop stops at the next instruction, and Execute itself stops waiting
// once the deadline elapses, so a blocked host call cannot hold the caller
// hostage. An in-flight host call is not force-aborted, but its context is
// cancelled when Execute returns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// MsgInputNotConfigured is the stable message raised when generated code
// requests user input and no input bridge was configured. Callers
// pattern-match on it; do not change it.
const MsgInputNotConfigured = "User input handler not configured"

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// TimeoutError reports that a run exceeded its time budget. The run's
// partial state is discarded.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution exceeded its time budget of %s", e.Budget)
}

// HostConfigurationError reports that generated code reached a host bridge
// that was not configured for this run.
type HostConfigurationError struct {
	Msg string
}

func (e *HostConfigurationError) Error() string { return e.Msg }

// RuntimeError reports an uncaught failure raised by generated code or a
// rejected host call.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return e.Msg }

// ---------------------------------------------------------------------------
// Options and outcome
// ---------------------------------------------------------------------------

// Bridges are the host callbacks injected into the interpreter. Print, Log,
// Env, and AddMessage are optional; a nil Input fails the run with
// MsgInputNotConfigured the moment generated code calls input().
type Bridges struct {
	Print      func(values ...any)
	Log        func(level string, values ...any)
	Env        func(name string) (string, bool)
	Input      func(prompt string) (string, error)
	AddMessage func(event map[string]any)
}

// Hosts builds the collaborators behind mcp, model, and agent declarations.
// A run whose script declares none of these may leave Hosts nil.
type Hosts interface {
	// ConnectServer connects a declared tool server and returns a live
	// handle. The config map carries the declaration's entries verbatim.
	ConnectServer(ctx context.Context, name string, config map[string]any) (ToolServer, error)

	// OpenModel resolves a model declaration into an opaque handle that is
	// later passed by reference into agent configs.
	OpenModel(ctx context.Context, name string, config map[string]any) (Model, error)

	// NewAgent builds the agent collaborator a delegation expression runs
	// against.
	NewAgent(ctx context.Context, name string, config AgentConfig) (Agent, error)
}

// Model is an opaque model handle. The engine never inspects it; it only
// threads it from a model declaration into agent configs.
type Model any

// ToolServer is a connected tool-server client.
type ToolServer interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}

// ToolInfo describes one remotely served tool.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Agent is the delegation operator's call target.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Tool is a callable handed to an agent: a script-declared tool, one remote
// tool of a connected server, or a plain script function.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON Schema for the arguments object
	Invoke      func(ctx context.Context, args map[string]any) (any, error)
}

// AgentConfig is the resolved form of an agent declaration.
type AgentConfig struct {
	Model        Model
	ModelName    string
	Description  string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    *int
	Tools        []Tool

	// Extra holds declaration entries the engine does not interpret.
	Extra map[string]any
}

// Options configures a single run.
type Options struct {
	// Budget bounds wall-clock execution time. Zero means unbounded.
	Budget time.Duration

	Bridges Bridges
	Hosts   Hosts
	Logger  *slog.Logger
}

// Outcome is the result of a completed run.
type Outcome struct {
	// RunID uniquely identifies the run across logs and observer events.
	RunID string

	// Bindings holds the final values of the script's top-level variables.
	Bindings map[string]any

	Duration time.Duration
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

type runResult struct {
	value goja.Value
	err   error
}

// Execute compiles and runs an artifact source under opts. It returns a nil
// Outcome exactly when it returns an error; on timeout the partial outcome
// is discarded.
func Execute(ctx context.Context, source string, opts Options) (*Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prog, err := goja.Compile("agentscript", source, true)
	if err != nil {
		return nil, &RuntimeError{Msg: fmt.Sprintf("artifact does not compile: %v", err)}
	}

	// Host calls run under a context that dies with the run, so abandoning
	// a blocked call on timeout still unblocks it eventually.
	runCtx, cancel := context.WithCancel(ctx)

	r := &run{
		id:      uuid.NewString(),
		ctx:     runCtx,
		rt:      goja.New(),
		opts:    opts,
		logger:  logger,
		servers: make(map[string]ToolServer),
		models:  make(map[string]Model),
		agents:  make(map[string]Agent),
		tools:   make(map[string]Tool),
	}
	r.install()
	// LIFO: servers close while the run context is still live, so a stdio
	// transport can end its session gracefully instead of losing its child
	// process to the cancellation.
	defer cancel()
	defer r.closeServers()

	timeoutSentinel := &TimeoutError{Budget: opts.Budget}
	var deadline <-chan time.Time
	if opts.Budget > 0 {
		timer := time.AfterFunc(opts.Budget, func() {
			r.rt.Interrupt(timeoutSentinel)
		})
		defer timer.Stop()
		deadline = time.After(opts.Budget)
	}

	logger.Debug("run starting", "run", r.id, "budget", opts.Budget)
	start := time.Now()

	done := make(chan runResult, 1)
	go func() {
		v, err := r.rt.RunProgram(prog)
		done <- runResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if err := r.classify(res.err); err != nil {
			logger.Debug("run failed", "run", r.id, "err", err)
			return nil, err
		}
		outcome := &Outcome{
			RunID:    r.id,
			Bindings: exportBindings(res.value),
			Duration: time.Since(start),
		}
		logger.Debug("run completed", "run", r.id, "duration", outcome.Duration)
		return outcome, nil

	case <-deadline:
		// The interpreter was interrupted, but a blocked host call could
		// delay (or swallow) the interrupt. Stop waiting regardless.
		logger.Debug("run timed out", "run", r.id, "budget", opts.Budget)
		return nil, timeoutSentinel

	case <-ctx.Done():
		r.rt.Interrupt(ctx.Err())
		return nil, &RuntimeError{Msg: ctx.Err().Error()}
	}
}

// classify maps an interpreter error to the engine taxonomy. A host-side
// failure recorded by a bridge wins over the interpreter's view of it.
func (r *run) classify(err error) error {
	if err == nil {
		return nil
	}
	if r.hostErr != nil {
		return r.hostErr
	}
	switch e := err.(type) {
	case *goja.InterruptedError:
		if t, ok := e.Value().(*TimeoutError); ok {
			return t
		}
		return &RuntimeError{Msg: fmt.Sprintf("interrupted: %v", e.Value())}
	case *goja.Exception:
		return &RuntimeError{Msg: e.Value().String()}
	}
	return &RuntimeError{Msg: err.Error()}
}

// exportBindings converts the artifact's returned bindings object to a plain
// map. A malformed return value yields an empty map rather than a failure.
func exportBindings(v goja.Value) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	if m, ok := v.Export().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
