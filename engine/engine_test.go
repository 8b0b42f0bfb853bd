// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentscript-lang/agentscript/lang/codegen"
	"github.com/agentscript-lang/agentscript/lang/parser"
	"github.com/agentscript-lang/agentscript/lang/validator"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeServer struct {
	tools  []ToolInfo
	calls  []string
	closed bool
	err    error
}

func (s *fakeServer) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return s.tools, nil
}

func (s *fakeServer) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.calls = append(s.calls, name)
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"tool": name, "args": args}, nil
}

func (s *fakeServer) Close() error {
	s.closed = true
	return nil
}

// fakeAgent answers by invoking its first tool when it has one, otherwise by
// echoing the prompt.
type fakeAgent struct {
	name    string
	cfg     AgentConfig
	prompts []string
	err     error
}

func (a *fakeAgent) Run(ctx context.Context, prompt string) (string, error) {
	a.prompts = append(a.prompts, prompt)
	if a.err != nil {
		return "", a.err
	}
	if len(a.cfg.Tools) > 0 {
		tool := a.cfg.Tools[0]
		res, err := tool.Invoke(ctx, map[string]any{"text": prompt})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", res), nil
	}
	return a.name + ": " + prompt, nil
}

type fakeHosts struct {
	server   *fakeServer
	agentErr error
	agents   map[string]*fakeAgent
}

func (h *fakeHosts) ConnectServer(ctx context.Context, name string, config map[string]any) (ToolServer, error) {
	if h.server == nil {
		return nil, fmt.Errorf("no server for %q", name)
	}
	return h.server, nil
}

func (h *fakeHosts) OpenModel(ctx context.Context, name string, config map[string]any) (Model, error) {
	return "model:" + name, nil
}

func (h *fakeHosts) NewAgent(ctx context.Context, name string, config AgentConfig) (Agent, error) {
	if h.agentErr != nil {
		return nil, h.agentErr
	}
	ag := &fakeAgent{name: name, cfg: config}
	if h.agents == nil {
		h.agents = make(map[string]*fakeAgent)
	}
	h.agents[name] = ag
	return ag, nil
}

// slowHosts delays server connection, so a budgeted run can expire while the
// script goroutine is still inside the host call.
type slowHosts struct {
	fakeHosts
	delay time.Duration
}

func (h *slowHosts) ConnectServer(ctx context.Context, name string, config map[string]any) (ToolServer, error) {
	time.Sleep(h.delay)
	return h.fakeHosts.ConnectServer(ctx, name, config)
}

// serverHosts serves one fixed ToolServer and nothing else.
type serverHosts struct {
	srv ToolServer
}

func (h *serverHosts) ConnectServer(ctx context.Context, name string, config map[string]any) (ToolServer, error) {
	return h.srv, nil
}

func (h *serverHosts) OpenModel(ctx context.Context, name string, config map[string]any) (Model, error) {
	return nil, errors.New("no models")
}

func (h *serverHosts) NewAgent(ctx context.Context, name string, config AgentConfig) (Agent, error) {
	return nil, errors.New("no agents")
}

// ctxServer remembers the context of its last call and whether that context
// was already cancelled when Close ran.
type ctxServer struct {
	fakeServer
	callCtx          context.Context
	cancelledAtClose bool
}

func (s *ctxServer) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.callCtx = ctx
	return s.fakeServer.CallTool(ctx, name, args)
}

func (s *ctxServer) Close() error {
	s.cancelledAtClose = s.callCtx != nil && s.callCtx.Err() != nil
	return s.fakeServer.Close()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// compile runs the full front end over src and returns the artifact source.
func compile(t *testing.T, src string) string {
	t.Helper()
	prog, err := parser.Parse("test.asl", src)
	require.NoError(t, err)
	require.NoError(t, validator.New().Validate(prog))
	art, err := codegen.Generate(prog)
	require.NoError(t, err)
	return art.Source
}

func runScript(t *testing.T, src string, opts Options) (*Outcome, error) {
	t.Helper()
	return Execute(context.Background(), compile(t, src), opts)
}

// ---------------------------------------------------------------------------
// Plain execution
// ---------------------------------------------------------------------------

func TestExecute_BindingsObservable(t *testing.T) {
	out, err := runScript(t, `
x = 1
y = x + 2
if (y > 2) { hidden = true }
`, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, int64(1), out.Bindings["x"])
	assert.Equal(t, int64(3), out.Bindings["y"])
	// hidden was declared inside a block and is not a top-level binding.
	assert.NotContains(t, out.Bindings, "hidden")
}

func TestExecute_BlockScopeSemantics(t *testing.T) {
	// The inner block declares its own x; the outer x keeps its value, then
	// is reassigned by the single-statement if body which shares the outer
	// scope.
	out, err := runScript(t, `
x = 1
{
  inner = x + 10
}
if (x == 1) x = 42
`, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.Bindings["x"])
}

func TestExecute_LoopsAndControlFlow(t *testing.T) {
	out, err := runScript(t, `
sum = 0
for (i = 0; i < 10; i = i + 1) {
  if (i == 5) continue
  if (i == 8) break
  sum = sum + i
}
n = 0
while (true) {
  n = n + 1
  if (n >= 3) break
}
`, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(23), out.Bindings["sum"]) // 0+1+2+3+4+6+7
	assert.Equal(t, int64(3), out.Bindings["n"])
}

func TestExecute_ConcurrentRunsAreIndependent(t *testing.T) {
	src := compile(t, `
x = 0
for (i = 0; i < 1000; i = i + 1) x = x + 1
`)
	results := make(chan *Outcome, 8)
	for i := 0; i < 8; i++ {
		go func() {
			out, err := Execute(context.Background(), src, Options{})
			if err != nil {
				results <- nil
				return
			}
			results <- out
		}()
	}
	for i := 0; i < 8; i++ {
		out := <-results
		require.NotNil(t, out)
		assert.Equal(t, int64(1000), out.Bindings["x"])
	}
}

// ---------------------------------------------------------------------------
// Bridges
// ---------------------------------------------------------------------------

func TestExecute_PrintAndLogBridges(t *testing.T) {
	var printed []any
	var logged []string
	opts := Options{Bridges: Bridges{
		Print: func(values ...any) { printed = append(printed, values...) },
		Log: func(level string, values ...any) {
			logged = append(logged, fmt.Sprintf("%s:%v", level, values[0]))
		},
	}}
	_, err := runScript(t, `
print("a", 1)
log.debug("d")
log.info("i")
log.warn("w")
log.error("e")
`, opts)
	require.NoError(t, err)

	assert.Equal(t, []any{"a", int64(1)}, printed)
	assert.Equal(t, []string{"debug:d", "info:i", "warn:w", "error:e"}, logged)
}

func TestExecute_EnvReadOnly(t *testing.T) {
	vars := map[string]string{"HOME": "/home/probe"}
	opts := Options{Bridges: Bridges{
		Env: func(name string) (string, bool) {
			v, ok := vars[name]
			return v, ok
		},
	}}

	out, err := runScript(t, `
home = env["HOME"]
missing = env["NOPE"] ?? "fallback"
`, opts)
	require.NoError(t, err)
	assert.Equal(t, "/home/probe", out.Bindings["home"])
	assert.Equal(t, "fallback", out.Bindings["missing"])

	// Any write attempt fails rather than silently succeeding.
	_, err = runScript(t, `env["HOME"] = "elsewhere"`, opts)
	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
}

func TestExecute_InputBridge(t *testing.T) {
	opts := Options{Bridges: Bridges{
		Input: func(prompt string) (string, error) {
			assert.Equal(t, "name?", prompt)
			return "gopher", nil
		},
	}}
	out, err := runScript(t, `answer = input("name?")`, opts)
	require.NoError(t, err)
	assert.Equal(t, "gopher", out.Bindings["answer"])
}

func TestExecute_InputUnconfigured(t *testing.T) {
	_, err := runScript(t, `answer = input("name?")`, Options{})

	var hce *HostConfigurationError
	require.ErrorAs(t, err, &hce)
	assert.Equal(t, MsgInputNotConfigured, err.Error())
}

func TestExecute_AddMessageOptional(t *testing.T) {
	// Absent observer hook is a no-op, not a failure.
	_, err := runScript(t, `addMessage({ kind: "progress" })`, Options{})
	require.NoError(t, err)

	var events []map[string]any
	opts := Options{Bridges: Bridges{
		AddMessage: func(event map[string]any) { events = append(events, event) },
	}}
	_, err = runScript(t, `addMessage({ kind: "progress", step: 1 })`, opts)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "progress", events[0]["kind"])
}

// ---------------------------------------------------------------------------
// Declarations and collaborators
// ---------------------------------------------------------------------------

func TestExecute_McpToolCall(t *testing.T) {
	hosts := &fakeHosts{server: &fakeServer{}}
	out, err := runScript(t, `
mcp files { command: "server", args: ["--fast"] }
result = files.search({ query: "readme" })
`, Options{Hosts: hosts})
	require.NoError(t, err)

	assert.Equal(t, []string{"search"}, hosts.server.calls)
	res := out.Bindings["result"].(map[string]any)
	assert.Equal(t, "search", res["tool"])
	assert.True(t, hosts.server.closed, "server must be closed when the run ends")
}

func TestExecute_DelegationThroughAgent(t *testing.T) {
	hosts := &fakeHosts{}
	out, err := runScript(t, `
model gpt { provider: "openai", model: "gpt-4o" }
agent writer { model: gpt, systemPrompt: "be brief" }
reply = "draft a note" -> writer
`, Options{Hosts: hosts})
	require.NoError(t, err)

	assert.Equal(t, "writer: draft a note", out.Bindings["reply"])
	ag := hosts.agents["writer"]
	require.NotNil(t, ag)
	assert.Equal(t, "gpt", ag.cfg.ModelName)
	assert.Equal(t, Model("model:gpt"), ag.cfg.Model)
	assert.Equal(t, "be brief", ag.cfg.SystemPrompt)
}

func TestExecute_AgentInvokesDeclaredTool(t *testing.T) {
	// The fake agent re-enters the script's tool while the engine is
	// suspended on the delegation bridge.
	hosts := &fakeHosts{}
	out, err := runScript(t, `
model gpt { provider: "openai", model: "gpt-4o" }
tool shout(text: string) { text + "!" }
agent loud { model: gpt, tools: [shout] }
reply = "hello" -> loud
`, Options{Hosts: hosts})
	require.NoError(t, err)
	assert.Equal(t, "hello!", out.Bindings["reply"])

	tools := hosts.agents["loud"].cfg.Tools
	require.Len(t, tools, 1)
	assert.Equal(t, "shout", tools[0].Name)
	props := tools[0].InputSchema["properties"].(map[string]any)
	assert.Contains(t, props, "text")
}

func TestExecute_AgentAbsorbsServerTools(t *testing.T) {
	hosts := &fakeHosts{server: &fakeServer{tools: []ToolInfo{
		{Name: "read_file", InputSchema: map[string]any{"type": "object"}},
		{Name: "write_file", InputSchema: map[string]any{"type": "object"}},
	}}}
	_, err := runScript(t, `
mcp files { command: "server" }
model gpt { provider: "openai", model: "gpt-4o" }
agent librarian { model: gpt, tools: [files] }
`, Options{Hosts: hosts})
	require.NoError(t, err)

	tools := hosts.agents["librarian"].cfg.Tools
	require.Len(t, tools, 2)
	assert.Equal(t, "read_file", tools[0].Name)
	assert.Equal(t, "write_file", tools[1].Name)
}

func TestExecute_ServerHandleMarkerKeysReadUndefined(t *testing.T) {
	// A server handle synthesizes a remote-tool callable for any property,
	// but never for reserved __ keys: __tool on a handle must not make it
	// pass for a declared tool.
	hosts := &fakeHosts{server: &fakeServer{}}
	out, err := runScript(t, `
mcp files { command: "server" }
marker = files.__tool ?? "absent"
`, Options{Hosts: hosts})
	require.NoError(t, err)
	assert.Equal(t, "absent", out.Bindings["marker"])
	assert.Empty(t, hosts.server.calls, "marker reads must not hit the server")
}

func TestExecute_AgentMixesDeclaredAndServerTools(t *testing.T) {
	hosts := &fakeHosts{server: &fakeServer{tools: []ToolInfo{
		{Name: "read_file", InputSchema: map[string]any{"type": "object"}},
		{Name: "write_file", InputSchema: map[string]any{"type": "object"}},
	}}}
	_, err := runScript(t, `
mcp files { command: "server" }
model gpt { provider: "openai", model: "gpt-4o" }
tool shout(text: string) { text + "!" }
agent clerk { model: gpt, tools: [shout, files] }
`, Options{Hosts: hosts})
	require.NoError(t, err)

	tools := hosts.agents["clerk"].cfg.Tools
	require.Len(t, tools, 3)
	assert.Equal(t, "shout", tools[0].Name)
	assert.Equal(t, "read_file", tools[1].Name)
	assert.Equal(t, "write_file", tools[2].Name)
}

func TestExecute_DelegationChainFeedsAnswersForward(t *testing.T) {
	// "memo" | first | second runs left to right: the second agent receives
	// the first agent's answer. Were each delegation given the original
	// prompt instead, second would see "memo" and reply "second: memo".
	hosts := &fakeHosts{}
	out, err := runScript(t, `
model gpt { provider: "openai", model: "gpt-4o" }
agent first { model: gpt }
agent second { model: gpt }
reply = "memo" | first | second
`, Options{Hosts: hosts})
	require.NoError(t, err)

	assert.Equal(t, "second: first: memo", out.Bindings["reply"])
	assert.Equal(t, []string{"memo"}, hosts.agents["first"].prompts)
	assert.Equal(t, []string{"first: memo"}, hosts.agents["second"].prompts)
}

func TestExecute_DirectToolCall(t *testing.T) {
	out, err := runScript(t, `
tool add(a: number, b: number) { a + b }
sum = add(2, 3)
`, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Bindings["sum"])
}

func TestExecute_DeclarationWithoutHosts(t *testing.T) {
	_, err := runScript(t, `mcp files { command: "server" }`, Options{})
	var hce *HostConfigurationError
	require.ErrorAs(t, err, &hce)
}

// ---------------------------------------------------------------------------
// Failure classification
// ---------------------------------------------------------------------------

func TestExecute_TimeoutOnBusyLoop(t *testing.T) {
	start := time.Now()
	_, err := runScript(t, `
x = 0
while (true) x = x + 1
`, Options{Budget: 50 * time.Millisecond})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecute_TimeoutAbandonsBlockedHostCall(t *testing.T) {
	// The input bridge never returns; the engine must stop waiting at the
	// deadline anyway.
	release := make(chan struct{})
	defer close(release)
	opts := Options{
		Budget: 50 * time.Millisecond,
		Bridges: Bridges{Input: func(prompt string) (string, error) {
			<-release
			return "", nil
		}},
	}

	start := time.Now()
	_, err := runScript(t, `answer = input("stuck?")`, opts)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecute_TimeoutDuringServerConnect(t *testing.T) {
	// The deadline elapses while the script goroutine is inside
	// ConnectServer. Execute returns and runs its cleanup while that
	// goroutine later finishes the call and registers the server; the
	// registries must tolerate the overlap (run under -race).
	hosts := &slowHosts{
		fakeHosts: fakeHosts{server: &fakeServer{}},
		delay:     100 * time.Millisecond,
	}
	_, err := runScript(t, `mcp files { command: "server" }`, Options{
		Budget: 20 * time.Millisecond,
		Hosts:  hosts,
	})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)

	// Let the abandoned goroutine complete its registration.
	time.Sleep(200 * time.Millisecond)
}

func TestExecute_ServersCloseBeforeContextCancel(t *testing.T) {
	// On normal completion the server must be closed while the run context
	// is still live, so transports backed by that context shut down
	// gracefully.
	srv := &ctxServer{}
	_, err := runScript(t, `
mcp files { command: "server" }
x = files.ping({})
`, Options{Hosts: &serverHosts{srv: srv}})
	require.NoError(t, err)

	assert.True(t, srv.closed)
	assert.False(t, srv.cancelledAtClose, "run context must outlive server close")
}

func TestExecute_ZeroBudgetIsUnbounded(t *testing.T) {
	out, err := runScript(t, `
x = 0
for (i = 0; i < 100000; i = i + 1) x = x + 1
`, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), out.Bindings["x"])
}

func TestExecute_HostRejectionIsRuntimeError(t *testing.T) {
	hosts := &fakeHosts{server: &fakeServer{err: errors.New("disk on fire")}}
	_, err := runScript(t, `
mcp files { command: "server" }
x = files.read({})
`, Options{Hosts: hosts})

	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
	assert.True(t, strings.Contains(err.Error(), "disk on fire"), "got: %v", err)
}

func TestExecute_AgentFailureIsRuntimeError(t *testing.T) {
	hosts := &fakeHosts{agentErr: errors.New("provider down")}
	_, err := runScript(t, `
model gpt { provider: "openai", model: "gpt-4o" }
agent writer { model: gpt }
`, Options{Hosts: hosts})

	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
}

func TestExecute_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	opts := Options{Bridges: Bridges{Input: func(prompt string) (string, error) {
		cancel()
		<-release
		return "", nil
	}}}

	_, err := Execute(ctx, compile(t, `answer = input("?")`), opts)
	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
}
