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
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/dop251/goja"

	"github.com/agentscript-lang/agentscript/lang/schema"
)

// run is the per-execution state. All bridge calls happen on the run's
// single script goroutine, but when the budget elapses Execute returns while
// that goroutine may still be finishing an abandoned host call, so the
// registries it writes are guarded against the cleanup that follows.
type run struct {
	id     string
	ctx    context.Context
	rt     *goja.Runtime
	opts   Options
	logger *slog.Logger

	// hostErr records the first fatal host-side failure so classification
	// can report it instead of the interpreter's wrapped view.
	hostErr error

	mu      sync.Mutex
	servers map[string]ToolServer
	models  map[string]Model
	agents  map[string]Agent
	tools   map[string]Tool
}

func (r *run) storeServer(name string, srv ToolServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[name] = srv
}

func (r *run) lookupServer(name string) (ToolServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[name]
	return srv, ok
}

func (r *run) storeModel(name string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

func (r *run) lookupModel(name string) (Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[name]
	return m, ok
}

func (r *run) storeAgent(name string, ag Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = ag
}

func (r *run) storeTool(name string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
}

func (r *run) lookupTool(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// install wires the generated code's entire host surface into the
// interpreter's global object.
func (r *run) install() {
	r.rt.Set("__await", r.await)
	r.rt.Set("__mcp", r.mcp)
	r.rt.Set("__model", r.model)
	r.rt.Set("__agent", r.agent)
	r.rt.Set("__tool", r.tool)

	r.rt.Set("print", r.print)
	r.rt.Set("input", r.input)
	r.rt.Set("addMessage", r.addMessage)
	r.rt.Set("env", r.rt.NewDynamicObject(&envObject{run: r}))

	logObj := r.rt.NewObject()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		level := level
		logObj.Set(level, func(call goja.FunctionCall) goja.Value {
			r.logValues(level, call.Arguments)
			return goja.Undefined()
		})
	}
	r.rt.Set("log", logObj)
}

func (r *run) closeServers() {
	// Snapshot under the lock: an abandoned script goroutine can still be
	// registering a server while cleanup runs.
	r.mu.Lock()
	servers := make(map[string]ToolServer, len(r.servers))
	for name, srv := range r.servers {
		servers[name] = srv
	}
	r.mu.Unlock()

	for name, srv := range servers {
		if err := srv.Close(); err != nil {
			r.logger.Warn("closing tool server", "run", r.id, "server", name, "err", err)
		}
	}
}

// throw raises err as a script exception. It never returns.
func (r *run) throw(err error) {
	panic(r.rt.NewGoError(err))
}

// fail records err as the run's fatal host error and raises it.
func (r *run) fail(err error) {
	if r.hostErr == nil {
		r.hostErr = err
	}
	r.throw(err)
}

// ---------------------------------------------------------------------------
// Suspension marker
// ---------------------------------------------------------------------------

// await is the suspension marker wrapped around every generated call site.
// Host calls complete synchronously on the script goroutine, so await
// usually passes its argument through; a settled promise from a raw script
// value is unwrapped for uniformity.
func (r *run) await(call goja.FunctionCall) goja.Value {
	v := call.Argument(0)
	if p, ok := v.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result()
		case goja.PromiseStateRejected:
			r.throw(&RuntimeError{Msg: p.Result().String()})
		default:
			r.throw(&RuntimeError{Msg: "cannot await a pending promise"})
		}
	}
	return v
}

// ---------------------------------------------------------------------------
// Declaration bridges
// ---------------------------------------------------------------------------

func (r *run) hosts(what, name string) Hosts {
	if r.opts.Hosts == nil {
		r.fail(&HostConfigurationError{
			Msg: fmt.Sprintf("no host configured for %s %q", what, name),
		})
	}
	return r.opts.Hosts
}

// mcp connects a declared tool server and returns its handle. The handle
// exposes every remote tool as a callable property.
func (r *run) mcp(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	config := exportObject(call.Argument(1))

	srv, err := r.hosts("mcp server", name).ConnectServer(r.ctx, name, config)
	if err != nil {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("mcp server %q: %v", name, err)})
	}
	r.storeServer(name, srv)
	r.logger.Debug("tool server connected", "run", r.id, "server", name)
	return r.rt.NewDynamicObject(&serverHandle{run: r, name: name, server: srv})
}

// model resolves a model declaration and returns a reference handle for
// agent configs.
func (r *run) model(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	config := exportObject(call.Argument(1))

	handle, err := r.hosts("model", name).OpenModel(r.ctx, name, config)
	if err != nil {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("model %q: %v", name, err)})
	}
	r.storeModel(name, handle)

	ref := r.rt.NewObject()
	ref.Set("__model", name)
	return ref
}

// agent resolves an agent declaration into the collaborator behind the
// delegation operator and returns a handle exposing run(prompt).
func (r *run) agent(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	obj := call.Argument(1).ToObject(r.rt)

	cfg := AgentConfig{Extra: map[string]any{}}
	for _, key := range obj.Keys() {
		v := obj.Get(key)
		switch key {
		case "model":
			cfg.ModelName, cfg.Model = r.resolveModelRef(name, v)
		case "description":
			cfg.Description = v.String()
		case "systemPrompt":
			cfg.SystemPrompt = v.String()
		case "temperature":
			t := v.ToFloat()
			cfg.Temperature = &t
		case "maxTokens":
			n := int(v.ToInteger())
			cfg.MaxTokens = &n
		case "tools":
			cfg.Tools = r.flattenTools(name, v)
		default:
			cfg.Extra[key] = v.Export()
		}
	}

	ag, err := r.hosts("agent", name).NewAgent(r.ctx, name, cfg)
	if err != nil {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: %v", name, err)})
	}
	r.storeAgent(name, ag)

	handle := r.rt.NewObject()
	handle.Set("__agent", name)
	handle.Set("run", func(call goja.FunctionCall) goja.Value {
		prompt := call.Argument(0).String()
		r.logger.Debug("delegating", "run", r.id, "agent", name)
		out, err := ag.Run(r.ctx, prompt)
		if err != nil {
			r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: %v", name, err)})
		}
		return r.rt.ToValue(out)
	})
	return handle
}

func (r *run) resolveModelRef(agent string, v goja.Value) (string, Model) {
	if obj, ok := v.(*goja.Object); ok {
		if ref := obj.Get("__model"); ref != nil && !goja.IsUndefined(ref) {
			name := ref.String()
			m, _ := r.lookupModel(name)
			return name, m
		}
	}
	r.throw(&RuntimeError{
		Msg: fmt.Sprintf("agent %q: model value does not reference a model declaration", agent),
	})
	return "", nil
}

// flattenTools resolves an agent's tools list. Each entry is a declared
// tool, a whole tool-server handle (contributing all of its remote tools),
// or a plain named script function.
func (r *run) flattenTools(agent string, v goja.Value) []Tool {
	list := v.ToObject(r.rt)
	length := int(list.Get("length").ToInteger())

	var tools []Tool
	for i := 0; i < length; i++ {
		item := list.Get(strconv.Itoa(i))
		obj, ok := item.(*goja.Object)
		if !ok {
			r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: tools[%d] is not a tool", agent, i)})
		}

		// Server first: a server handle answers every property read, so the
		// narrower marker must win before the tool check sees the handle.
		if ref := obj.Get("__server"); ref != nil && !goja.IsUndefined(ref) {
			tools = append(tools, r.serverTools(agent, ref.String())...)
			continue
		}
		if ref := obj.Get("__tool"); ref != nil && !goja.IsUndefined(ref) {
			tool, ok := r.lookupTool(ref.String())
			if !ok {
				r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: tools[%d] references an unknown tool %q", agent, i, ref.String())})
			}
			tools = append(tools, tool)
			continue
		}
		if fn, ok := goja.AssertFunction(item); ok {
			tools = append(tools, r.callableTool(agent, i, obj, fn))
			continue
		}
		r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: tools[%d] is not a tool", agent, i)})
	}
	return tools
}

func (r *run) serverTools(agent, server string) []Tool {
	srv, ok := r.lookupServer(server)
	if !ok {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: unknown tool server %q", agent, server)})
	}
	infos, err := srv.ListTools(r.ctx)
	if err != nil {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: listing tools of %q: %v", agent, server, err)})
	}
	tools := make([]Tool, len(infos))
	for i, info := range infos {
		info := info
		tools[i] = Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
			Invoke: func(ctx context.Context, args map[string]any) (any, error) {
				return srv.CallTool(ctx, info.Name, args)
			},
		}
	}
	return tools
}

// callableTool wraps a plain script function used directly in a tools list.
// Its parameters are unknown, so the arguments object is passed through as a
// single value.
func (r *run) callableTool(agent string, idx int, obj *goja.Object, fn goja.Callable) Tool {
	name := obj.Get("name").String()
	if name == "" || name == "undefined" {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("agent %q: tools[%d] is an anonymous function", agent, idx)})
	}
	return Tool{
		Name:        name,
		InputSchema: map[string]any{"type": "object"},
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			res, err := fn(goja.Undefined(), r.rt.ToValue(args))
			if err != nil {
				return nil, err
			}
			return res.Export(), nil
		},
	}
}

// tool registers a script-declared tool. The metadata's parameter order maps
// the agent-facing arguments object onto the function's positional
// parameters. The function itself is returned so the script can also call
// the tool directly.
func (r *run) tool(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	meta := exportObject(call.Argument(1))
	fnVal := call.Argument(2)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("tool %q: body is not a function", name)})
	}

	var order []string
	properties := map[string]any{}
	var required []string
	if params, ok := meta["params"].([]any); ok {
		for _, p := range params {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			pname, _ := pm["name"].(string)
			order = append(order, pname)
			desc := schema.FromMap(asMap(pm["schema"]))
			properties[pname] = desc.JSONSchema()
			optional, _ := pm["optional"].(bool)
			if !optional && desc.Kind != schema.KindOptional {
				required = append(required, pname)
			}
		}
	}
	inputSchema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	r.storeTool(name, Tool{
		Name:        name,
		InputSchema: inputSchema,
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			vals := make([]goja.Value, len(order))
			for i, pname := range order {
				if v, ok := args[pname]; ok {
					vals[i] = r.rt.ToValue(v)
				} else {
					vals[i] = goja.Undefined()
				}
			}
			res, err := fn(goja.Undefined(), vals...)
			if err != nil {
				return nil, err
			}
			return res.Export(), nil
		},
	})

	// Mark the function so agent configs can recognize it.
	fnVal.ToObject(r.rt).Set("__tool", name)
	return fnVal
}

// ---------------------------------------------------------------------------
// Runtime bridges
// ---------------------------------------------------------------------------

func (r *run) print(call goja.FunctionCall) goja.Value {
	values := exportAll(call.Arguments)
	if r.opts.Bridges.Print != nil {
		r.opts.Bridges.Print(values...)
	} else {
		fmt.Println(values...)
	}
	return goja.Undefined()
}

func (r *run) logValues(level string, args []goja.Value) {
	values := exportAll(args)
	if r.opts.Bridges.Log != nil {
		r.opts.Bridges.Log(level, values...)
		return
	}
	msg := fmt.Sprintln(values...)
	switch level {
	case "debug":
		r.logger.Debug(msg, "run", r.id)
	case "warn":
		r.logger.Warn(msg, "run", r.id)
	case "error":
		r.logger.Error(msg, "run", r.id)
	default:
		r.logger.Info(msg, "run", r.id)
	}
}

func (r *run) input(call goja.FunctionCall) goja.Value {
	if r.opts.Bridges.Input == nil {
		r.fail(&HostConfigurationError{Msg: MsgInputNotConfigured})
	}
	answer, err := r.opts.Bridges.Input(call.Argument(0).String())
	if err != nil {
		r.throw(&RuntimeError{Msg: fmt.Sprintf("input: %v", err)})
	}
	return r.rt.ToValue(answer)
}

func (r *run) addMessage(call goja.FunctionCall) goja.Value {
	if r.opts.Bridges.AddMessage == nil {
		return goja.Undefined()
	}
	r.opts.Bridges.AddMessage(exportObject(call.Argument(0)))
	return goja.Undefined()
}

// ---------------------------------------------------------------------------
// Conversion helpers
// ---------------------------------------------------------------------------

func exportAll(args []goja.Value) []any {
	values := make([]any, len(args))
	for i, a := range args {
		values[i] = a.Export()
	}
	return values
}

func exportObject(v goja.Value) map[string]any {
	if m, ok := v.Export().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
