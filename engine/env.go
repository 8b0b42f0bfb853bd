// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package engine

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// envObject backs the global env accessor. Lookups go through the Env
// bridge; unset names read as undefined. Writes and deletes report failure,
// which the strict-mode artifact surfaces as a thrown TypeError.
type envObject struct {
	run *run
}

var _ goja.DynamicObject = (*envObject)(nil)

func (e *envObject) Get(key string) goja.Value {
	if e.run.opts.Bridges.Env == nil {
		return goja.Undefined()
	}
	v, ok := e.run.opts.Bridges.Env(key)
	if !ok {
		return goja.Undefined()
	}
	return e.run.rt.ToValue(v)
}

func (e *envObject) Set(key string, val goja.Value) bool { return false }

func (e *envObject) Has(key string) bool {
	if e.run.opts.Bridges.Env == nil {
		return false
	}
	_, ok := e.run.opts.Bridges.Env(key)
	return ok
}

func (e *envObject) Delete(key string) bool { return false }

func (e *envObject) Keys() []string { return nil }

// serverHandle backs the value of an mcp declaration. Any ordinary property
// read yields a callable that invokes the remote tool of that name; the
// __server marker lets agent configs recognize the handle and absorb all of
// its tools, and other reserved __ keys read as undefined. The handle is
// read-only.
type serverHandle struct {
	run    *run
	name   string
	server ToolServer
}

var _ goja.DynamicObject = (*serverHandle)(nil)

func (h *serverHandle) Get(key string) goja.Value {
	switch key {
	case "__server":
		return h.run.rt.ToValue(h.name)
	case "close":
		return h.run.rt.ToValue(func(call goja.FunctionCall) goja.Value {
			if err := h.server.Close(); err != nil {
				h.run.throw(&RuntimeError{Msg: fmt.Sprintf("mcp server %q: close: %v", h.name, err)})
			}
			return goja.Undefined()
		})
	}
	// The __ namespace is reserved for host markers. Synthesizing a tool
	// callable for __tool here would make the handle impersonate a declared
	// tool wherever markers discriminate values.
	if strings.HasPrefix(key, "__") {
		return goja.Undefined()
	}
	return h.toolFunc(key)
}

// toolFunc returns a callable for one remote tool. Remote tools take named
// arguments, so the callable accepts at most one object argument.
func (h *serverHandle) toolFunc(tool string) goja.Value {
	return h.run.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		var args map[string]any
		switch len(call.Arguments) {
		case 0:
			args = map[string]any{}
		case 1:
			m, ok := call.Argument(0).Export().(map[string]any)
			if !ok {
				h.run.throw(&RuntimeError{
					Msg: fmt.Sprintf("%s.%s expects a single object argument", h.name, tool),
				})
			}
			args = m
		default:
			h.run.throw(&RuntimeError{
				Msg: fmt.Sprintf("%s.%s expects a single object argument", h.name, tool),
			})
		}

		res, err := h.server.CallTool(h.run.ctx, tool, args)
		if err != nil {
			h.run.throw(&RuntimeError{Msg: fmt.Sprintf("%s.%s: %v", h.name, tool, err)})
		}
		return h.run.rt.ToValue(res)
	})
}

func (h *serverHandle) Set(key string, val goja.Value) bool { return false }

func (h *serverHandle) Has(key string) bool {
	return key == "__server" || !strings.HasPrefix(key, "__")
}

func (h *serverHandle) Delete(key string) bool { return false }

func (h *serverHandle) Keys() []string { return []string{"__server"} }
