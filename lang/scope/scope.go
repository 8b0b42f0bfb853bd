// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package scope implements the copy-down lexical scope stack shared by the
// validator and the code generator. Both passes must agree exactly on
// visibility, or a program accepted by one could be rejected by the other;
// sharing the structure removes that failure mode.
//
// Copy-down semantics: pushing a frame snapshots the top frame's names into
// the new frame. A child frame starts with every name visible in its parent,
// and names declared inside the child are private to it and its future
// descendants — never visible to siblings or the parent. A lookup only ever
// inspects the current top frame; there is no live parent chain.
package scope

// Stack is an ordered list of frames, innermost last.
type Stack struct {
	frames []*frame
}

// frame is a set of declared names plus their declaration order. Order is
// tracked so callers can enumerate a frame's own declarations
// deterministically.
type frame struct {
	names map[string]struct{}
	own   []string // names declared directly in this frame, in order
}

// New creates a scope stack with a single empty root frame.
func New() *Stack {
	s := &Stack{}
	s.frames = append(s.frames, &frame{names: make(map[string]struct{})})
	return s
}

// Push snapshots the top frame into a new frame and makes it current.
func (s *Stack) Push() {
	top := s.top()
	f := &frame{names: make(map[string]struct{}, len(top.names))}
	for name := range top.names {
		f.names[name] = struct{}{}
	}
	s.frames = append(s.frames, f)
}

// Pop discards the current frame. Popping the root frame panics: it is a
// programming error, not a user-facing condition.
func (s *Stack) Pop() {
	if len(s.frames) == 1 {
		panic("scope: pop of root frame")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Declare adds name to the current frame. It reports whether the name was
// newly declared (false means it was already visible and the caller should
// treat the write as a plain reassignment).
func (s *Stack) Declare(name string) bool {
	top := s.top()
	if _, ok := top.names[name]; ok {
		return false
	}
	top.names[name] = struct{}{}
	top.own = append(top.own, name)
	return true
}

// Has reports whether name is visible in the current frame.
func (s *Stack) Has(name string) bool {
	_, ok := s.top().names[name]
	return ok
}

// Own returns the names declared directly in the current frame, in
// declaration order. The returned slice is a copy.
func (s *Stack) Own() []string {
	top := s.top()
	out := make([]string, len(top.own))
	copy(out, top.own)
	return out
}

// Depth returns the number of frames on the stack.
func (s *Stack) Depth() int { return len(s.frames) }

func (s *Stack) top() *frame { return s.frames[len(s.frames)-1] }
