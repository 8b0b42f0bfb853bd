// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package scope

import (
	"reflect"
	"testing"
)

func TestDeclareAndReassign(t *testing.T) {
	s := New()
	if !s.Declare("x") {
		t.Fatal("first declare of x must report true")
	}
	if s.Declare("x") {
		t.Fatal("second declare of x must report false")
	}
	if !s.Has("x") {
		t.Fatal("x must be visible after declaration")
	}
	if s.Has("y") {
		t.Fatal("y was never declared")
	}
}

func TestCopyDownVisibility(t *testing.T) {
	s := New()
	s.Declare("outer")

	s.Push()
	if !s.Has("outer") {
		t.Fatal("child frame must see the parent's names")
	}
	// Shadowing in the child is a reassignment, not a new declaration.
	if s.Declare("outer") {
		t.Fatal("outer is already visible in the child frame")
	}
	s.Declare("inner")
	s.Pop()

	if s.Has("inner") {
		t.Fatal("inner must not leak into the parent frame")
	}
	if !s.Has("outer") {
		t.Fatal("outer must survive the child frame")
	}
}

func TestSiblingFramesAreIndependent(t *testing.T) {
	s := New()

	s.Push()
	s.Declare("a")
	s.Pop()

	s.Push()
	if s.Has("a") {
		t.Fatal("a sibling frame must not see the previous frame's names")
	}
	if !s.Declare("a") {
		t.Fatal("a is free for declaration in the sibling frame")
	}
	s.Pop()
}

func TestOwnOrderExcludesInherited(t *testing.T) {
	s := New()
	s.Declare("b")
	s.Declare("a")
	s.Declare("b") // reassignment, must not duplicate

	if got, want := s.Own(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Own() = %v, want %v", got, want)
	}

	s.Push()
	s.Declare("c")
	if got, want := s.Own(), []string{"c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("child Own() = %v, want %v (inherited names excluded)", got, want)
	}
}

func TestOwnReturnsCopy(t *testing.T) {
	s := New()
	s.Declare("x")
	own := s.Own()
	own[0] = "mutated"
	if got := s.Own()[0]; got != "x" {
		t.Fatalf("internal order mutated through returned slice: %s", got)
	}
}

func TestDepth(t *testing.T) {
	s := New()
	if s.Depth() != 1 {
		t.Fatalf("fresh stack depth = %d, want 1", s.Depth())
	}
	s.Push()
	s.Push()
	if s.Depth() != 3 {
		t.Fatalf("depth after two pushes = %d, want 3", s.Depth())
	}
	s.Pop()
	if s.Depth() != 2 {
		t.Fatalf("depth after pop = %d, want 2", s.Depth())
	}
}

func TestPopRootPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("popping the root frame must panic")
		}
	}()
	New().Pop()
}
