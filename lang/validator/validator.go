// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package validator implements the static validation pass that runs between
// parsing and code generation.
//
// The pass is single-sweep with a declaration pre-pass: mcp/model/agent/tool
// names are collected for the whole program first, so an agent may reference
// a model declared later in the file. Ordinary variables become visible only
// from the statement that first assigns them, and block visibility follows
// the exact same copy-down scope model the code generator uses (the shared
// lang/scope package guarantees the two passes agree).
//
// Validation failure is fatal: callers must not generate code from a program
// that did not validate.
package validator

import (
	"fmt"

	"github.com/agentscript-lang/agentscript/lang/ast"
	"github.com/agentscript-lang/agentscript/lang/scope"
	"github.com/agentscript-lang/agentscript/lang/token"
)

// builtins are the host-bridge names injected by the execution engine. They
// are visible everywhere, including tool bodies.
var builtins = []string{"print", "log", "env", "input", "addMessage"}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// DeclarationError reports a structurally incomplete or conflicting
// declaration. Error returns Msg verbatim: callers pattern-match on the
// message text, so it must stay stable.
type DeclarationError struct {
	Pos token.Position
	Msg string
}

func (e *DeclarationError) Error() string { return e.Msg }

// ReferenceError reports the use of a name that is not visible at the point
// of use.
type ReferenceError struct {
	Pos  token.Position
	Name string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: reference error: undefined name %q", e.Pos, e.Name)
}

// ---------------------------------------------------------------------------
// Validator
// ---------------------------------------------------------------------------

// Validator holds the mutable state for a single validation run. A Validator
// is single-use: construct one per program.
type Validator struct {
	scope *scope.Stack

	// declsByKind maps a declaration kind label ("mcp", "model", "agent",
	// "tool") to the names declared under it. Duplicate names are legal
	// across kinds but not within one.
	declsByKind map[string]map[string]bool

	warnings []string
}

// New returns a Validator with an empty scope and no collected declarations.
func New() *Validator {
	return &Validator{
		scope:       scope.New(),
		declsByKind: make(map[string]map[string]bool),
	}
}

// Warnings returns non-fatal findings (currently duplicate object literal
// keys) collected during the last Validate call, in source order.
func (v *Validator) Warnings() []string { return v.warnings }

// Validate checks prog and returns the first fatal error found, or nil.
func (v *Validator) Validate(prog *ast.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if verr, ok := r.(error); ok {
				err = verr
				return
			}
			panic(r)
		}
	}()

	v.collectDecls(prog)

	for _, name := range builtins {
		v.scope.Declare(name)
	}

	for _, stmt := range prog.Statements {
		v.checkStatement(stmt, true)
	}
	return nil
}

// fail aborts the run with a DeclarationError.
func (v *Validator) fail(pos token.Position, format string, args ...any) {
	panic(&DeclarationError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// ---------------------------------------------------------------------------
// Declaration pre-pass
// ---------------------------------------------------------------------------

// collectDecls hoists every top-level declaration name into scope before any
// executable statement is inspected. Duplicate names within a kind are fatal.
func (v *Validator) collectDecls(prog *ast.Program) {
	for _, stmt := range prog.Statements {
		var kind, name string
		var pos token.Position
		switch s := stmt.(type) {
		case *ast.ConfigDecl:
			kind, name, pos = s.Kind.String(), s.Name, s.Position()
		case *ast.ToolDecl:
			kind, name, pos = "tool", s.Name, s.Position()
		default:
			continue
		}
		names := v.declsByKind[kind]
		if names == nil {
			names = make(map[string]bool)
			v.declsByKind[kind] = names
		}
		if names[name] {
			v.fail(pos, "duplicate %s declaration %q", kind, name)
		}
		names[name] = true
		v.scope.Declare(name)
	}
}

// isDeclaredModel reports whether name was declared by a model declaration.
func (v *Validator) isDeclaredModel(name string) bool {
	return v.declsByKind["model"][name]
}

// ---------------------------------------------------------------------------
// Statement walk
// ---------------------------------------------------------------------------

func (v *Validator) checkStatement(stmt ast.Statement, topLevel bool) {
	if !topLevel && ast.IsDeclaration(stmt) {
		v.fail(stmt.Position(), "declarations are only permitted at the top level")
	}

	switch s := stmt.(type) {
	case *ast.Comment:
		// Nothing to check.

	case *ast.ConfigDecl:
		v.checkConfigDecl(s)

	case *ast.ToolDecl:
		v.checkToolDecl(s)

	case *ast.AssignStmt:
		v.checkAssign(s)

	case *ast.ExprStmt:
		v.checkExpression(s.Expr)

	case *ast.BlockStmt:
		v.scope.Push()
		for _, st := range s.Statements {
			v.checkStatement(st, false)
		}
		v.scope.Pop()

	case *ast.IfStmt:
		v.checkExpression(s.Cond)
		v.checkBranch(s.Then)
		if s.Else != nil {
			v.checkBranch(s.Else)
		}

	case *ast.WhileStmt:
		v.checkExpression(s.Cond)
		v.checkBranch(s.Body)

	case *ast.ForStmt:
		if s.Init != nil {
			v.checkAssign(s.Init)
		}
		if s.Cond != nil {
			v.checkExpression(s.Cond)
		}
		if s.Update != nil {
			// The update target is assumed declared by the init clause or
			// an outer scope; only its value expression is checked.
			v.checkExpression(s.Update.Value)
		}
		v.checkBranch(s.Body)

	case *ast.BreakStmt, *ast.ContinueStmt:
		// Loop membership is not tracked; the engine's target language
		// rejects a stray break/continue on its own.

	default:
		v.fail(stmt.Position(), "unsupported statement node %T", stmt)
	}
}

// checkBranch walks an if/while/for branch. An explicit block pushes a scope
// frame; a single-statement branch shares the enclosing scope, so a variable
// it introduces stays visible after the statement.
func (v *Validator) checkBranch(body ast.Statement) {
	if block, ok := body.(*ast.BlockStmt); ok {
		v.scope.Push()
		for _, st := range block.Statements {
			v.checkStatement(st, false)
		}
		v.scope.Pop()
		return
	}
	v.checkStatement(body, false)
}

// checkConfigDecl validates the entries of an mcp/model/agent declaration.
// Completeness is enforced only for the agent model reference; other config
// shapes are accepted and left to downstream consumers.
func (v *Validator) checkConfigDecl(s *ast.ConfigDecl) {
	v.checkEntries(s.Config, s.Kind.String()+" "+s.Name)

	if s.Kind != ast.DeclAgent {
		return
	}
	modelRef := findEntry(s.Config, "model")
	if modelRef == nil {
		v.fail(s.Position(), "Agent %q must specify a model reference", s.Name)
	}
	if id, ok := modelRef.(*ast.Ident); ok && !v.isDeclaredModel(id.Name) {
		panic(&ReferenceError{Pos: id.Position(), Name: id.Name})
	}
}

func findEntry(entries []ast.ConfigEntry, key string) ast.Expression {
	for i := range entries {
		if entries[i].Key == key {
			return entries[i].Value
		}
	}
	return nil
}

// checkToolDecl validates a tool body in a fresh frame seeded with the tool's
// parameters on top of everything visible at the declaration site.
func (v *Validator) checkToolDecl(s *ast.ToolDecl) {
	v.scope.Push()
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if seen[p.Name] {
			v.fail(p.Token.Pos, "duplicate parameter %q in tool %q", p.Name, s.Name)
		}
		seen[p.Name] = true
		v.scope.Declare(p.Name)
	}
	for _, st := range s.Body.Statements {
		v.checkStatement(st, false)
	}
	v.scope.Pop()
}

// checkAssign validates an assignment. A bare identifier target introduces
// the name into the current frame when it is not already visible; member and
// bracket targets require their base object to resolve.
func (v *Validator) checkAssign(s *ast.AssignStmt) {
	v.checkExpression(s.Value)

	switch t := s.Target.(type) {
	case *ast.Ident:
		v.scope.Declare(t.Name)
	case *ast.MemberExpr:
		v.checkExpression(t.Object)
	case *ast.BracketExpr:
		v.checkExpression(t.Object)
		v.checkExpression(t.Index)
	default:
		v.fail(s.Position(), "invalid assignment target %T", s.Target)
	}
}

// ---------------------------------------------------------------------------
// Expression walk
// ---------------------------------------------------------------------------

func (v *Validator) checkExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Ident:
		if !v.scope.Has(e.Name) {
			panic(&ReferenceError{Pos: e.Position(), Name: e.Name})
		}

	case *ast.StringLit, *ast.NumberLit, *ast.BoolLit, *ast.NullLit:
		// Literals always resolve.

	case *ast.ArrayLit:
		for _, el := range e.Elements {
			v.checkExpression(el)
		}

	case *ast.ObjectLit:
		v.checkEntries(e.Entries, "object literal")

	case *ast.CallExpr:
		v.checkExpression(e.Callee)
		for _, a := range e.Args {
			v.checkExpression(a)
		}

	case *ast.MemberExpr:
		// Only the base resolves against scope; the property is looked up
		// on the object at run time.
		v.checkExpression(e.Object)

	case *ast.BracketExpr:
		v.checkExpression(e.Object)
		v.checkExpression(e.Index)

	case *ast.BinaryExpr:
		v.checkExpression(e.Left)
		v.checkExpression(e.Right)

	case *ast.UnaryExpr:
		v.checkExpression(e.Operand)

	default:
		v.fail(expr.Position(), "unsupported expression node %T", expr)
	}
}

// checkEntries validates entry values and records duplicate keys as
// non-fatal warnings.
func (v *Validator) checkEntries(entries []ast.ConfigEntry, where string) {
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		if seen[entries[i].Key] {
			v.warnings = append(v.warnings,
				fmt.Sprintf("%s: duplicate key %q in %s", entries[i].Value.Position(), entries[i].Key, where))
		}
		seen[entries[i].Key] = true
		v.checkExpression(entries[i].Value)
	}
}
