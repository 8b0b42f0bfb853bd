// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package codegen translates a validated AgentScript program into the
// JavaScript artifact executed by the engine.
//
// Artifact shape: a strict-mode arrow IIFE. Declarations are hoisted into
// ordered initialization sections (mcp servers, models, tools, agents, each
// in source order) ahead of the main statement stream, and the IIFE returns
// an object with the top-level variable bindings so callers can observe
// final state.
//
// Every call site is wrapped in the __await host helper. The engine executes
// the artifact on a single goroutine and services host calls synchronously,
// so __await is a suspension marker rather than a JavaScript await: it
// exists so generated code never depends on the interpreter's microtask
// queue, which cannot drain while a host bridge is re-entered.
//
// All variables are emitted with var. Block visibility is a static property
// enforced by the validator through the shared scope model, so the generator
// only has to decide declare-vs-reassign, never emit block-scoped forms.
package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentscript-lang/agentscript/lang/ast"
	"github.com/agentscript-lang/agentscript/lang/schema"
	"github.com/agentscript-lang/agentscript/lang/scope"
)

// Artifact is a generated program ready for the execution engine.
type Artifact struct {
	Source string
}

// Generator translates an AST program to JavaScript source. A Generator is
// single-use: construct one per program.
type Generator struct {
	buf    bytes.Buffer
	indent int

	scope *scope.Stack

	// bindings collects top-level variable names in declaration order; they
	// form the object the artifact returns.
	bindings []string

	// inTool is set while emitting a tool body so nested emission knows not
	// to record bindings.
	inTool bool
}

// New creates a new code generator.
func New() *Generator {
	return &Generator{scope: scope.New()}
}

// Generate compiles a validated program. Structural errors (unknown node
// kinds) are programming errors surfaced as a returned error rather than a
// crash.
func Generate(prog *ast.Program) (art *Artifact, err error) {
	g := New()
	defer func() {
		if r := recover(); r != nil {
			if gerr, ok := r.(error); ok {
				art, err = nil, gerr
				return
			}
			panic(r)
		}
	}()
	return g.generate(prog), nil
}

func (g *Generator) generate(prog *ast.Program) *Artifact {
	g.line("(() => {")
	g.line(`"use strict";`)

	g.emitSection(prog, func(s ast.Statement) bool {
		d, ok := s.(*ast.ConfigDecl)
		return ok && d.Kind == ast.DeclMCP
	})
	g.emitSection(prog, func(s ast.Statement) bool {
		d, ok := s.(*ast.ConfigDecl)
		return ok && d.Kind == ast.DeclModel
	})
	g.emitSection(prog, func(s ast.Statement) bool {
		_, ok := s.(*ast.ToolDecl)
		return ok
	})
	g.emitSection(prog, func(s ast.Statement) bool {
		d, ok := s.(*ast.ConfigDecl)
		return ok && d.Kind == ast.DeclAgent
	})

	for _, stmt := range prog.Statements {
		if ast.IsDeclaration(stmt) {
			continue
		}
		g.genStatement(stmt)
	}

	g.line("return %s;", g.bindingsObject())
	g.line("})()")
	return &Artifact{Source: g.buf.String()}
}

// emitSection emits the declarations selected by keep, preserving their
// source order. Declaration names join the root scope frame so main-stream
// assignments to them reassign instead of re-declaring.
func (g *Generator) emitSection(prog *ast.Program, keep func(ast.Statement) bool) {
	for _, stmt := range prog.Statements {
		if !keep(stmt) {
			continue
		}
		switch d := stmt.(type) {
		case *ast.ConfigDecl:
			g.scope.Declare(d.Name)
			g.line("var %s = __await(__%s(%s, %s));",
				d.Name, d.Kind.String(), jsQuote(d.Name), g.objectLiteral(d.Config))
		case *ast.ToolDecl:
			g.scope.Declare(d.Name)
			g.genToolDecl(d)
		}
	}
}

func (g *Generator) bindingsObject() string {
	if len(g.bindings) == 0 {
		return "{}"
	}
	parts := make([]string, len(g.bindings))
	for i, name := range g.bindings {
		parts[i] = jsQuote(name) + ": " + name
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *Generator) genStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Comment:
		g.line("// %s", s.Text)

	case *ast.AssignStmt:
		g.line("%s;", g.assignment(s, true))

	case *ast.ExprStmt:
		g.line("%s;", g.statementExpr(s.Expr))

	case *ast.BlockStmt:
		g.line("{")
		g.indent++
		g.scope.Push()
		for _, st := range s.Statements {
			g.genStatement(st)
		}
		g.scope.Pop()
		g.indent--
		g.line("}")

	case *ast.IfStmt:
		g.line("if (%s) {", g.expr(s.Cond))
		g.genBranch(s.Then)
		if s.Else != nil {
			g.line("} else {")
			g.genBranch(s.Else)
		}
		g.line("}")

	case *ast.WhileStmt:
		g.line("while (%s) {", g.expr(s.Cond))
		g.genBranch(s.Body)
		g.line("}")

	case *ast.ForStmt:
		init, cond, update := "", "", ""
		if s.Init != nil {
			init = g.assignment(s.Init, true)
		}
		if s.Cond != nil {
			cond = g.expr(s.Cond)
		}
		if s.Update != nil {
			// The update clause never takes the declare path: its target is
			// already declared by init or an outer scope.
			update = g.assignment(s.Update, false)
		}
		g.line("for (%s; %s; %s) {", init, cond, update)
		g.genBranch(s.Body)
		g.line("}")

	case *ast.BreakStmt:
		g.line("break;")

	case *ast.ContinueStmt:
		g.line("continue;")

	default:
		panic(fmt.Errorf("codegen: unsupported statement node %T", stmt))
	}
}

// genBranch emits an if/while/for branch body. Explicit source blocks push a
// scope frame; a single-statement body is printed inside the synthetic braces
// but shares the enclosing frame, so a variable it declares stays visible
// after the statement.
func (g *Generator) genBranch(body ast.Statement) {
	g.indent++
	if block, ok := body.(*ast.BlockStmt); ok {
		g.scope.Push()
		for _, st := range block.Statements {
			g.genStatement(st)
		}
		g.scope.Pop()
	} else {
		g.genStatement(body)
	}
	g.indent--
}

// assignment renders an assignment without its terminator. A bare identifier
// not yet visible takes the declare form; allowDeclare is false for for-loop
// update clauses.
func (g *Generator) assignment(s *ast.AssignStmt, allowDeclare bool) string {
	value := g.expr(s.Value)

	if id, ok := s.Target.(*ast.Ident); ok {
		if allowDeclare && g.scope.Declare(id.Name) {
			if !g.inTool && g.scope.Depth() == 1 {
				g.bindings = append(g.bindings, id.Name)
			}
			return "var " + id.Name + " = " + value
		}
		return id.Name + " = " + value
	}
	return g.expr(s.Target) + " = " + value
}

// statementExpr renders an expression in statement position. An object
// literal is parenthesized so it cannot be read as a block.
func (g *Generator) statementExpr(e ast.Expression) string {
	if _, ok := e.(*ast.ObjectLit); ok {
		return "(" + g.expr(e) + ")"
	}
	return g.expr(e)
}

// ---------------------------------------------------------------------------
// Tool declarations
// ---------------------------------------------------------------------------

// genToolDecl emits a tool as a host registration of its parameter metadata
// plus an arrow function closing over everything declared so far.
func (g *Generator) genToolDecl(d *ast.ToolDecl) {
	names := make([]string, len(d.Params))
	params := make([]any, len(d.Params))
	for i, p := range d.Params {
		names[i] = p.Name
		params[i] = map[string]any{
			"name":     p.Name,
			"schema":   schema.Compile(p.Type).Map(),
			"optional": p.Optional,
		}
	}
	meta, err := json.Marshal(map[string]any{"params": params})
	if err != nil {
		panic(fmt.Errorf("codegen: tool %s metadata: %w", d.Name, err))
	}

	g.line("var %s = __await(__tool(%s, %s, (%s) => {",
		d.Name, jsQuote(d.Name), meta, strings.Join(names, ", "))

	g.indent++
	g.inTool = true
	g.scope.Push()
	for _, p := range d.Params {
		g.scope.Declare(p.Name)
	}

	last := lastExprStmt(d.Body.Statements)
	for i, st := range d.Body.Statements {
		if i == last {
			g.line("return %s;", g.statementExpr(st.(*ast.ExprStmt).Expr))
			continue
		}
		g.genStatement(st)
	}

	g.scope.Pop()
	g.inTool = false
	g.indent--
	g.line("}));")
}

// lastExprStmt returns the index of the trailing expression statement that
// becomes the tool's implicit return value, or -1. Trailing comments do not
// displace it.
func lastExprStmt(stmts []ast.Statement) int {
	for i := len(stmts) - 1; i >= 0; i-- {
		switch stmts[i].(type) {
		case *ast.Comment:
			continue
		case *ast.ExprStmt:
			return i
		default:
			return -1
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// opPrec is the emission-side total order over binary operators, loosest to
// tightest. It must mirror the parser's binding powers.
var opPrec = map[string]int{
	"|": 1, "->": 1,
	"??": 2,
	"||": 3,
	"&&": 4,
	"==": 5, "!=": 5, "<": 5, ">": 5, "<=": 5, ">=": 5,
	"+": 6, "-": 6,
	"*": 7, "/": 7, "%": 7,
}

// jsOp maps a source operator to its target spelling. Equality is always
// strict in generated code.
func jsOp(op string) string {
	switch op {
	case "==":
		return "==="
	case "!=":
		return "!=="
	}
	return op
}

func isDelegation(op string) bool { return op == "|" || op == "->" }

// isCoalesceMix reports whether a and b are ?? against ||/&& in either
// direction. The target language rejects that nesting without parentheses.
func isCoalesceMix(a, b string) bool {
	logical := func(op string) bool { return op == "||" || op == "&&" }
	return (a == "??" && logical(b)) || (b == "??" && logical(a))
}

func (g *Generator) expr(e ast.Expression) string {
	switch e := e.(type) {
	case *ast.Ident:
		return e.Name

	case *ast.StringLit:
		return jsQuote(e.Value)

	case *ast.NumberLit:
		return strconv.FormatFloat(e.Value, 'f', -1, 64)

	case *ast.BoolLit:
		if e.Value {
			return "true"
		}
		return "false"

	case *ast.NullLit:
		return "null"

	case *ast.ArrayLit:
		parts := make([]string, len(e.Elements))
		for i, el := range e.Elements {
			parts[i] = g.expr(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"

	case *ast.ObjectLit:
		return g.objectLiteral(e.Entries)

	case *ast.CallExpr:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = g.expr(a)
		}
		return "__await(" + g.primaryOperand(e.Callee) + "(" + strings.Join(args, ", ") + "))"

	case *ast.MemberExpr:
		return g.primaryOperand(e.Object) + "." + e.Property

	case *ast.BracketExpr:
		return g.primaryOperand(e.Object) + "[" + g.expr(e.Index) + "]"

	case *ast.BinaryExpr:
		if isDelegation(e.Op) {
			// prompt -> agent becomes a suspension on the agent's run
			// entrypoint with the prompt as sole argument.
			return "__await(" + g.primaryOperand(e.Right) + ".run(" + g.expr(e.Left) + "))"
		}
		return g.binaryOperand(e, e.Left, false) + " " + jsOp(e.Op) + " " + g.binaryOperand(e, e.Right, true)

	case *ast.UnaryExpr:
		return e.Op + g.primaryOperand(e.Operand)

	default:
		panic(fmt.Errorf("codegen: unsupported expression node %T", e))
	}
}

// binaryOperand renders one side of a binary expression, parenthesizing a
// binary child whose operator binds strictly looser, or equally tight on the
// right-hand side (all operators emit left-associative). ?? nested with
// ||/&& is parenthesized in both directions regardless of precedence.
func (g *Generator) binaryOperand(parent *ast.BinaryExpr, child ast.Expression, rhs bool) string {
	s := g.expr(child)
	cb, ok := child.(*ast.BinaryExpr)
	if !ok || isDelegation(cb.Op) {
		// Non-binary children and delegations (which emit as calls) bind
		// tighter than any infix operator.
		return s
	}
	if isCoalesceMix(parent.Op, cb.Op) {
		return "(" + s + ")"
	}
	pp, cp := opPrec[parent.Op], opPrec[cb.Op]
	if cp < pp || (rhs && cp == pp) {
		return "(" + s + ")"
	}
	return s
}

// primaryOperand renders an expression used where only a primary is legal
// (callee, member/index base, unary operand, delegation target).
func (g *Generator) primaryOperand(e ast.Expression) string {
	s := g.expr(e)
	switch e := e.(type) {
	case *ast.BinaryExpr:
		if isDelegation(e.Op) {
			return s
		}
		return "(" + s + ")"
	case *ast.UnaryExpr, *ast.ObjectLit:
		return "(" + s + ")"
	}
	return s
}

func (g *Generator) objectLiteral(entries []ast.ConfigEntry) string {
	parts := make([]string, len(entries))
	for i := range entries {
		parts[i] = jsQuote(entries[i].Key) + ": " + g.expr(entries[i].Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// jsQuote renders s as a double-quoted JavaScript string literal.
// strconv.Quote is unsuitable: it emits Go-only escapes (\a, \v for some
// inputs, \U for astral runes) that JavaScript reads as different characters.
func jsQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case ' ', ' ':
			// Legal in JS strings only since ES2019; escape for safety.
			fmt.Fprintf(&sb, `\u%04x`, r)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// ---------------------------------------------------------------------------
// Output helpers
// ---------------------------------------------------------------------------

func (g *Generator) line(format string, args ...any) {
	for i := 0; i < g.indent; i++ {
		g.buf.WriteString("  ")
	}
	fmt.Fprintf(&g.buf, format, args...)
	g.buf.WriteByte('\n')
}
