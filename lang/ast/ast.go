// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package ast defines the Abstract Syntax Tree for the AgentScript language.
//
// Design overview:
//
//   - All AST nodes implement the Node interface via Position and String.
//   - Expressions, Statements, and type annotations each have a marker
//     interface that embeds Node to enable type-safe dispatch.
//   - The tree is position-annotated via token.Position so error messages
//     can reference source locations.
//   - Nodes are immutable once constructed: they are built once per
//     compilation by the parser, read by the validator and code generator,
//     and never mutated afterwards.
//   - Comments are first-class statements so generated output can reflect
//     them.
package ast

import (
	"bytes"
	"strings"

	"github.com/agentscript-lang/agentscript/lang/token"
)

// ---------------------------------------------------------------------------
// Core interfaces
// ---------------------------------------------------------------------------

// Node is the base interface that every AST node must implement.
type Node interface {
	// Position returns the source location of the token that originated this
	// node. Used primarily for error reporting and testing.
	Position() token.Position

	// String returns a human-readable, parenthesised representation of the
	// node suitable for unit tests and debug output.
	String() string
}

// Expression is a marker interface for all expression nodes.
type Expression interface {
	Node
	expressionNode()
}

// Statement is a marker interface for all statement nodes.
type Statement interface {
	Node
	statementNode()
}

// TypeAnnotation is a marker interface for all type annotation nodes.
type TypeAnnotation interface {
	Node
	typeNode()
}

// ---------------------------------------------------------------------------
// Program — root of every parse tree
// ---------------------------------------------------------------------------

// Program is the top-level AST node: an ordered sequence of statements.
type Program struct {
	Statements []Statement
}

func (p *Program) Position() token.Position {
	if len(p.Statements) > 0 {
		return p.Statements[0].Position()
	}
	return token.Position{}
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
		out.WriteByte('\n')
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Helper types shared by multiple nodes
// ---------------------------------------------------------------------------

// ConfigEntry is a single (key, expression) pair inside a declaration config.
// Entry order is the source order and is preserved end to end.
type ConfigEntry struct {
	Key   string
	Value Expression
}

// Param is a single parameter in a tool declaration. Type is nil when the
// parameter carries no annotation (it then compiles to the "any" schema).
type Param struct {
	Token    token.Token // the IDENT token of the name
	Name     string
	Type     TypeAnnotation
	Optional bool
}

func (p *Param) String() string {
	var out bytes.Buffer
	out.WriteString(p.Name)
	if p.Optional {
		out.WriteString("?")
	}
	if p.Type != nil {
		out.WriteString(": ")
		out.WriteString(p.Type.String())
	}
	return out.String()
}

// ObjectField is a named field in an object type annotation.
type ObjectField struct {
	Name     string
	Type     TypeAnnotation
	Optional bool
}

func (f *ObjectField) String() string {
	opt := ""
	if f.Optional {
		opt = "?"
	}
	return f.Name + opt + ": " + f.Type.String()
}

// ---------------------------------------------------------------------------
// Type annotation nodes
// ---------------------------------------------------------------------------

// PrimitiveType is one of: string, number, boolean, any, null.
type PrimitiveType struct {
	Token token.Token
	Name  string
}

func (t *PrimitiveType) typeNode()                {}
func (t *PrimitiveType) Position() token.Position { return t.Token.Pos }
func (t *PrimitiveType) String() string           { return t.Name }

// ArrayType is an element-typed array annotation: T[].
type ArrayType struct {
	Token   token.Token // '['
	Element TypeAnnotation
}

func (t *ArrayType) typeNode()                {}
func (t *ArrayType) Position() token.Position { return t.Token.Pos }
func (t *ArrayType) String() string           { return t.Element.String() + "[]" }

// ObjectType is a structural object annotation: {name: string, age?: number}.
// Field order is preserved.
type ObjectType struct {
	Token  token.Token // '{'
	Fields []ObjectField
}

func (t *ObjectType) typeNode()                {}
func (t *ObjectType) Position() token.Position { return t.Token.Pos }
func (t *ObjectType) String() string {
	parts := make([]string, len(t.Fields))
	for i := range t.Fields {
		parts[i] = t.Fields[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// UnionType is an ordered union of two or more member annotations.
// A nullable type is a union with an explicit null member, never a flag.
// Members are kept in source order and are not deduplicated.
type UnionType struct {
	Token   token.Token // first member's token
	Members []TypeAnnotation
}

func (t *UnionType) typeNode()                {}
func (t *UnionType) Position() token.Position { return t.Token.Pos }
func (t *UnionType) String() string {
	parts := make([]string, len(t.Members))
	for i, m := range t.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

// OptionalType wraps an object field's or parameter's annotation when the
// field is marked optional. It never appears standalone.
type OptionalType struct {
	Token token.Token // '?'
	Inner TypeAnnotation
}

func (t *OptionalType) typeNode()                {}
func (t *OptionalType) Position() token.Position { return t.Token.Pos }
func (t *OptionalType) String() string           { return t.Inner.String() + "?" }

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Ident is an identifier reference: x, my_agent.
type Ident struct {
	Token token.Token
	Name  string
}

func (e *Ident) expressionNode()          {}
func (e *Ident) Position() token.Position { return e.Token.Pos }
func (e *Ident) String() string           { return e.Name }

// StringLit is a double-quoted string literal.
type StringLit struct {
	Token token.Token
	Value string
}

func (e *StringLit) expressionNode()          {}
func (e *StringLit) Position() token.Position { return e.Token.Pos }
func (e *StringLit) String() string           { return `"` + e.Value + `"` }

// NumberLit is a numeric literal. All numbers are host doubles.
type NumberLit struct {
	Token token.Token
	Value float64
}

func (e *NumberLit) expressionNode()          {}
func (e *NumberLit) Position() token.Position { return e.Token.Pos }
func (e *NumberLit) String() string           { return e.Token.Literal }

// BoolLit is true or false.
type BoolLit struct {
	Token token.Token
	Value bool
}

func (e *BoolLit) expressionNode()          {}
func (e *BoolLit) Position() token.Position { return e.Token.Pos }
func (e *BoolLit) String() string           { return e.Token.Literal }

// NullLit is the null keyword.
type NullLit struct {
	Token token.Token
}

func (e *NullLit) expressionNode()          {}
func (e *NullLit) Position() token.Position { return e.Token.Pos }
func (e *NullLit) String() string           { return "null" }

// ArrayLit is an ordered array literal: [1, 2, 3].
type ArrayLit struct {
	Token    token.Token // '['
	Elements []Expression
}

func (e *ArrayLit) expressionNode()          {}
func (e *ArrayLit) Position() token.Position { return e.Token.Pos }
func (e *ArrayLit) String() string {
	parts := make([]string, len(e.Elements))
	for i, el := range e.Elements {
		parts[i] = el.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ObjectLit is an object literal with insertion-ordered (key, value) pairs.
// Keys need not be unique; duplicate keys are flagged by the validator.
type ObjectLit struct {
	Token   token.Token // '{'
	Entries []ConfigEntry
}

func (e *ObjectLit) expressionNode()          {}
func (e *ObjectLit) Position() token.Position { return e.Token.Pos }
func (e *ObjectLit) String() string {
	parts := make([]string, len(e.Entries))
	for i := range e.Entries {
		parts[i] = e.Entries[i].Key + ": " + e.Entries[i].Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// CallExpr is a call: f(x, y) or a.b(x). Every call is a suspension point in
// generated code.
type CallExpr struct {
	Token  token.Token // '('
	Callee Expression
	Args   []Expression
}

func (e *CallExpr) expressionNode()          {}
func (e *CallExpr) Position() token.Position { return e.Token.Pos }
func (e *CallExpr) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return e.Callee.String() + "(" + strings.Join(parts, ", ") + ")"
}

// MemberExpr is a dotted property access: a.b.
type MemberExpr struct {
	Token    token.Token // '.'
	Object   Expression
	Property string
}

func (e *MemberExpr) expressionNode()          {}
func (e *MemberExpr) Position() token.Position { return e.Token.Pos }
func (e *MemberExpr) String() string           { return "(" + e.Object.String() + "." + e.Property + ")" }

// BracketExpr is a computed index access: a[i].
type BracketExpr struct {
	Token  token.Token // '['
	Object Expression
	Index  Expression
}

func (e *BracketExpr) expressionNode()          {}
func (e *BracketExpr) Position() token.Position { return e.Token.Pos }
func (e *BracketExpr) String() string {
	return "(" + e.Object.String() + "[" + e.Index.String() + "])"
}

// BinaryExpr is a binary infix expression: x + y, x && y, prompt -> agent.
type BinaryExpr struct {
	Token token.Token // the operator token
	Op    string      // "|", "->", "??", "||", "&&", "==", "!=", "<", ">", "<=", ">=", "+", "-", "*", "/", "%"
	Left  Expression
	Right Expression
}

func (e *BinaryExpr) expressionNode()          {}
func (e *BinaryExpr) Position() token.Position { return e.Token.Pos }
func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

// UnaryExpr is a unary prefix expression: !x, -x.
type UnaryExpr struct {
	Token   token.Token
	Op      string // "!", "-"
	Operand Expression
}

func (e *UnaryExpr) expressionNode()          {}
func (e *UnaryExpr) Position() token.Position { return e.Token.Pos }
func (e *UnaryExpr) String() string           { return "(" + e.Op + e.Operand.String() + ")" }

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Comment is a preserved source comment.
type Comment struct {
	Token token.Token
	Text  string
}

func (s *Comment) statementNode()           {}
func (s *Comment) Position() token.Position { return s.Token.Pos }
func (s *Comment) String() string           { return "// " + s.Text }

// DeclKind discriminates the config-style declaration kinds.
type DeclKind int

const (
	DeclMCP DeclKind = iota
	DeclModel
	DeclAgent
)

func (k DeclKind) String() string {
	switch k {
	case DeclMCP:
		return "mcp"
	case DeclModel:
		return "model"
	case DeclAgent:
		return "agent"
	}
	return "decl"
}

// ConfigDecl is an mcp, model, or agent declaration: a named, hoisted
// configuration object.
type ConfigDecl struct {
	Token  token.Token // the keyword token
	Kind   DeclKind
	Name   string
	Config []ConfigEntry
}

func (s *ConfigDecl) statementNode()           {}
func (s *ConfigDecl) Position() token.Position { return s.Token.Pos }
func (s *ConfigDecl) String() string {
	parts := make([]string, len(s.Config))
	for i := range s.Config {
		parts[i] = s.Config[i].Key + ": " + s.Config[i].Value.String()
	}
	return s.Kind.String() + " " + s.Name + " { " + strings.Join(parts, ", ") + " }"
}

// ToolDecl is a tool declaration: tool name(params) { body }.
type ToolDecl struct {
	Token  token.Token // 'tool'
	Name   string
	Params []Param
	Body   *BlockStmt
}

func (s *ToolDecl) statementNode()           {}
func (s *ToolDecl) Position() token.Position { return s.Token.Pos }
func (s *ToolDecl) String() string {
	parts := make([]string, len(s.Params))
	for i := range s.Params {
		parts[i] = s.Params[i].String()
	}
	return "tool " + s.Name + "(" + strings.Join(parts, ", ") + ") " + s.Body.String()
}

// AssignStmt assigns a value to a target. The target is restricted to an
// Ident, MemberExpr, or BracketExpr.
type AssignStmt struct {
	Token  token.Token // '='
	Target Expression
	Value  Expression
}

func (s *AssignStmt) statementNode()           {}
func (s *AssignStmt) Position() token.Position { return s.Token.Pos }
func (s *AssignStmt) String() string           { return s.Target.String() + " = " + s.Value.String() }

// ExprStmt wraps an expression used in statement position.
type ExprStmt struct {
	Token token.Token // first token of the expression
	Expr  Expression
}

func (s *ExprStmt) statementNode()           {}
func (s *ExprStmt) Position() token.Position { return s.Token.Pos }
func (s *ExprStmt) String() string           { return s.Expr.String() }

// BlockStmt is an explicit brace-delimited statement sequence from the
// source. A single-statement if/while/for body is NOT wrapped into one at
// parse time: the code generator normalizes branch shapes, and only explicit
// blocks push a scope frame.
type BlockStmt struct {
	Token      token.Token // '{'
	Statements []Statement
}

func (s *BlockStmt) statementNode()           {}
func (s *BlockStmt) Position() token.Position { return s.Token.Pos }
func (s *BlockStmt) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, st := range s.Statements {
		out.WriteString(st.String())
		out.WriteString("; ")
	}
	out.WriteString("}")
	return out.String()
}

// IfStmt is a conditional with an optional else branch. Then is either a
// *BlockStmt or a single statement; Else may additionally be another IfStmt
// for else-if chains. The two branch shapes are semantically identical with
// respect to variable visibility after the statement.
type IfStmt struct {
	Token token.Token // 'if'
	Cond  Expression
	Then  Statement
	Else  Statement // single statement, *BlockStmt, *IfStmt, or nil
}

func (s *IfStmt) statementNode()           {}
func (s *IfStmt) Position() token.Position { return s.Token.Pos }
func (s *IfStmt) String() string {
	out := "if (" + s.Cond.String() + ") " + s.Then.String()
	if s.Else != nil {
		out += " else " + s.Else.String()
	}
	return out
}

// WhileStmt is a while loop. Body is either a *BlockStmt or a single
// statement.
type WhileStmt struct {
	Token token.Token // 'while'
	Cond  Expression
	Body  Statement
}

func (s *WhileStmt) statementNode()           {}
func (s *WhileStmt) Position() token.Position { return s.Token.Pos }
func (s *WhileStmt) String() string {
	return "while (" + s.Cond.String() + ") " + s.Body.String()
}

// ForStmt is a C-style for loop. All three clauses are optional;
// for (;;) body is legal and equivalent to while(true) body.
type ForStmt struct {
	Token  token.Token // 'for'
	Init   *AssignStmt // nil when absent
	Cond   Expression  // nil when absent
	Update *AssignStmt // nil when absent
	Body   Statement   // *BlockStmt or a single statement
}

func (s *ForStmt) statementNode()           {}
func (s *ForStmt) Position() token.Position { return s.Token.Pos }
func (s *ForStmt) String() string {
	init, cond, update := "", "", ""
	if s.Init != nil {
		init = s.Init.String()
	}
	if s.Cond != nil {
		cond = s.Cond.String()
	}
	if s.Update != nil {
		update = s.Update.String()
	}
	return "for (" + init + "; " + cond + "; " + update + ") " + s.Body.String()
}

// BreakStmt exits the innermost loop.
type BreakStmt struct {
	Token token.Token
}

func (s *BreakStmt) statementNode()           {}
func (s *BreakStmt) Position() token.Position { return s.Token.Pos }
func (s *BreakStmt) String() string           { return "break" }

// ContinueStmt skips to the next iteration of the innermost loop.
type ContinueStmt struct {
	Token token.Token
}

func (s *ContinueStmt) statementNode()           {}
func (s *ContinueStmt) Position() token.Position { return s.Token.Pos }
func (s *ContinueStmt) String() string           { return "continue" }

// ---------------------------------------------------------------------------
// Assignment target helpers
// ---------------------------------------------------------------------------

// IsAssignmentTarget reports whether e belongs to the restricted assignment
// target subset: Ident, MemberExpr, or BracketExpr.
func IsAssignmentTarget(e Expression) bool {
	switch e.(type) {
	case *Ident, *MemberExpr, *BracketExpr:
		return true
	}
	return false
}

// IsDeclaration reports whether s is a hoisted declaration statement
// (mcp/model/agent/tool). Declarations are emitted into the init sections
// and excluded from the main statement stream.
func IsDeclaration(s Statement) bool {
	switch s.(type) {
	case *ConfigDecl, *ToolDecl:
		return true
	}
	return false
}
