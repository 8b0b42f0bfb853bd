// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package parser implements a recursive-descent / Pratt parser for the
// AgentScript language.
//
// Design overview:
//
//   - Statements and declarations are parsed with straightforward recursive
//     descent; expressions with a Pratt (top-down operator precedence) table.
//   - Parse errors are fatal: the first structural error aborts the run and
//     is returned as a *SyntaxError. There is no partial compilation.
//   - Comments are preserved as first-class Comment statements at statement
//     boundaries so they can be reflected in generated output.
//   - Semicolons between statements are optional.
//   - A single-statement if/while/for body parses to that statement's own
//     AST shape; it is NOT wrapped into a block here. Branch normalization
//     is the code generator's job.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentscript-lang/agentscript/lang/ast"
	"github.com/agentscript-lang/agentscript/lang/lexer"
	"github.com/agentscript-lang/agentscript/lang/token"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// SyntaxError describes a structurally invalid piece of source: a required
// child (declaration name, config object, block body, ...) is absent or an
// unexpected token appears where the grammar requires something else.
type SyntaxError struct {
	Pos      token.Position
	Expected string
	Got      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: syntax error: expected %s, got %s", e.Pos, e.Expected, e.Got)
}

// TypeAnnotationError describes a malformed type expression in a tool
// parameter annotation.
type TypeAnnotationError struct {
	Pos token.Position
	Msg string
}

func (e *TypeAnnotationError) Error() string {
	return fmt.Sprintf("%s: type annotation error: %s", e.Pos, e.Msg)
}

// ---------------------------------------------------------------------------
// Precedence levels (Pratt)
// ---------------------------------------------------------------------------

type precedence int

const (
	precLowest   precedence = iota
	precDeleg               // | ->   (delegation, loosest)
	precCoalesce            // ??
	precOr                  // ||
	precAnd                 // &&
	precCmp                 // == != < > <= >=
	precAdd                 // + -
	precMul                 // * / %
	precUnary               // !x -x
	precPostfix             // . [] ()
)

// infixPrecedence maps a token type to its infix binding power. All binary
// operators are left-associative, including delegation (see DESIGN.md for
// the associativity decision).
var infixPrecedence = map[token.Type]precedence{
	token.PIPE:     precDeleg,
	token.ARROW:    precDeleg,
	token.COALESCE: precCoalesce,
	token.OR:       precOr,
	token.AND:      precAnd,
	token.EQ:       precCmp,
	token.NEQ:      precCmp,
	token.LT:       precCmp,
	token.GT:       precCmp,
	token.LTE:      precCmp,
	token.GTE:      precCmp,
	token.PLUS:     precAdd,
	token.MINUS:    precAdd,
	token.STAR:     precMul,
	token.SLASH:    precMul,
	token.PERCENT:  precMul,
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser holds the mutable state for a single parse run.
type Parser struct {
	lex  *lexer.Lexer
	cur  token.Token // current (unconsumed) token
	peek token.Token // lookahead token

	// pending holds comment tokens collected while advancing. They are
	// drained into Comment statements at the next statement boundary.
	pending []token.Token
}

// Parse is the public entry point: it tokenizes source, runs the parser,
// and returns the program AST or the first fatal error encountered.
func Parse(filename, source string) (prog *ast.Program, err error) {
	p := &Parser{lex: lexer.New(filename, source)}
	// Prime cur and peek.
	p.advance()
	p.advance()

	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				prog, err = nil, perr
				return
			}
			panic(r)
		}
	}()

	return p.parseProgram(), nil
}

// advance shifts cur/peek one token forward, diverting comments into the
// pending queue.
func (p *Parser) advance() {
	p.cur = p.peek
	for {
		tok := p.lex.NextToken()
		if tok.Type == token.COMMENT {
			p.pending = append(p.pending, tok)
			continue
		}
		p.peek = tok
		return
	}
}

// fail aborts the parse with a SyntaxError.
func (p *Parser) fail(expected string) {
	got := p.cur.Type.String()
	if p.cur.Type == token.EOF {
		got = "end of input"
	} else if p.cur.Type == token.IDENT || p.cur.Type == token.NUMBER || p.cur.Type == token.STRING {
		got = fmt.Sprintf("%s %q", got, p.cur.Literal)
	}
	panic(&SyntaxError{Pos: p.cur.Pos, Expected: expected, Got: got})
}

// expect consumes the current token if it has the given type, failing
// otherwise. Returns the consumed token.
func (p *Parser) expect(typ token.Type, what string) token.Token {
	if p.cur.Type != typ {
		p.fail(what)
	}
	tok := p.cur
	p.advance()
	return tok
}

func (p *Parser) curIs(typ token.Type) bool { return p.cur.Type == typ }

// accept consumes the current token when it matches typ and reports whether
// it did.
func (p *Parser) accept(typ token.Type) bool {
	if p.cur.Type == typ {
		p.advance()
		return true
	}
	return false
}

// drainComments converts queued comment tokens into Comment statements.
func (p *Parser) drainComments() []ast.Statement {
	if len(p.pending) == 0 {
		return nil
	}
	out := make([]ast.Statement, len(p.pending))
	for i, tok := range p.pending {
		out[i] = &ast.Comment{Token: tok, Text: tok.Literal}
	}
	p.pending = p.pending[:0]
	return out
}

// ---------------------------------------------------------------------------
// Program and statements
// ---------------------------------------------------------------------------

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.curIs(token.EOF) {
		prog.Statements = append(prog.Statements, p.drainComments()...)
		if p.curIs(token.EOF) {
			break
		}
		prog.Statements = append(prog.Statements, p.parseStatement())
	}
	prog.Statements = append(prog.Statements, p.drainComments()...)
	return prog
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.cur.Type {
	case token.MCP:
		return p.parseConfigDecl(ast.DeclMCP)
	case token.MODEL:
		return p.parseConfigDecl(ast.DeclModel)
	case token.AGENT:
		return p.parseConfigDecl(ast.DeclAgent)
	case token.TOOL:
		return p.parseToolDecl()
	case token.IF:
		return p.parseIfStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.FOR:
		return p.parseForStmt()
	case token.BREAK:
		tok := p.cur
		p.advance()
		p.accept(token.SEMICOLON)
		return &ast.BreakStmt{Token: tok}
	case token.CONTINUE:
		tok := p.cur
		p.advance()
		p.accept(token.SEMICOLON)
		return &ast.ContinueStmt{Token: tok}
	case token.LBRACE:
		return p.parseBlock()
	default:
		return p.parseExprOrAssignStmt()
	}
}

// parseBlock parses an explicit brace-delimited block.
func (p *Parser) parseBlock() *ast.BlockStmt {
	lbrace := p.expect(token.LBRACE, "'{'")
	block := &ast.BlockStmt{Token: lbrace}
	for !p.curIs(token.RBRACE) {
		if p.curIs(token.EOF) {
			p.fail("'}'")
		}
		block.Statements = append(block.Statements, p.drainComments()...)
		if p.curIs(token.RBRACE) {
			break
		}
		block.Statements = append(block.Statements, p.parseStatement())
	}
	block.Statements = append(block.Statements, p.drainComments()...)
	p.advance() // consume '}'
	return block
}

// parseBranch parses an if/while/for body: either an explicit block or a
// single statement.
func (p *Parser) parseBranch() ast.Statement {
	if p.curIs(token.LBRACE) {
		return p.parseBlock()
	}
	return p.parseStatement()
}

func (p *Parser) parseIfStmt() ast.Statement {
	tok := p.expect(token.IF, "'if'")
	p.expect(token.LPAREN, "'(' after 'if'")
	cond := p.parseExpression(precLowest)
	p.expect(token.RPAREN, "')' after if condition")
	then := p.parseBranch()

	stmt := &ast.IfStmt{Token: tok, Cond: cond, Then: then}
	if p.accept(token.ELSE) {
		if p.curIs(token.IF) {
			stmt.Else = p.parseIfStmt()
		} else {
			stmt.Else = p.parseBranch()
		}
	}
	return stmt
}

func (p *Parser) parseWhileStmt() ast.Statement {
	tok := p.expect(token.WHILE, "'while'")
	p.expect(token.LPAREN, "'(' after 'while'")
	cond := p.parseExpression(precLowest)
	p.expect(token.RPAREN, "')' after while condition")
	return &ast.WhileStmt{Token: tok, Cond: cond, Body: p.parseBranch()}
}

// parseForStmt parses a C-style for loop. The two semicolons are the
// positional markers; init, condition, and update are each filled only when
// present between them, so for (;;) body is legal.
func (p *Parser) parseForStmt() ast.Statement {
	tok := p.expect(token.FOR, "'for'")
	p.expect(token.LPAREN, "'(' after 'for'")

	stmt := &ast.ForStmt{Token: tok}
	if !p.curIs(token.SEMICOLON) {
		stmt.Init = p.parseSimpleAssign("for-loop init")
	}
	p.expect(token.SEMICOLON, "';' after for-loop init")

	if !p.curIs(token.SEMICOLON) {
		stmt.Cond = p.parseExpression(precLowest)
	}
	p.expect(token.SEMICOLON, "';' after for-loop condition")

	if !p.curIs(token.RPAREN) {
		stmt.Update = p.parseSimpleAssign("for-loop update")
	}
	p.expect(token.RPAREN, "')' after for-loop clauses")

	stmt.Body = p.parseBranch()
	return stmt
}

// checkName rejects identifiers in the "__" namespace, which is reserved
// for generated runtime helpers.
func (p *Parser) checkName(tok token.Token, name string) {
	if strings.HasPrefix(name, "__") {
		panic(&SyntaxError{
			Pos:      tok.Pos,
			Expected: "a name outside the reserved '__' namespace",
			Got:      fmt.Sprintf("%q", name),
		})
	}
}

// checkTarget rejects reserved identifiers used as assignment targets.
func (p *Parser) checkTarget(e ast.Expression) {
	if id, ok := e.(*ast.Ident); ok {
		p.checkName(id.Token, id.Name)
	}
}

// parseSimpleAssign parses a bare assignment (no trailing terminator), as
// used by for-loop init and update clauses.
func (p *Parser) parseSimpleAssign(what string) *ast.AssignStmt {
	target := p.parseExpression(precLowest)
	if !ast.IsAssignmentTarget(target) {
		p.fail("assignable target in " + what)
	}
	p.checkTarget(target)
	eq := p.expect(token.ASSIGN, "'=' in "+what)
	value := p.parseExpression(precLowest)
	return &ast.AssignStmt{Token: eq, Target: target, Value: value}
}

// parseExprOrAssignStmt parses either an assignment or a bare expression
// statement, depending on whether an '=' follows the first expression.
func (p *Parser) parseExprOrAssignStmt() ast.Statement {
	first := p.cur
	expr := p.parseExpression(precLowest)

	if p.curIs(token.ASSIGN) {
		if !ast.IsAssignmentTarget(expr) {
			p.fail("assignable target (identifier, member, or index)")
		}
		p.checkTarget(expr)
		eq := p.cur
		p.advance()
		value := p.parseExpression(precLowest)
		p.accept(token.SEMICOLON)
		return &ast.AssignStmt{Token: eq, Target: expr, Value: value}
	}

	p.accept(token.SEMICOLON)
	return &ast.ExprStmt{Token: first, Expr: expr}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// parseConfigDecl parses an mcp/model/agent declaration. The declaration
// name and the config object are structurally required.
func (p *Parser) parseConfigDecl(kind ast.DeclKind) ast.Statement {
	tok := p.cur
	p.advance()

	name := p.expect(token.IDENT, kind.String()+" declaration name")
	p.checkName(name, name.Literal)
	decl := &ast.ConfigDecl{Token: tok, Kind: kind, Name: name.Literal}
	decl.Config = p.parseConfigObject(kind.String() + " config object")
	p.accept(token.SEMICOLON)
	return decl
}

// parseConfigObject parses a brace-delimited ordered (key: expression) list.
// Keys may be identifiers or keywords (an agent config's "model" key lexes
// as a keyword).
func (p *Parser) parseConfigObject(what string) []ast.ConfigEntry {
	p.expect(token.LBRACE, "'{' to open "+what)

	var entries []ast.ConfigEntry
	for !p.curIs(token.RBRACE) {
		if p.curIs(token.EOF) {
			p.fail("'}' to close " + what)
		}
		key := p.parseObjectKey()
		p.expect(token.COLON, "':' after config key")
		value := p.parseExpression(precLowest)
		entries = append(entries, ast.ConfigEntry{Key: key, Value: value})
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "'}' to close "+what)
	return entries
}

// parseObjectKey accepts an identifier, keyword, or string literal as an
// object/config key and returns its literal text.
func (p *Parser) parseObjectKey() string {
	switch {
	case p.curIs(token.IDENT) || token.IsKeyword(p.cur.Type):
		lit := p.cur.Literal
		p.advance()
		return lit
	case p.curIs(token.STRING):
		lit := p.cur.Literal
		p.advance()
		return lit
	}
	p.fail("object key")
	return "" // unreachable
}

func (p *Parser) parseToolDecl() ast.Statement {
	tok := p.expect(token.TOOL, "'tool'")
	name := p.expect(token.IDENT, "tool declaration name")
	p.checkName(name, name.Literal)

	p.expect(token.LPAREN, "'(' after tool name")
	var params []ast.Param
	for !p.curIs(token.RPAREN) {
		if p.curIs(token.EOF) {
			p.fail("')' after tool parameters")
		}
		params = append(params, p.parseParam())
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "')' after tool parameters")

	if !p.curIs(token.LBRACE) {
		p.fail("tool body block")
	}
	body := p.parseBlock()
	return &ast.ToolDecl{Token: tok, Name: name.Literal, Params: params, Body: body}
}

// parseParam parses a single tool parameter: name, optional '?' marker,
// optional ': type' annotation. An optional parameter's annotation is
// wrapped in OptionalType.
func (p *Parser) parseParam() ast.Param {
	name := p.expect(token.IDENT, "parameter name")
	p.checkName(name, name.Literal)
	param := ast.Param{Token: name, Name: name.Literal}

	if p.curIs(token.QUESTION) {
		param.Optional = true
		qtok := p.cur
		p.advance()
		if p.accept(token.COLON) {
			param.Type = &ast.OptionalType{Token: qtok, Inner: p.parseTypeAnnotation()}
		}
		return param
	}

	if p.accept(token.COLON) {
		param.Type = p.parseTypeAnnotation()
	}
	return param
}

// ---------------------------------------------------------------------------
// Type annotations
// ---------------------------------------------------------------------------

var primitiveNames = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"any":     true,
}

// parseTypeAnnotation parses a union of postfix types, left to right,
// producing a flat ordered union without deduplication.
func (p *Parser) parseTypeAnnotation() ast.TypeAnnotation {
	first := p.parsePostfixType()
	if !p.curIs(token.PIPE) {
		return first
	}

	union := &ast.UnionType{Token: p.cur, Members: []ast.TypeAnnotation{first}}
	for p.accept(token.PIPE) {
		union.Members = append(union.Members, p.parsePostfixType())
	}
	return union
}

// parsePostfixType parses a primary type followed by any number of '[]'
// array suffixes.
func (p *Parser) parsePostfixType() ast.TypeAnnotation {
	t := p.parsePrimaryType()
	for p.curIs(token.LBRACKET) {
		tok := p.cur
		p.advance()
		p.expect(token.RBRACKET, "']' in array type")
		t = &ast.ArrayType{Token: tok, Element: t}
	}
	return t
}

func (p *Parser) parsePrimaryType() ast.TypeAnnotation {
	switch p.cur.Type {
	case token.IDENT:
		tok := p.cur
		if !primitiveNames[tok.Literal] {
			panic(&TypeAnnotationError{
				Pos: tok.Pos,
				Msg: fmt.Sprintf("unknown type %q (expected string, number, boolean, any, or null)", tok.Literal),
			})
		}
		p.advance()
		return &ast.PrimitiveType{Token: tok, Name: tok.Literal}

	case token.NULL:
		tok := p.cur
		p.advance()
		return &ast.PrimitiveType{Token: tok, Name: "null"}

	case token.LBRACE:
		return p.parseObjectType()

	case token.LPAREN:
		p.advance()
		t := p.parseTypeAnnotation()
		p.expect(token.RPAREN, "')' in type annotation")
		return t
	}

	panic(&TypeAnnotationError{Pos: p.cur.Pos, Msg: "expected a type"})
}

func (p *Parser) parseObjectType() ast.TypeAnnotation {
	lbrace := p.expect(token.LBRACE, "'{' in object type")
	obj := &ast.ObjectType{Token: lbrace}

	for !p.curIs(token.RBRACE) {
		if p.curIs(token.EOF) {
			p.fail("'}' in object type")
		}
		name := p.cur
		if !p.curIs(token.IDENT) && !token.IsKeyword(p.cur.Type) {
			p.fail("object type field name")
		}
		p.advance()

		optional := p.accept(token.QUESTION)
		p.expect(token.COLON, "':' after object type field name")
		fieldType := p.parseTypeAnnotation()
		if optional {
			fieldType = &ast.OptionalType{Token: name, Inner: fieldType}
		}
		obj.Fields = append(obj.Fields, ast.ObjectField{
			Name:     name.Literal,
			Type:     fieldType,
			Optional: optional,
		})
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "'}' in object type")
	return obj
}

// ---------------------------------------------------------------------------
// Expressions (Pratt)
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression(prec precedence) ast.Expression {
	left := p.parseUnary()
	for {
		opPrec, ok := infixPrecedence[p.cur.Type]
		if !ok || opPrec <= prec {
			return left
		}
		op := p.cur
		p.advance()
		right := p.parseExpression(opPrec)
		left = &ast.BinaryExpr{Token: op, Op: op.Literal, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	switch p.cur.Type {
	case token.BANG, token.MINUS:
		tok := p.cur
		p.advance()
		return &ast.UnaryExpr{Token: tok, Op: tok.Literal, Operand: p.parseUnary()}
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any chain of member
// accesses, index accesses, and calls.
func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	for {
		switch p.cur.Type {
		case token.DOT:
			tok := p.cur
			p.advance()
			if !p.curIs(token.IDENT) && !token.IsKeyword(p.cur.Type) {
				p.fail("property name after '.'")
			}
			prop := p.cur.Literal
			p.advance()
			expr = &ast.MemberExpr{Token: tok, Object: expr, Property: prop}

		case token.LBRACKET:
			tok := p.cur
			p.advance()
			index := p.parseExpression(precLowest)
			p.expect(token.RBRACKET, "']' in index expression")
			expr = &ast.BracketExpr{Token: tok, Object: expr, Index: index}

		case token.LPAREN:
			tok := p.cur
			p.advance()
			var args []ast.Expression
			for !p.curIs(token.RPAREN) {
				if p.curIs(token.EOF) {
					p.fail("')' in call arguments")
				}
				args = append(args, p.parseExpression(precLowest))
				if !p.accept(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN, "')' in call arguments")
			expr = &ast.CallExpr{Token: tok, Callee: expr, Args: args}

		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expression {
	switch p.cur.Type {
	case token.IDENT:
		tok := p.cur
		p.advance()
		return &ast.Ident{Token: tok, Name: tok.Literal}

	case token.NUMBER:
		tok := p.cur
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.fail("numeric literal")
		}
		p.advance()
		return &ast.NumberLit{Token: tok, Value: v}

	case token.STRING:
		tok := p.cur
		p.advance()
		return &ast.StringLit{Token: tok, Value: tok.Literal}

	case token.TRUE, token.FALSE:
		tok := p.cur
		p.advance()
		return &ast.BoolLit{Token: tok, Value: tok.Type == token.TRUE}

	case token.NULL:
		tok := p.cur
		p.advance()
		return &ast.NullLit{Token: tok}

	case token.LBRACKET:
		tok := p.cur
		p.advance()
		arr := &ast.ArrayLit{Token: tok}
		for !p.curIs(token.RBRACKET) {
			if p.curIs(token.EOF) {
				p.fail("']' in array literal")
			}
			arr.Elements = append(arr.Elements, p.parseExpression(precLowest))
			if !p.accept(token.COMMA) {
				break
			}
		}
		p.expect(token.RBRACKET, "']' in array literal")
		return arr

	case token.LBRACE:
		tok := p.cur
		obj := &ast.ObjectLit{Token: tok}
		obj.Entries = p.parseConfigObject("object literal")
		return obj

	case token.LPAREN:
		p.advance()
		expr := p.parseExpression(precLowest)
		p.expect(token.RPAREN, "')' to close grouped expression")
		return expr
	}

	p.fail("an expression")
	return nil // unreachable
}
