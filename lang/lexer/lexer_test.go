// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package lexer

import (
	"testing"

	"github.com/agentscript-lang/agentscript/lang/token"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type expected struct {
	typ     token.Type
	literal string
}

// assertTokens tokenizes src and compares types and literals against want,
// which must not include the trailing EOF.
func assertTokens(t *testing.T, src string, want []expected) {
	t.Helper()
	toks := New("test.asl", src).Tokenize()
	if len(toks) != len(want)+1 {
		t.Fatalf("token count mismatch: got %d, want %d (plus EOF)\ntokens: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w.typ || toks[i].Literal != w.literal {
			t.Fatalf("token %d: got (%s, %q), want (%s, %q)", i, toks[i].Type, toks[i].Literal, w.typ, w.literal)
		}
	}
	if last := toks[len(toks)-1]; last.Type != token.EOF {
		t.Fatalf("last token is %s, want EOF", last.Type)
	}
}

// ---------------------------------------------------------------------------
// Basics
// ---------------------------------------------------------------------------

func TestLexer_KeywordsAndIdents(t *testing.T) {
	assertTokens(t, "mcp model agent tool if else while for break continue true false null answer _priv x1", []expected{
		{token.MCP, "mcp"}, {token.MODEL, "model"}, {token.AGENT, "agent"}, {token.TOOL, "tool"},
		{token.IF, "if"}, {token.ELSE, "else"}, {token.WHILE, "while"}, {token.FOR, "for"},
		{token.BREAK, "break"}, {token.CONTINUE, "continue"},
		{token.TRUE, "true"}, {token.FALSE, "false"}, {token.NULL, "null"},
		{token.IDENT, "answer"}, {token.IDENT, "_priv"}, {token.IDENT, "x1"},
	})
}

func TestLexer_Numbers(t *testing.T) {
	assertTokens(t, "42 3.14 1e5 2.5e-3 7E+2 0.5", []expected{
		{token.NUMBER, "42"}, {token.NUMBER, "3.14"}, {token.NUMBER, "1e5"},
		{token.NUMBER, "2.5e-3"}, {token.NUMBER, "7E+2"}, {token.NUMBER, "0.5"},
	})
}

func TestLexer_NumberFollowedByMember(t *testing.T) {
	// The dot only joins the number when a digit follows, so member access
	// on a numeric variable's value never swallows the dot.
	assertTokens(t, "1.x", []expected{
		{token.NUMBER, "1"}, {token.DOT, "."}, {token.IDENT, "x"},
	})
}

func TestLexer_ExponentNeedsDigits(t *testing.T) {
	// "1e" and "1e+" are a number followed by an identifier/operator, not a
	// malformed exponent.
	assertTokens(t, "1e", []expected{
		{token.NUMBER, "1"}, {token.IDENT, "e"},
	})
	assertTokens(t, "1e+2e", []expected{
		{token.NUMBER, "1e+2"}, {token.IDENT, "e"},
	})
}

func TestLexer_Strings(t *testing.T) {
	assertTokens(t, `"hello" "a\nb" "q: \"x\"" "back\\slash"`, []expected{
		{token.STRING, "hello"},
		{token.STRING, "a\nb"},
		{token.STRING, `q: "x"`},
		{token.STRING, `back\slash`},
	})
}

func TestLexer_UnterminatedString(t *testing.T) {
	toks := New("test.asl", `"oops`).Tokenize()
	if toks[0].Type != token.ILLEGAL {
		t.Fatalf("got %s, want ILLEGAL", toks[0].Type)
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestLexer_Operators(t *testing.T) {
	assertTokens(t, "+ - * / % ! = == != < > <= >= && || | -> ?? ? . ( ) [ ] { } , ; :", []expected{
		{token.PLUS, "+"}, {token.MINUS, "-"}, {token.STAR, "*"}, {token.SLASH, "/"}, {token.PERCENT, "%"},
		{token.BANG, "!"}, {token.ASSIGN, "="}, {token.EQ, "=="}, {token.NEQ, "!="},
		{token.LT, "<"}, {token.GT, ">"}, {token.LTE, "<="}, {token.GTE, ">="},
		{token.AND, "&&"}, {token.OR, "||"}, {token.PIPE, "|"}, {token.ARROW, "->"},
		{token.COALESCE, "??"}, {token.QUESTION, "?"}, {token.DOT, "."},
		{token.LPAREN, "("}, {token.RPAREN, ")"}, {token.LBRACKET, "["}, {token.RBRACKET, "]"},
		{token.LBRACE, "{"}, {token.RBRACE, "}"}, {token.COMMA, ","}, {token.SEMICOLON, ";"}, {token.COLON, ":"},
	})
}

func TestLexer_PipeVersusOr(t *testing.T) {
	assertTokens(t, "a | b || c", []expected{
		{token.IDENT, "a"}, {token.PIPE, "|"}, {token.IDENT, "b"},
		{token.OR, "||"}, {token.IDENT, "c"},
	})
}

func TestLexer_LoneAmpersandIllegal(t *testing.T) {
	assertTokens(t, "a & b", []expected{
		{token.IDENT, "a"}, {token.ILLEGAL, "&"}, {token.IDENT, "b"},
	})
}

// ---------------------------------------------------------------------------
// Comments
// ---------------------------------------------------------------------------

func TestLexer_Comments(t *testing.T) {
	src := `// line note
x /* inline
block */ y`
	assertTokens(t, src, []expected{
		{token.COMMENT, "line note"},
		{token.IDENT, "x"},
		{token.COMMENT, "inline\nblock"},
		{token.IDENT, "y"},
	})
}

func TestLexer_UnterminatedBlockComment(t *testing.T) {
	toks := New("test.asl", "/* never closed").Tokenize()
	if toks[0].Type != token.ILLEGAL {
		t.Fatalf("got %s, want ILLEGAL", toks[0].Type)
	}
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

func TestLexer_Positions(t *testing.T) {
	src := "x = 1\ny = 2"
	toks := New("test.asl", src).Tokenize()

	wantLines := []int{1, 1, 1, 2, 2, 2}
	wantCols := []int{1, 3, 5, 1, 3, 5}
	for i := range wantLines {
		if toks[i].Pos.Line != wantLines[i] || toks[i].Pos.Column != wantCols[i] {
			t.Fatalf("token %d (%s): position %d:%d, want %d:%d",
				i, toks[i].Literal, toks[i].Pos.Line, toks[i].Pos.Column, wantLines[i], wantCols[i])
		}
	}
	if toks[0].Pos.File != "test.asl" {
		t.Fatalf("position file %q, want test.asl", toks[0].Pos.File)
	}
}

func TestLexer_EOFIsSticky(t *testing.T) {
	l := New("test.asl", "x")
	l.NextToken() // x
	for i := 0; i < 3; i++ {
		if tok := l.NextToken(); tok.Type != token.EOF {
			t.Fatalf("call %d after end: got %s, want EOF", i, tok.Type)
		}
	}
}
