// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package token defines the lexical token types for the AgentScript language.
//
// Design principles:
//   - ASCII-only primitives
//   - Single-token lookahead grammar (one peek token suffices)
//   - Brace-based scoping (not whitespace-significant)
//   - Comments are first-class tokens so the parser can preserve them
package token

import "fmt"

// Token represents a lexical token.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

// Position tracks source location.
type Position struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Type is the set of lexical token types.
type Type int

const (
	// Special tokens
	ILLEGAL Type = iota
	EOF
	COMMENT

	// Literals
	IDENT  // main, x, my_agent
	NUMBER // 42, 3.14, 1e5
	STRING // "hello"

	// Operators
	PLUS     // +
	MINUS    // -
	STAR     // *
	SLASH    // /
	PERCENT  // %
	BANG     // !
	DOT      // .
	PIPE     // |  (delegation)
	ARROW    // -> (delegation)
	COALESCE // ??

	// Comparison
	EQ  // ==
	NEQ // !=
	LT  // <
	GT  // >
	LTE // <=
	GTE // >=

	// Logical
	AND // &&
	OR  // ||

	// Assignment
	ASSIGN // =

	// Delimiters
	LPAREN    // (
	RPAREN    // )
	LBRACKET  // [
	RBRACKET  // ]
	LBRACE    // {
	RBRACE    // }
	COMMA     // ,
	SEMICOLON // ;
	COLON     // :
	QUESTION  // ?

	// Keywords
	keywordStart
	MCP      // mcp
	MODEL    // model
	AGENT    // agent
	TOOL     // tool
	IF       // if
	ELSE     // else
	WHILE    // while
	FOR      // for
	BREAK    // break
	CONTINUE // continue
	TRUE     // true
	FALSE    // false
	NULL     // null
	keywordEnd
)

var tokenNames = map[Type]string{
	ILLEGAL:   "ILLEGAL",
	EOF:       "EOF",
	COMMENT:   "COMMENT",
	IDENT:     "IDENT",
	NUMBER:    "NUMBER",
	STRING:    "STRING",
	PLUS:      "+",
	MINUS:     "-",
	STAR:      "*",
	SLASH:     "/",
	PERCENT:   "%",
	BANG:      "!",
	DOT:       ".",
	PIPE:      "|",
	ARROW:     "->",
	COALESCE:  "??",
	EQ:        "==",
	NEQ:       "!=",
	LT:        "<",
	GT:        ">",
	LTE:       "<=",
	GTE:       ">=",
	AND:       "&&",
	OR:        "||",
	ASSIGN:    "=",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACKET:  "[",
	RBRACKET:  "]",
	LBRACE:    "{",
	RBRACE:    "}",
	COMMA:     ",",
	SEMICOLON: ";",
	COLON:     ":",
	QUESTION:  "?",
	MCP:       "mcp",
	MODEL:     "model",
	AGENT:     "agent",
	TOOL:      "tool",
	IF:        "if",
	ELSE:      "else",
	WHILE:     "while",
	FOR:       "for",
	BREAK:     "break",
	CONTINUE:  "continue",
	TRUE:      "true",
	FALSE:     "false",
	NULL:      "null",
}

func (t Type) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

var keywords = map[string]Type{
	"mcp":      MCP,
	"model":    MODEL,
	"agent":    AGENT,
	"tool":     TOOL,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"break":    BREAK,
	"continue": CONTINUE,
	"true":     TRUE,
	"false":    FALSE,
	"null":     NULL,
}

// LookupIdent returns the keyword token type for an identifier literal, or
// IDENT when the literal is not a keyword.
func LookupIdent(lit string) Type {
	if typ, ok := keywords[lit]; ok {
		return typ
	}
	return IDENT
}

// IsKeyword reports whether t is a language keyword.
func IsKeyword(t Type) bool { return t > keywordStart && t < keywordEnd }
