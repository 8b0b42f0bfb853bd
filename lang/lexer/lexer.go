// Copyright 2025 The AgentScript Authors
// This file is part of AgentScript.
//
// AgentScript is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package lexer implements a single-pass, no-backtracking lexer for the
// AgentScript language.
//
// Design principles:
//   - ASCII-only input
//   - Single-pass, no backtracking
//   - // line comments and /* */ block comments are emitted as COMMENT
//     tokens (the parser preserves them as first-class statements)
//   - Number literals cover integers, decimals, and scientific notation
//   - String literals ("...") support standard escape sequences
package lexer

import (
	"strings"

	"github.com/agentscript-lang/agentscript/lang/token"
)

// Lexer holds the state for a single-pass tokenization run.
type Lexer struct {
	filename string
	input    []byte

	// pos is the index into input of the next byte to be loaded into ch.
	// After advance(), ch == input[pos-1] and pos points one past it.
	pos  int
	line int // 1-based current line number
	col  int // 1-based current column number

	ch byte // current character; 0 when past end
}

// New creates a new Lexer for the given filename and input string.
func New(filename, input string) *Lexer {
	l := &Lexer{
		filename: filename,
		input:    []byte(input),
		line:     1,
		col:      0,
	}
	l.advance() // prime l.ch with the first byte
	return l
}

// advance moves to the next byte in the input, updating line/column tracking.
// When the end of input is reached, ch is set to 0.
func (l *Lexer) advance() {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	if l.pos >= len(l.input) {
		l.ch = 0
		return
	}
	l.ch = l.input[l.pos]
	l.pos++
}

// peek returns the byte after the current character without consuming it.
// Returns 0 if at or past end.
func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

// currentPos returns a token.Position capturing the lexer's state right now.
// Call this before consuming the first character of a token.
func (l *Lexer) currentPos() token.Position {
	return token.Position{
		File:   l.filename,
		Line:   l.line,
		Column: l.col,
		Offset: l.pos - 1,
	}
}

func makeToken(typ token.Type, literal string, pos token.Position) token.Token {
	return token.Token{Type: typ, Literal: literal, Pos: pos}
}

// skipWhitespace consumes space, tab, carriage return, and newline characters.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.advance()
	}
}

// NextToken scans and returns the next token from the input.
// After EOF is reached, subsequent calls continue returning EOF tokens.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	pos := l.currentPos()
	ch := l.ch

	if ch == 0 {
		return makeToken(token.EOF, "", pos)
	}

	l.advance() // consume ch; from here on, l.ch is the character AFTER ch

	switch {
	case isIdentStart(ch):
		lit := l.readIdentFromFirst(ch)
		return makeToken(token.LookupIdent(lit), lit, pos)

	case isDigit(ch):
		lit := l.readNumberFromFirst(ch)
		return makeToken(token.NUMBER, lit, pos)

	case ch == '"':
		lit, ok := l.readStringBody()
		if !ok {
			return makeToken(token.ILLEGAL, lit, pos)
		}
		return makeToken(token.STRING, lit, pos)

	case ch == '/':
		switch l.ch {
		case '/':
			l.advance()
			return makeToken(token.COMMENT, l.readLineComment(), pos)
		case '*':
			l.advance()
			lit, ok := l.readBlockComment()
			if !ok {
				return makeToken(token.ILLEGAL, lit, pos)
			}
			return makeToken(token.COMMENT, lit, pos)
		}
		return makeToken(token.SLASH, "/", pos)

	case ch == '+':
		return makeToken(token.PLUS, "+", pos)

	case ch == '-':
		if l.ch == '>' {
			l.advance()
			return makeToken(token.ARROW, "->", pos)
		}
		return makeToken(token.MINUS, "-", pos)

	case ch == '*':
		return makeToken(token.STAR, "*", pos)

	case ch == '%':
		return makeToken(token.PERCENT, "%", pos)

	case ch == '!':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.NEQ, "!=", pos)
		}
		return makeToken(token.BANG, "!", pos)

	case ch == '=':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.EQ, "==", pos)
		}
		return makeToken(token.ASSIGN, "=", pos)

	case ch == '<':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.LTE, "<=", pos)
		}
		return makeToken(token.LT, "<", pos)

	case ch == '>':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.GTE, ">=", pos)
		}
		return makeToken(token.GT, ">", pos)

	case ch == '&':
		if l.ch == '&' {
			l.advance()
			return makeToken(token.AND, "&&", pos)
		}
		return makeToken(token.ILLEGAL, "&", pos)

	case ch == '|':
		if l.ch == '|' {
			l.advance()
			return makeToken(token.OR, "||", pos)
		}
		return makeToken(token.PIPE, "|", pos)

	case ch == '?':
		if l.ch == '?' {
			l.advance()
			return makeToken(token.COALESCE, "??", pos)
		}
		return makeToken(token.QUESTION, "?", pos)

	case ch == '.':
		return makeToken(token.DOT, ".", pos)

	case ch == '(':
		return makeToken(token.LPAREN, "(", pos)
	case ch == ')':
		return makeToken(token.RPAREN, ")", pos)
	case ch == '[':
		return makeToken(token.LBRACKET, "[", pos)
	case ch == ']':
		return makeToken(token.RBRACKET, "]", pos)
	case ch == '{':
		return makeToken(token.LBRACE, "{", pos)
	case ch == '}':
		return makeToken(token.RBRACE, "}", pos)
	case ch == ',':
		return makeToken(token.COMMA, ",", pos)
	case ch == ';':
		return makeToken(token.SEMICOLON, ";", pos)
	case ch == ':':
		return makeToken(token.COLON, ":", pos)
	}

	return makeToken(token.ILLEGAL, string(ch), pos)
}

// Tokenize scans the whole input and returns every token up to and including
// the first EOF token.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

// readIdentFromFirst reads the remainder of an identifier whose first
// character has already been consumed.
func (l *Lexer) readIdentFromFirst(first byte) string {
	var sb strings.Builder
	sb.WriteByte(first)
	for isIdentPart(l.ch) {
		sb.WriteByte(l.ch)
		l.advance()
	}
	return sb.String()
}

// readNumberFromFirst reads the remainder of a numeric literal whose first
// digit has already been consumed. Accepts 42, 3.14, 1e5, 2.5e-3.
func (l *Lexer) readNumberFromFirst(first byte) string {
	var sb strings.Builder
	sb.WriteByte(first)
	for isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.advance()
	}
	if l.ch == '.' && isDigit(l.peek()) {
		sb.WriteByte('.')
		l.advance()
		for isDigit(l.ch) {
			sb.WriteByte(l.ch)
			l.advance()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peek()
		signedDigit := (next == '+' || next == '-') &&
			l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])
		if isDigit(next) || signedDigit {
			sb.WriteByte(l.ch)
			l.advance()
			if l.ch == '+' || l.ch == '-' {
				sb.WriteByte(l.ch)
				l.advance()
			}
			for isDigit(l.ch) {
				sb.WriteByte(l.ch)
				l.advance()
			}
		}
	}
	return sb.String()
}

// readStringBody reads a string literal body. The opening quote has already
// been consumed. Returns the decoded value and whether the string terminated.
func (l *Lexer) readStringBody() (string, bool) {
	var sb strings.Builder
	for {
		switch l.ch {
		case 0, '\n':
			return sb.String(), false // unterminated
		case '"':
			l.advance()
			return sb.String(), true
		case '\\':
			l.advance()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case '0':
				sb.WriteByte(0)
			default:
				// Unknown escape: keep the raw character.
				sb.WriteByte(l.ch)
			}
			l.advance()
		default:
			sb.WriteByte(l.ch)
			l.advance()
		}
	}
}

// readLineComment reads until end of line. The leading "//" has been consumed.
func (l *Lexer) readLineComment() string {
	var sb strings.Builder
	for l.ch != '\n' && l.ch != 0 {
		sb.WriteByte(l.ch)
		l.advance()
	}
	return strings.TrimSpace(sb.String())
}

// readBlockComment reads until the closing "*/". The leading "/*" has been
// consumed. Returns the body and whether the comment terminated.
func (l *Lexer) readBlockComment() (string, bool) {
	var sb strings.Builder
	for {
		if l.ch == 0 {
			return strings.TrimSpace(sb.String()), false
		}
		if l.ch == '*' && l.peek() == '/' {
			l.advance()
			l.advance()
			return strings.TrimSpace(sb.String()), true
		}
		sb.WriteByte(l.ch)
		l.advance()
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }
