// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package compiler turns Dōji source text into bytecode.Function values:
// a hand-written lexer, a recursive-descent parser producing a small AST,
// and a single-pass codegen that emits directly through bytecode.Assembler
// (no intermediate IR). This mirrors the teacher's lexer/parser/ast/codegen
// split, rewritten for Dōji's much smaller surface grammar (spec.md leaves
// the Compiler unspecified as a subject; SPEC_FULL.md §4 supplements a
// deliberately small one so the CLI has something to run besides
// hand-assembled bytecode).
package compiler

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
)

// Position tracks source location for error messages.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// TokenType enumerates the lexical token kinds this grammar needs.
type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	IDENT
	INT
	FLOAT
	STRING

	// keywords
	LET
	FN
	IF
	ELSE
	RETURN
	SPAWN
	YIELD
	TRUE
	FALSE
	NIL

	// operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	BANG
	AMPAMP
	PIPEPIPE
	AMP
	PIPE
	CARET
	SHL
	SHR

	EQ
	NEQ
	GT
	GTE
	LT
	LTE
	ASSIGN

	// punctuation
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	COMMA
	COLON
	SEMI
)

var tokenNames = map[TokenType]string{
	ILLEGAL: "ILLEGAL", EOF: "EOF",
	IDENT: "IDENT", INT: "INT", FLOAT: "FLOAT", STRING: "STRING",
	LET: "let", FN: "fn", IF: "if", ELSE: "else", RETURN: "return",
	SPAWN: "spawn", YIELD: "yield", TRUE: "true", FALSE: "false", NIL: "nil",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%", BANG: "!",
	AMPAMP: "&&", PIPEPIPE: "||", AMP: "&", PIPE: "|", CARET: "^",
	SHL: "<<", SHR: ">>",
	EQ: "==", NEQ: "!=", GT: ">", GTE: ">=", LT: "<", LTE: "<=", ASSIGN: "=",
	LPAREN: "(", RPAREN: ")", LBRACE: "{", RBRACE: "}",
	LBRACKET: "[", RBRACKET: "]", COMMA: ",", COLON: ":", SEMI: ";",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "?"
}

var keywords = map[string]TokenType{
	"let": LET, "fn": FN, "if": IF, "else": ELSE, "return": RETURN,
	"spawn": SPAWN, "yield": YIELD, "true": TRUE, "false": FALSE, "nil": NIL,
}

// keywordSet is the membership test scanIdent consults before falling back
// to the keywords map for the matched TokenType (mirrors the teacher's use
// of golang-set for lookup tables rather than a bare map).
var keywordSet = func() mapset.Set {
	s := mapset.NewSet()
	for k := range keywords {
		s.Add(k)
	}
	return s
}()

// Token is one lexical unit.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}
