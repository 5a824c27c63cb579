package query

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := "SELECT name, age FROM users WHERE age >= 18 AND name != 'bob'"
	want := []struct {
		typ   TokenType
		value string
	}{
		{TokenSelect, "SELECT"},
		{TokenIdent, "name"},
		{TokenComma, ","},
		{TokenIdent, "age"},
		{TokenFrom, "FROM"},
		{TokenIdent, "users"},
		{TokenWhere, "WHERE"},
		{TokenIdent, "age"},
		{TokenGreaterEqual, ">="},
		{TokenNumber, "18"},
		{TokenAnd, "AND"},
		{TokenIdent, "name"},
		{TokenNotEqual, "!="},
		{TokenString, "bob"},
		{TokenEOF, ""},
	}

	tokens := Tokenize(input)
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i, w := range want {
		if tokens[i].Type != w.typ || tokens[i].Value != w.value {
			t.Errorf("token %d: expected %v %q, got %v %q", i, w.typ, w.value, tokens[i].Type, tokens[i].Value)
		}
	}
}

func TestLexerOperators(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"=", TokenEqual},
		{"==", TokenEqual},
		{"<>", TokenNotEqual},
		{"<", TokenLess},
		{"<=", TokenLessEqual},
		{">", TokenGreater},
		{"||", TokenConcat},
		{"%", TokenPercent},
		{"/", TokenSlash},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != tt.typ {
				t.Errorf("expected %v, got %v", tt.typ, tok.Type)
			}
		})
	}
}

func TestLexerStringsAndIdentifiers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		value string
	}{
		{"'it''s'", TokenString, "it's"},
		{`'a\'b'`, TokenString, "a'b"},
		{`"double"`, TokenString, "double"},
		{"`order`", TokenIdent, "order"},
		{"addr.city", TokenIdent, "addr.city"},
		{"1.5e3", TokenNumber, "1.5e3"},
		{".5", TokenNumber, ".5"},
		{"select", TokenSelect, "select"},
		{"true", TokenBool, "true"},
		{"'open", TokenError, "unterminated string"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != tt.typ || tok.Value != tt.value {
				t.Errorf("expected %v %q, got %v %q", tt.typ, tt.value, tok.Type, tok.Value)
			}
		})
	}
}

func TestLexerSkipsComments(t *testing.T) {
	tokens := Tokenize("SELECT -- pick everything\n* FROM t")
	if len(tokens) != 5 {
		t.Fatalf("expected 5 tokens, got %d: %v", len(tokens), tokens)
	}
	if tokens[1].Type != TokenStar {
		t.Errorf("expected * after comment, got %v", tokens[1].Type)
	}
}

func TestLexerMinusIsNotComment(t *testing.T) {
	tokens := Tokenize("a - 1")
	if len(tokens) != 4 || tokens[1].Type != TokenMinus {
		t.Fatalf("expected a - 1, got %v", tokens)
	}
}
