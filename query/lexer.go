package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes SQL query strings
type Lexer struct {
	input string
	pos   int
	ch    rune
	width int
}

// NewLexer creates a new lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar reads the next character
func (l *Lexer) readChar() {
	l.pos += l.width
	if l.pos >= len(l.input) {
		l.ch, l.width = 0, 0
		return
	}
	l.ch, l.width = utf8.DecodeRuneInString(l.input[l.pos:])
}

// peekChar looks at the next character without advancing
func (l *Lexer) peekChar() rune {
	next := l.pos + l.width
	if next >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[next:])
	return r
}

// skipWhitespace skips whitespace and -- line comments
func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// readString reads a quoted string. The quote is escaped by doubling it or
// with a backslash.
func (l *Lexer) readString(quote rune) (string, bool) {
	var result strings.Builder
	l.readChar() // skip opening quote

	for l.ch != 0 {
		switch {
		case l.ch == quote && l.peekChar() == quote:
			result.WriteRune(quote)
			l.readChar()
		case l.ch == quote:
			l.readChar() // skip closing quote
			return result.String(), true
		case l.ch == '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				result.WriteRune('\n')
			case 't':
				result.WriteRune('\t')
			case 0:
				return result.String(), false
			default:
				result.WriteRune(l.ch)
			}
		default:
			result.WriteRune(l.ch)
		}
		l.readChar()
	}
	return result.String(), false
}

// readNumber reads an integer or decimal number with an optional exponent
func (l *Lexer) readNumber() string {
	start := l.pos
	for unicode.IsDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if unicode.IsDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for unicode.IsDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return l.input[start:l.pos]
}

// readIdentifier reads an identifier or keyword. Dots are kept so that
// qualified names (t.col) and nested JSON paths (addr.city) stay one token.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for unicode.IsLetter(l.ch) || unicode.IsDigit(l.ch) || l.ch == '_' || l.ch == '.' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	single := func(t TokenType) Token {
		tok := Token{Type: t, Value: string(l.ch)}
		l.readChar()
		return tok
	}
	double := func(t TokenType, value string) Token {
		l.readChar()
		l.readChar()
		return Token{Type: t, Value: value}
	}

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Value: ""}
	case '=':
		if l.peekChar() == '=' {
			return double(TokenEqual, "==")
		}
		return single(TokenEqual)
	case '!':
		if l.peekChar() == '=' {
			return double(TokenNotEqual, "!=")
		}
		return single(TokenError)
	case '<':
		switch l.peekChar() {
		case '=':
			return double(TokenLessEqual, "<=")
		case '>':
			return double(TokenNotEqual, "<>")
		}
		return single(TokenLess)
	case '>':
		if l.peekChar() == '=' {
			return double(TokenGreaterEqual, ">=")
		}
		return single(TokenGreater)
	case '|':
		if l.peekChar() == '|' {
			return double(TokenConcat, "||")
		}
		return single(TokenError)
	case '\'', '"':
		value, ok := l.readString(l.ch)
		if !ok {
			return Token{Type: TokenError, Value: "unterminated string"}
		}
		return Token{Type: TokenString, Value: value}
	case '`':
		value, ok := l.readString('`')
		if !ok {
			return Token{Type: TokenError, Value: "unterminated identifier"}
		}
		return Token{Type: TokenIdent, Value: value}
	case '*':
		return single(TokenStar)
	case '+':
		return single(TokenPlus)
	case '-':
		return single(TokenMinus)
	case '/':
		return single(TokenSlash)
	case '%':
		return single(TokenPercent)
	case ',':
		return single(TokenComma)
	case '(':
		return single(TokenLeftParen)
	case ')':
		return single(TokenRightParen)
	}

	switch {
	case unicode.IsDigit(l.ch) || (l.ch == '.' && unicode.IsDigit(l.peekChar())):
		return Token{Type: TokenNumber, Value: l.readNumber()}
	case unicode.IsLetter(l.ch) || l.ch == '_':
		value := l.readIdentifier()
		return Token{Type: identifierType(value), Value: value}
	}
	return single(TokenError)
}

// keywords maps upper-case keywords to their token types
var keywords = map[string]TokenType{
	"SELECT":    TokenSelect,
	"FROM":      TokenFrom,
	"WHERE":     TokenWhere,
	"AND":       TokenAnd,
	"OR":        TokenOr,
	"AS":        TokenAs,
	"GROUP":     TokenGroup,
	"BY":        TokenBy,
	"HAVING":    TokenHaving,
	"ORDER":     TokenOrder,
	"ASC":       TokenAsc,
	"DESC":      TokenDesc,
	"LIMIT":     TokenLimit,
	"OFFSET":    TokenOffset,
	"IN":        TokenIn,
	"LIKE":      TokenLike,
	"BETWEEN":   TokenBetween,
	"IS":        TokenIs,
	"NOT":       TokenNot,
	"NULL":      TokenNull,
	"DISTINCT":  TokenDistinct,
	"CASE":      TokenCase,
	"WHEN":      TokenWhen,
	"THEN":      TokenThen,
	"ELSE":      TokenElse,
	"END":       TokenEnd,
	"OVER":      TokenOver,
	"PARTITION": TokenPartition,
	"ROWS":      TokenRows,
	"RANGE":     TokenRange,
	"WITH":      TokenWith,
	"JOIN":      TokenJoin,
	"INNER":     TokenInner,
	"LEFT":      TokenLeft,
	"RIGHT":     TokenRight,
	"FULL":      TokenFull,
	"OUTER":     TokenOuter,
	"ANTI":      TokenAnti,
	"SEMI":      TokenSemi,
	"ON":        TokenOn,
	"USING":     TokenUsing,
	"CAST":      TokenCast,
	"UNBOUNDED": TokenUnbounded,
	"PRECEDING": TokenPreceding,
	"FOLLOWING": TokenFollowing,
	"CURRENT":   TokenCurrent,
	"ROW":       TokenRow,
	"TRUE":      TokenBool,
	"FALSE":     TokenBool,
}

// identifierType determines if an identifier is a keyword
func identifierType(ident string) TokenType {
	if tokType, ok := keywords[strings.ToUpper(ident)]; ok {
		return tokType
	}
	return TokenIdent
}

// Tokenize returns all tokens from the input
func Tokenize(input string) []Token {
	lexer := NewLexer(input)
	var tokens []Token

	for {
		tok := lexer.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}

	return tokens
}
