package spreadsheet

import (
	"fmt"
	"unicode"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenNumber TokenType = iota
	TokenString
	TokenIdent
	TokenOp
	TokenCmp
	TokenSymbol
)

func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenIdent:
		return "ident"
	case TokenOp:
		return "op"
	case TokenCmp:
		return "cmp"
	case TokenSymbol:
		return "symbol"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// character classification constants. slightly easier to read.
const (
	charQuote      = '"'
	charApostrophe = '\''
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charUnderscore = '_'
	charExclaim    = '!'
	charDollar     = '$'
)

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

func (t Token) is(typ TokenType, value string) bool {
	return t.Type == typ && t.Value == value
}

// Lexer tokenizes formula bodies (the text after the leading "="). it is
// lenient: whitespace is skipped and characters that start no token are
// dropped without error.
type Lexer struct {
	input  string
	runes  []rune // UTF-8 aware representation
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer for the given formula body
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		runes: []rune(input),
	}
}

// Tokenize is shorthand for NewLexer(body).Tokenize()
func Tokenize(body string) []Token {
	return NewLexer(body).Tokenize()
}

// Tokenize converts the input into tokens
func (l *Lexer) Tokenize() []Token {
	l.tokens = l.tokens[:0]
	l.pos = 0

	for l.pos < len(l.runes) {
		ch := l.runes[l.pos]

		switch {
		case unicode.IsSpace(ch):
			l.pos++

		case isDigit(ch) || (ch == charPeriod && isDigit(l.peek(1))):
			l.readNumber()

		case ch == charQuote:
			l.readString()

		case ch == charApostrophe:
			l.readQuotedIdent()

		case isIdentStart(ch):
			l.readIdent(l.pos)

		case ch == charPlus || ch == charMinus || ch == charAsterisk ||
			ch == charSlash || ch == charAmpersand:
			l.emit(TokenOp, string(ch), l.pos)
			l.pos++

		case ch == charEqual || ch == charLess || ch == charGreater:
			l.readComparison()

		case ch == charLParen || ch == charRParen || ch == charComma || ch == charColon:
			l.emit(TokenSymbol, string(ch), l.pos)
			l.pos++

		default:
			// unknown characters are dropped
			l.pos++
		}
	}

	return l.tokens
}

func (l *Lexer) emit(typ TokenType, value string, start int) {
	l.tokens = append(l.tokens, Token{Type: typ, Value: value, Pos: start})
}

func (l *Lexer) peek(offset int) rune {
	if l.pos+offset < len(l.runes) {
		return l.runes[l.pos+offset]
	}
	return 0
}

// readNumber consumes digits and periods. "1.2.3" is a single token; the
// parser decides what it is worth.
func (l *Lexer) readNumber() {
	start := l.pos
	l.pos++
	for l.pos < len(l.runes) && (isDigit(l.runes[l.pos]) || l.runes[l.pos] == charPeriod) {
		l.pos++
	}
	l.emit(TokenNumber, string(l.runes[start:l.pos]), start)
}

// readString consumes a double-quoted literal. "" inside the literal is an
// escaped quote; an unterminated literal runs to the end of input.
func (l *Lexer) readString() {
	start := l.pos
	l.pos++ // opening quote

	var value []rune
	for l.pos < len(l.runes) {
		ch := l.runes[l.pos]
		if ch == charQuote {
			if l.peek(1) == charQuote {
				value = append(value, charQuote)
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		value = append(value, ch)
		l.pos++
	}

	l.emit(TokenString, string(value), start)
}

// readQuotedIdent handles 'Sheet Name'!A1. the quoted part is kept verbatim
// in the token so the address resolver can unquote it. an apostrophe not
// followed by a closed name and "!" is dropped.
func (l *Lexer) readQuotedIdent() {
	start := l.pos
	i := l.pos + 1
	for i < len(l.runes) {
		if l.runes[i] == charApostrophe {
			if i+1 < len(l.runes) && l.runes[i+1] == charApostrophe {
				i += 2
				continue
			}
			break
		}
		i++
	}
	if i+1 >= len(l.runes) || l.runes[i] != charApostrophe || l.runes[i+1] != charExclaim {
		l.pos++
		return
	}
	l.pos = i + 1
	l.readIdent(start)
}

// readIdent consumes identifier characters starting at l.pos; the token
// begins at start
func (l *Lexer) readIdent(start int) {
	l.pos++
	for l.pos < len(l.runes) && isIdentPart(l.runes[l.pos]) {
		l.pos++
	}
	l.emit(TokenIdent, string(l.runes[start:l.pos]), start)
}

func (l *Lexer) readComparison() {
	start := l.pos
	ch := l.runes[l.pos]
	next := l.peek(1)
	if (ch == charLess && (next == charEqual || next == charGreater)) ||
		(ch == charGreater && next == charEqual) {
		l.emit(TokenCmp, string([]rune{ch, next}), start)
		l.pos += 2
		return
	}
	l.emit(TokenCmp, string(ch), start)
	l.pos++
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == charUnderscore || ch == charDollar || ch == charExclaim
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}
