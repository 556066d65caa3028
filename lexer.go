// lexer.go
package rho

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// TokenType represents the kind of token.
type TokenType int

const (
	// Special
	EOF TokenType = iota

	// Punctuation
	LROUND // "("
	RROUND // ")"
	QUOTE  // "'"
	TAG    // ":name", tags the next argument or formal

	// Literals & identifiers
	SYMBOL
	STRING
	NUMBER
	BOOLEAN
	NULL
)

var tokenNames = map[TokenType]string{
	EOF:     "end of input",
	LROUND:  "'('",
	RROUND:  "')'",
	QUOTE:   "quote",
	TAG:     "tag",
	SYMBOL:  "symbol",
	STRING:  "string",
	NUMBER:  "number",
	BOOLEAN: "logical",
	NULL:    "NULL",
}

func (t TokenType) String() string { return tokenNames[t] }

// Token is a lexical token with optional literal value.
type Token struct {
	Type    TokenType
	Lexeme  string // raw text slice
	Literal any    // float64, string or bool for literals; the name for SYMBOL and TAG
	Line    int
	Col     int
}

// keywords map
var keywords = map[string]TokenType{
	"TRUE":  BOOLEAN,
	"FALSE": BOOLEAN,
	"T":     BOOLEAN,
	"F":     BOOLEAN,
	"NULL":  NULL,
}

// Lexer scans source text into tokens.
type Lexer struct {
	src    string
	start  int // start index of current token
	cur    int // current index
	line   int // 1-based
	col    int // 0-based column within line
	tokens []Token

	// precise token start position
	tokStartLine int
	tokStartCol  int
}

// NewLexer creates a new lexer for the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

func (l *Lexer) isAtEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	return l.src[l.cur], true
}

func (l *Lexer) advance() (byte, bool) {
	if l.isAtEnd() {
		return 0, false
	}
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return ch, true
}

func (l *Lexer) addToken(tt TokenType, lit any) {
	l.tokens = append(l.tokens, Token{
		Type:    tt,
		Lexeme:  l.src[l.start:l.cur],
		Literal: lit,
		Line:    l.tokStartLine,
		Col:     l.tokStartCol,
	})
	l.start = l.cur
}

// skipBlank skips whitespace and comments (';' or '#' to end of line).
func (l *Lexer) skipBlank() {
	for !l.isAtEnd() {
		ch, _ := l.peek()
		switch ch {
		case ' ', '\r', '\n', '\t':
			l.advance()
		case ';', '#':
			for !l.isAtEnd() {
				if c, _ := l.peek(); c == '\n' {
					break
				}
				l.advance()
			}
		default:
			l.start = l.cur
			return
		}
	}
	l.start = l.cur
}

func isDelimiter(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '(', ')', '"', '\'', ';', '#', '`':
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ----- errors -----

func (l *Lexer) err(msg string) error {
	return &ReadError{Line: l.line, Col: l.col + 1, Msg: msg}
}

func (l *Lexer) errAtStart(msg string) error {
	return &ReadError{Line: l.tokStartLine, Col: l.tokStartCol + 1, Msg: msg}
}

func (l *Lexer) incomplete(msg string) error {
	return &ReadError{Line: l.tokStartLine, Col: l.tokStartCol + 1, Msg: msg, Incomplete: true}
}

// ----- scanners -----

// scanString parses a double-quoted string literal with C-style escapes.
func (l *Lexer) scanString() (string, error) {
	l.advance() // opening quote
	var b strings.Builder
	for !l.isAtEnd() {
		ch, _ := l.advance()
		switch ch {
		case '"':
			return b.String(), nil
		case '\\':
			esc, ok := l.advance()
			if !ok {
				return "", l.err("unfinished escape sequence")
			}
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '"', '\\', '\'':
				b.WriteByte(esc)
			default:
				return "", l.err("'\\" + string(esc) + "' is an unrecognized escape in character string")
			}
		default:
			b.WriteByte(ch)
		}
	}
	return "", l.incomplete("unexpected end of input in string")
}

// scanBackquoted parses `any name`.
func (l *Lexer) scanBackquoted() (string, error) {
	l.advance()
	from := l.cur
	for !l.isAtEnd() {
		ch, _ := l.advance()
		if ch == '`' {
			name := l.src[from : l.cur-1]
			if name == "" {
				return "", l.errAtStart("attempt to use zero-length variable name")
			}
			return name, nil
		}
	}
	return "", l.incomplete("unexpected end of input in backquoted name")
}

func (l *Lexer) scanAtom() string {
	for !l.isAtEnd() {
		ch, _ := l.peek()
		if isDelimiter(ch) {
			break
		}
		l.advance()
	}
	return l.src[l.start:l.cur]
}

// looksNumeric accepts what strconv.ParseFloat accepts, except that a bare
// sign, "Inf" and "NaN" spellings are symbols.
func looksNumeric(s string) bool {
	t := strings.TrimLeft(s, "+-")
	return t != "" && (isDigit(t[0]) || (t[0] == '.' && len(t) > 1 && isDigit(t[1])))
}

// Scan tokenizes the whole source.
func (l *Lexer) Scan() ([]Token, error) {
	for {
		l.skipBlank()
		l.tokStartLine, l.tokStartCol = l.line, l.col
		ch, ok := l.peek()
		if !ok {
			l.addToken(EOF, nil)
			return l.tokens, nil
		}
		switch {
		case ch == '(':
			l.advance()
			l.addToken(LROUND, nil)
		case ch == ')':
			l.advance()
			l.addToken(RROUND, nil)
		case ch == '\'':
			l.advance()
			l.addToken(QUOTE, nil)
		case ch == '"':
			s, err := l.scanString()
			if err != nil {
				return nil, err
			}
			l.addToken(STRING, s)
		case ch == '`':
			s, err := l.scanBackquoted()
			if err != nil {
				return nil, err
			}
			l.addToken(SYMBOL, s)
		case ch == ':':
			l.advance()
			l.start = l.cur
			name := l.scanAtom()
			if name == "" {
				return nil, l.errAtStart("tag without a name")
			}
			l.start = l.cur - len(name) - 1
			l.addToken(TAG, name)
		default:
			atom := l.scanAtom()
			if !utf8.ValidString(atom) {
				return nil, l.errAtStart("invalid UTF-8 in symbol")
			}
			if tt, ok := keywords[atom]; ok {
				l.addToken(tt, atom == "TRUE" || atom == "T")
				continue
			}
			if looksNumeric(atom) {
				f, err := strconv.ParseFloat(strings.TrimSuffix(atom, "L"), 64)
				if err != nil {
					return nil, l.errAtStart("malformed number '" + atom + "'")
				}
				l.addToken(NUMBER, f)
				continue
			}
			l.addToken(SYMBOL, atom)
		}
	}
}
