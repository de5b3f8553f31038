package script

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Position is a location in script source.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based
	Column int // 1-based
}

// Lexer splits script source into tokens.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at EOF
	line    int
	col     int
}

// NewLexer returns a lexer over input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.input) }

// NextToken returns the next token. Lexical errors come back as
// TokenIllegal with the message as literal.
func (l *Lexer) NextToken() Token {
	if msg := l.skipWhitespaceAndComments(); msg != "" {
		return Token{Type: TokenIllegal, Literal: msg, Pos: l.position()}
	}
	pos := l.position()
	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	tok := func(t TokenType, width int) Token {
		for range width {
			l.readChar()
		}
		return Token{Type: t, Literal: tokenNames[t], Pos: pos}
	}

	switch ch := l.ch; {
	case ch == '$':
		l.readChar()
		if !isIdentStart(l.ch) {
			return Token{Type: TokenIllegal, Literal: "expected variable name after '$'", Pos: pos}
		}
		return Token{Type: TokenVariable, Literal: l.readIdent(), Pos: pos}
	case isIdentStart(ch):
		name := l.readIdent()
		if t, ok := keywords[strings.ToLower(name)]; ok {
			return Token{Type: t, Literal: name, Pos: pos}
		}
		return Token{Type: TokenIdent, Literal: name, Pos: pos}
	case isDigit(ch):
		return l.readNumber(pos)
	case ch == '\'' || ch == '"':
		return l.readString(pos)
	case ch == '(':
		return tok(TokenLParen, 1)
	case ch == ')':
		return tok(TokenRParen, 1)
	case ch == '[':
		return tok(TokenLBracket, 1)
	case ch == ']':
		return tok(TokenRBracket, 1)
	case ch == '{':
		return tok(TokenLBrace, 1)
	case ch == '}':
		return tok(TokenRBrace, 1)
	case ch == ',':
		return tok(TokenComma, 1)
	case ch == ';':
		return tok(TokenSemicolon, 1)
	case ch == ':':
		return tok(TokenColon, 1)
	case ch == '?':
		return tok(TokenQuestion, 1)
	case ch == '=':
		switch {
		case l.peekChar() == '>':
			return tok(TokenArrow, 2)
		case l.peekChar() == '=' && l.peekAt(2) == '=':
			return tok(TokenIdentical, 3)
		case l.peekChar() == '=':
			return tok(TokenEq, 2)
		}
		return tok(TokenAssign, 1)
	case ch == '!':
		switch {
		case l.peekChar() == '=' && l.peekAt(2) == '=':
			return tok(TokenNotIdent, 3)
		case l.peekChar() == '=':
			return tok(TokenNotEq, 2)
		}
		return tok(TokenNot, 1)
	case ch == '<':
		switch l.peekChar() {
		case '=':
			return tok(TokenLessEq, 2)
		case '>':
			return tok(TokenNotEq, 2)
		}
		return tok(TokenLess, 1)
	case ch == '>':
		if l.peekChar() == '=' {
			return tok(TokenGreaterEq, 2)
		}
		return tok(TokenGreater, 1)
	case ch == '&' && l.peekChar() == '&':
		return tok(TokenAnd, 2)
	case ch == '|' && l.peekChar() == '|':
		return tok(TokenOr, 2)
	case ch == '+':
		return l.withAssign(TokenPlus, TokenPlusAssign, pos)
	case ch == '-':
		return l.withAssign(TokenMinus, TokenMinusAssign, pos)
	case ch == '*':
		return l.withAssign(TokenStar, TokenStarAssign, pos)
	case ch == '/':
		return l.withAssign(TokenSlash, TokenSlashAssign, pos)
	case ch == '%':
		return l.withAssign(TokenPercent, TokenPercAssign, pos)
	case ch == '.':
		switch {
		case l.peekChar() == '.':
			return tok(TokenDotDot, 2)
		case l.peekChar() == '=':
			return tok(TokenDotAssign, 2)
		case isDigit(l.peekChar()):
			return l.readNumber(pos)
		}
		return tok(TokenDot, 1)
	}

	bad := l.ch
	l.readChar()
	return Token{Type: TokenIllegal, Literal: "unexpected character " + quoteRune(bad), Pos: pos}
}

func (l *Lexer) withAssign(op, assign TokenType, pos Position) Token {
	l.readChar()
	if l.ch == '=' {
		l.readChar()
		return Token{Type: assign, Literal: tokenNames[assign], Pos: pos}
	}
	return Token{Type: op, Literal: tokenNames[op], Pos: pos}
}

// peekAt returns the character n runes ahead of ch (n >= 1).
func (l *Lexer) peekAt(n int) rune {
	off := l.readPos
	var r rune
	for range n {
		if off >= len(l.input) {
			return 0
		}
		var size int
		r, size = utf8.DecodeRuneInString(l.input[off:])
		off += size
	}
	return r
}

// skipWhitespaceAndComments returns a message for an unterminated block
// comment.
func (l *Lexer) skipWhitespaceAndComments() string {
	for !l.atEOF() {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '#', l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.atEOF() {
					return "unterminated comment"
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
		default:
			return ""
		}
	}
	return ""
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for isIdentPart(l.ch) && !l.atEOF() {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenInt, Literal: l.input[start:l.pos], Pos: pos}
	}

	typ := TokenInt
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		typ = TokenFloat
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekAt(2))) {
			typ = TokenFloat
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return Token{Type: typ, Literal: l.input[start:l.pos], Pos: pos}
}

// readString decodes a quoted string. Single quotes only recognise \' and
// \\; double quotes also recognise the usual control escapes.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()
	var sb strings.Builder
	for {
		if l.atEOF() {
			return Token{Type: TokenIllegal, Literal: "unterminated string", Pos: pos}
		}
		ch := l.ch
		if ch == quote {
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		}
		if ch != '\\' {
			sb.WriteRune(ch)
			l.readChar()
			continue
		}

		l.readChar()
		esc := l.ch
		if quote == '\'' {
			if esc != '\'' && esc != '\\' {
				sb.WriteByte('\\')
			}
			if !l.atEOF() {
				sb.WriteRune(esc)
				l.readChar()
			}
			continue
		}
		switch esc {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case '"', '\\', '$', '/':
			sb.WriteRune(esc)
		default:
			sb.WriteByte('\\')
			if l.atEOF() {
				continue
			}
			sb.WriteRune(esc)
		}
		if !l.atEOF() {
			l.readChar()
		}
	}
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func quoteRune(r rune) string {
	if r == 0 {
		return "EOF"
	}
	return "'" + string(r) + "'"
}
