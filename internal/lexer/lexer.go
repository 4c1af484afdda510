// Package lexer turns BASIC source text into a token stream. Scanning
// is strict: the first character that cannot start a token aborts the
// scan with a positioned lexical error.
package lexer

import (
	"strings"

	"github.com/basiclang/basic-dap/internal/errors"
)

// Lexer scans one source text. It is not safe for concurrent use.
type Lexer struct {
	src    []rune
	pos    int
	line   int
	column int
}

// New creates a lexer over src.
func New(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, column: 1}
}

// Tokenize scans the whole input and returns the token stream, always
// ending with an EOF token on success.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespaceAndComments()

	startLine, startCol := l.line, l.column
	if l.atEnd() {
		return Token{Type: EOF, Line: startLine, Column: startCol}, nil
	}

	ch := l.peek()
	switch {
	case isDigit(ch):
		return l.scanNumber(), nil
	case ch == '"':
		return l.scanString()
	case isAlpha(ch):
		return l.scanWord(), nil
	}

	l.advance()
	switch ch {
	case '+':
		return l.token(PLUS, "+", startLine, startCol), nil
	case '-':
		return l.token(MINUS, "-", startLine, startCol), nil
	case '*':
		return l.token(MULTIPLY, "*", startLine, startCol), nil
	case '/':
		return l.token(DIVIDE, "/", startLine, startCol), nil
	case '^':
		return l.token(POWER, "^", startLine, startCol), nil
	case '=':
		return l.token(EQUALS, "=", startLine, startCol), nil
	case '(':
		return l.token(LPAREN, "(", startLine, startCol), nil
	case ')':
		return l.token(RPAREN, ")", startLine, startCol), nil
	case ',':
		return l.token(COMMA, ",", startLine, startCol), nil
	case ';':
		return l.token(SEMICOLON, ";", startLine, startCol), nil
	case ':':
		return l.token(COLON, ":", startLine, startCol), nil
	case '<':
		// Greedy two-character operators: <= and <>
		if l.match('=') {
			return l.token(LESSEQUAL, "<=", startLine, startCol), nil
		}
		if l.match('>') {
			return l.token(NOTEQUAL, "<>", startLine, startCol), nil
		}
		return l.token(LESS, "<", startLine, startCol), nil
	case '>':
		if l.match('=') {
			return l.token(GREATEREQUAL, ">=", startLine, startCol), nil
		}
		return l.token(GREATER, ">", startLine, startCol), nil
	}

	return Token{}, errors.UnexpectedChar(ch, startLine, startCol)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEnd() {
		ch := l.peek()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '\'':
			// Comment runs to end of line.
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

// scanNumber reads an integer or floating-point literal. At most one
// decimal point belongs to the literal; a second dot terminates it and
// is left unconsumed.
func (l *Lexer) scanNumber() Token {
	startLine, startCol := l.line, l.column
	var sb strings.Builder
	hasDot := false
	for !l.atEnd() {
		ch := l.peek()
		if isDigit(ch) {
			sb.WriteRune(ch)
			l.advance()
			continue
		}
		if ch == '.' && !hasDot {
			hasDot = true
			sb.WriteRune(ch)
			l.advance()
			continue
		}
		break
	}
	return Token{Type: NUMBER, Lexeme: sb.String(), Line: startLine, Column: startCol}
}

func (l *Lexer) scanString() (Token, error) {
	startLine, startCol := l.line, l.column
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.atEnd() {
			return Token{}, errors.UnterminatedString(startLine, startCol)
		}
		ch := l.peek()
		if ch == '"' {
			l.advance()
			return Token{Type: STRING, Lexeme: sb.String(), Line: startLine, Column: startCol}, nil
		}
		if ch == '\\' {
			l.advance()
			if l.atEnd() {
				return Token{}, errors.UnterminatedString(startLine, startCol)
			}
			esc := l.peek()
			l.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				// Unknown escapes keep the literal character.
				sb.WriteRune(esc)
			}
			continue
		}
		sb.WriteRune(ch)
		l.advance()
	}
}

func (l *Lexer) scanWord() Token {
	startLine, startCol := l.line, l.column
	var sb strings.Builder
	for !l.atEnd() && isAlphaNumeric(l.peek()) {
		sb.WriteRune(l.peek())
		l.advance()
	}
	word := sb.String()
	if typ, ok := keywords[strings.ToUpper(word)]; ok {
		return Token{Type: typ, Lexeme: strings.ToUpper(word), Line: startLine, Column: startCol}
	}
	return Token{Type: IDENTIFIER, Lexeme: word, Line: startLine, Column: startCol}
}

func (l *Lexer) token(typ TokenType, lexeme string, line, col int) Token {
	return Token{Type: typ, Lexeme: lexeme, Line: line, Column: col}
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.src)
}

func (l *Lexer) peek() rune {
	return l.src[l.pos]
}

func (l *Lexer) advance() {
	if l.atEnd() {
		return
	}
	if l.src[l.pos] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
}

func (l *Lexer) match(want rune) bool {
	if l.atEnd() || l.src[l.pos] != want {
		return false
	}
	l.advance()
	return true
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isAlphaNumeric(ch rune) bool {
	return isAlpha(ch) || isDigit(ch)
}
