// Package parser builds syntax trees from token streams by recursive
// descent. Whole-program parsing recovers from statement-level errors
// by resynchronizing at the next statement keyword; single-line
// parsing is strict and reports the first error.
package parser

import (
	"strconv"
	"strings"

	"github.com/basiclang/basic-dap/internal/ast"
	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/lexer"
)

// Parser consumes one token stream. It is not safe for concurrent use.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// New creates a parser over tokens. The stream must end with EOF, as
// produced by the lexer.
func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse reads statements until EOF. Statements that fail to parse are
// dropped after resynchronization and their errors collected; the
// returned program holds everything that parsed.
func (p *Parser) Parse() (*ast.Program, []error) {
	program := &ast.Program{Position: p.herePos()}
	var errs []error
	for !p.atEnd() {
		// Statement separators between statements carry no meaning at
		// program level.
		if p.match(lexer.COLON) || p.match(lexer.SEMICOLON) {
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			errs = append(errs, err)
			p.synchronize()
			continue
		}
		program.Statements = append(program.Statements, stmt)
	}
	return program, errs
}

// ParseLine parses exactly one statement, as used for line-at-a-time
// execution and expression evaluation.
func (p *Parser) ParseLine() (ast.Statement, error) {
	if p.atEnd() {
		return nil, errors.SyntaxError("empty statement", p.here().Line, p.here().Column)
	}
	return p.parseStatement()
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	tok := p.here()
	switch tok.Type {
	case lexer.LET:
		p.advance()
		return p.parseLet(tok)
	case lexer.IF:
		p.advance()
		return p.parseIf(tok)
	case lexer.FOR:
		p.advance()
		return p.parseFor(tok)
	case lexer.NEXT:
		p.advance()
		// NEXT may name its loop variable; the name is decorative.
		if p.check(lexer.IDENTIFIER) {
			p.advance()
		}
		return &ast.Next{Position: pos(tok)}, nil
	case lexer.WHILE:
		p.advance()
		return p.parseWhile(tok)
	case lexer.WEND:
		p.advance()
		return &ast.Next{Position: pos(tok)}, nil
	case lexer.PRINT:
		p.advance()
		return p.parsePrint(tok)
	case lexer.INPUT:
		p.advance()
		return p.parseInput(tok)
	case lexer.FUNCTION, lexer.SUB:
		p.advance()
		return p.parseFuncDecl(tok)
	case lexer.READ, lexer.DATA, lexer.RESTORE, lexer.DIM,
		lexer.DO, lexer.LOOP, lexer.UNTIL, lexer.RETURN, lexer.END:
		// Recognized but not executable; the rest of the line is
		// consumed so one statement still maps to one line.
		p.advance()
		p.skipLine()
		return &ast.Unsupported{Position: pos(tok), Keyword: tok.Lexeme}, nil
	case lexer.IDENTIFIER:
		// Assignment without the LET keyword, otherwise an
		// expression statement such as a call.
		if p.peek().Type == lexer.EQUALS {
			name := tok.Lexeme
			p.advance()
			p.advance()
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			return &ast.Let{Position: pos(tok), Name: name, Value: value}, nil
		}
		fallthrough
	default:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Position: pos(tok), Expr: expr}, nil
	}
}

func (p *Parser) parseLet(kw lexer.Token) (ast.Statement, error) {
	name, err := p.consume(lexer.IDENTIFIER, "identifier after LET")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.EQUALS, "'=' after variable name"); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Let{Position: pos(kw), Name: name.Lexeme, Value: value}, nil
}

func (p *Parser) parseIf(kw lexer.Token) (ast.Statement, error) {
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.THEN, "THEN after IF condition"); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt := &ast.If{Position: pos(kw), Cond: cond, Then: then}
	if p.match(lexer.ELSE) {
		stmt.Else, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseFor(kw lexer.Token) (ast.Statement, error) {
	name, err := p.consume(lexer.IDENTIFIER, "identifier after FOR")
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.EQUALS, "'=' after FOR variable"); err != nil {
		return nil, err
	}
	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.TO, "TO in FOR statement"); err != nil {
		return nil, err
	}
	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt := &ast.For{Position: pos(kw), Name: name.Lexeme, Start: start, End: end}
	if p.match(lexer.STEP) {
		stmt.Step, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	// The body is a single statement on the same line. A FOR with
	// nothing after it still iterates, driving only the control
	// variable.
	if !p.atEnd() {
		stmt.Body, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// parseFuncDecl registers the declaration's name; parameter lists and
// bodies are consumed and discarded.
func (p *Parser) parseFuncDecl(kw lexer.Token) (ast.Statement, error) {
	name, err := p.consume(lexer.IDENTIFIER, "name after "+kw.Lexeme)
	if err != nil {
		return nil, err
	}
	p.skipLine()
	return &ast.FuncDecl{Position: pos(kw), Name: name.Lexeme}, nil
}

// skipLine consumes the remaining tokens of the current statement.
func (p *Parser) skipLine() {
	for !p.atEnd() && !p.check(lexer.COLON) && !p.check(lexer.SEMICOLON) {
		p.advance()
	}
}

func (p *Parser) parseWhile(kw lexer.Token) (ast.Statement, error) {
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.atEnd() {
		return nil, errors.SyntaxError("expected body after WHILE condition", kw.Line, kw.Column)
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.While{Position: pos(kw), Cond: cond, Body: body}, nil
}

func (p *Parser) parsePrint(kw lexer.Token) (ast.Statement, error) {
	stmt := &ast.Print{Position: pos(kw)}
	// Both ',' and ';' separate PRINT arguments; a trailing separator
	// is allowed and adds nothing.
	for !p.atEnd() && !p.check(lexer.COLON) && !p.check(lexer.ELSE) {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Args = append(stmt.Args, expr)
		if !p.match(lexer.COMMA) && !p.match(lexer.SEMICOLON) {
			break
		}
	}
	return stmt, nil
}

func (p *Parser) parseInput(kw lexer.Token) (ast.Statement, error) {
	stmt := &ast.Input{Position: pos(kw)}
	if p.check(lexer.STRING) {
		stmt.Prompt = p.here().Lexeme
		p.advance()
		if _, err := p.consume(lexer.COMMA, "comma after INPUT prompt"); err != nil {
			return nil, err
		}
	}
	name, err := p.consume(lexer.IDENTIFIER, "variable name in INPUT statement")
	if err != nil {
		return nil, err
	}
	stmt.Name = name.Lexeme
	return stmt, nil
}

// Expression grammar. Comparison and additive operators share the
// loosest level, then multiplicative, then exponentiation, then unary.

func (p *Parser) parseExpression() (ast.Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.here()
		switch op.Type {
		case lexer.PLUS, lexer.MINUS, lexer.EQUALS, lexer.NOTEQUAL,
			lexer.LESS, lexer.LESSEQUAL, lexer.GREATER, lexer.GREATEREQUAL:
			p.advance()
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = &ast.Binary{Position: pos(op), Op: op.Type, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseTerm() (ast.Expression, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		op := p.here()
		switch op.Type {
		case lexer.MULTIPLY, lexer.DIVIDE, lexer.MOD:
			p.advance()
			right, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			left = &ast.Binary{Position: pos(op), Op: op.Type, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseFactor() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.check(lexer.POWER) {
		op := p.here()
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Position: pos(op), Op: lexer.POWER, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.check(lexer.MINUS) {
		op := p.here()
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Position: pos(op), Op: lexer.MINUS, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	tok := p.here()
	switch tok.Type {
	case lexer.NUMBER:
		p.advance()
		return numberLiteral(tok)
	case lexer.STRING:
		p.advance()
		return &ast.StringLit{Position: pos(tok), Value: tok.Lexeme}, nil
	case lexer.IDENTIFIER:
		p.advance()
		if p.check(lexer.LPAREN) {
			return p.parseCallArgs(tok)
		}
		return &ast.Identifier{Position: pos(tok), Name: tok.Lexeme}, nil
	case lexer.LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lexer.RPAREN, "')' after expression"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, errors.SyntaxError("unexpected token '"+tok.Lexeme+"'", tok.Line, tok.Column)
}

func (p *Parser) parseCallArgs(name lexer.Token) (ast.Expression, error) {
	call := &ast.Call{Position: pos(name), Name: name.Lexeme}
	p.advance() // opening paren
	for !p.check(lexer.RPAREN) && !p.atEnd() {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if !p.match(lexer.COMMA) {
			break
		}
	}
	if _, err := p.consume(lexer.RPAREN, "')' after function arguments"); err != nil {
		return nil, err
	}
	return call, nil
}

// numberLiteral keeps integers integral so that values round-trip
// through stringification.
func numberLiteral(tok lexer.Token) (ast.Expression, error) {
	if strings.Contains(tok.Lexeme, ".") {
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, errors.SyntaxError("invalid number '"+tok.Lexeme+"'", tok.Line, tok.Column)
		}
		return &ast.FloatLit{Position: pos(tok), Value: f}, nil
	}
	n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
	if err != nil {
		// Integer overflow degrades to floating point.
		f, ferr := strconv.ParseFloat(tok.Lexeme, 64)
		if ferr != nil {
			return nil, errors.SyntaxError("invalid number '"+tok.Lexeme+"'", tok.Line, tok.Column)
		}
		return &ast.FloatLit{Position: pos(tok), Value: f}, nil
	}
	return &ast.IntLit{Position: pos(tok), Value: n}, nil
}

// synchronize skips tokens until the start of the next plausible
// statement so one bad statement does not poison the rest of the
// program.
func (p *Parser) synchronize() {
	p.advance()
	for !p.atEnd() {
		if p.here().Type == lexer.SEMICOLON {
			p.advance()
			return
		}
		switch p.here().Type {
		case lexer.LET, lexer.IF, lexer.FOR, lexer.WHILE, lexer.PRINT, lexer.INPUT:
			return
		}
		p.advance()
	}
}

func (p *Parser) here() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() lexer.Token {
	if p.pos+1 >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) atEnd() bool {
	return p.here().Type == lexer.EOF
}

func (p *Parser) check(typ lexer.TokenType) bool {
	return p.here().Type == typ
}

func (p *Parser) match(typ lexer.TokenType) bool {
	if p.check(typ) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) advance() {
	if !p.atEnd() {
		p.pos++
	}
}

func (p *Parser) consume(typ lexer.TokenType, want string) (lexer.Token, error) {
	if p.check(typ) {
		tok := p.here()
		p.advance()
		return tok, nil
	}
	got := p.here()
	return lexer.Token{}, errors.ExpectedToken(want, "'"+got.Lexeme+"'", got.Line, got.Column)
}

func (p *Parser) herePos() ast.Position {
	return pos(p.here())
}

func pos(tok lexer.Token) ast.Position {
	return ast.Position{Line: tok.Line, Column: tok.Column}
}
