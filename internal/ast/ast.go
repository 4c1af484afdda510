// Package ast defines the syntax tree produced by the parser. Node
// kinds are closed tagged variants: evaluators switch on the concrete
// type and treat unknown kinds as internal errors.
package ast

import (
	"fmt"
	"strings"

	"github.com/basiclang/basic-dap/internal/lexer"
)

// Position is a 1-based source location. Every node embeds one.
type Position struct {
	Line   int
	Column int
}

// Pos returns the node's source position.
func (p Position) Pos() Position { return p }

// Node is implemented by all syntax tree nodes.
type Node interface {
	Pos() Position
	String() string
}

// Statement nodes.
type Statement interface {
	Node
	stmtNode()
}

// Expression nodes.
type Expression interface {
	Node
	exprNode()
}

// Program is a sequence of statements.
type Program struct {
	Position
	Statements []Statement
}

// Let assigns the value of an expression to a variable. Bare
// assignments without the LET keyword parse to the same node.
type Let struct {
	Position
	Name  string
	Value Expression
}

// If executes Then when the condition is truthy, otherwise Else when
// present. Both branches are single statements.
type If struct {
	Position
	Cond Expression
	Then Statement
	Else Statement // may be nil
}

// For is a counted loop over a single body statement. Step is nil when
// omitted and defaults to 1. Body may be nil, in which case the loop
// still runs its iterations with no effect beyond the control variable.
type For struct {
	Position
	Name  string
	Start Expression
	End   Expression
	Step  Expression // may be nil
	Body  Statement  // may be nil
}

// Next is the loop-closing marker. It executes as a no-op.
type Next struct {
	Position
}

// While loops over a single body statement while the condition is
// truthy.
type While struct {
	Position
	Cond Expression
	Body Statement
}

// Print writes the space-joined stringification of its arguments plus
// a newline to the output sink.
type Print struct {
	Position
	Args []Expression
}

// Input reads a line into a variable, printing the prompt first when
// present.
type Input struct {
	Position
	Prompt string
	Name   string
}

// ExprStmt is a bare expression in statement position, such as a
// function call.
type ExprStmt struct {
	Position
	Expr Expression
}

// FuncDecl declares a user function or subroutine. Bodies are not
// carried; calls to declared functions return integer 0.
type FuncDecl struct {
	Position
	Name string
}

// Unsupported is a recognized statement the runtime does not execute.
// It parses cleanly and fails at evaluation.
type Unsupported struct {
	Position
	Keyword string
}

func (*Program) stmtNode()     {}
func (*Let) stmtNode()         {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*Next) stmtNode()        {}
func (*While) stmtNode()       {}
func (*Print) stmtNode()       {}
func (*Input) stmtNode()       {}
func (*ExprStmt) stmtNode()    {}
func (*FuncDecl) stmtNode()    {}
func (*Unsupported) stmtNode() {}

// Binary applies an infix operator. Op is the operator's token type.
type Binary struct {
	Position
	Op    lexer.TokenType
	Left  Expression
	Right Expression
}

// Unary applies a prefix operator.
type Unary struct {
	Position
	Op      lexer.TokenType
	Operand Expression
}

// IntLit is an integer literal.
type IntLit struct {
	Position
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Position
	Value float64
}

// StringLit is a string literal with escapes already resolved.
type StringLit struct {
	Position
	Value string
}

// Identifier is a variable reference.
type Identifier struct {
	Position
	Name string
}

// Call invokes a builtin or user function. A parenthesis-free call
// with no arguments also parses here and falls back to variable
// lookup at evaluation time.
type Call struct {
	Position
	Name string
	Args []Expression
}

func (*Binary) exprNode()     {}
func (*Unary) exprNode()      {}
func (*IntLit) exprNode()     {}
func (*FloatLit) exprNode()   {}
func (*StringLit) exprNode()  {}
func (*Identifier) exprNode() {}
func (*Call) exprNode()       {}

func (p *Program) String() string {
	var sb strings.Builder
	for _, s := range p.Statements {
		sb.WriteString(s.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (s *Let) String() string {
	return fmt.Sprintf("LET %s = %s", s.Name, s.Value)
}

func (s *If) String() string {
	if s.Else != nil {
		return fmt.Sprintf("IF %s THEN %s ELSE %s", s.Cond, s.Then, s.Else)
	}
	return fmt.Sprintf("IF %s THEN %s", s.Cond, s.Then)
}

func (s *For) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FOR %s = %s TO %s", s.Name, s.Start, s.End)
	if s.Step != nil {
		fmt.Fprintf(&sb, " STEP %s", s.Step)
	}
	if s.Body != nil {
		fmt.Fprintf(&sb, " %s", s.Body)
	}
	return sb.String()
}

func (s *Next) String() string { return "NEXT" }

func (s *While) String() string {
	return fmt.Sprintf("WHILE %s %s", s.Cond, s.Body)
}

func (s *Print) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = a.String()
	}
	return "PRINT " + strings.Join(parts, ", ")
}

func (s *Input) String() string {
	if s.Prompt != "" {
		return fmt.Sprintf("INPUT %q, %s", s.Prompt, s.Name)
	}
	return "INPUT " + s.Name
}

func (s *ExprStmt) String() string { return s.Expr.String() }

func (s *FuncDecl) String() string { return "FUNCTION " + s.Name }

func (s *Unsupported) String() string { return s.Keyword }

func (e *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *Unary) String() string {
	return fmt.Sprintf("(%s%s)", e.Op, e.Operand)
}

func (e *IntLit) String() string     { return fmt.Sprintf("%d", e.Value) }
func (e *FloatLit) String() string   { return fmt.Sprintf("%g", e.Value) }
func (e *StringLit) String() string  { return fmt.Sprintf("%q", e.Value) }
func (e *Identifier) String() string { return e.Name }

func (e *Call) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}
