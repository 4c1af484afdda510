// Package interp is the tree-walking evaluator and the program session
// behind the debug engine. Output and input are injected sinks, so the
// same runtime drives the console and the wire protocol's output
// events without global state.
package interp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/basiclang/basic-dap/internal/ast"
	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/lexer"
)

// OutputSink receives PRINT output. The text includes the trailing
// newline.
type OutputSink interface {
	Print(text string)
}

// InputSource supplies INPUT lines. The prompt, when nonempty, is
// rendered by the source before reading.
type InputSource interface {
	ReadLine(prompt string) (string, error)
}

// ConsoleOutput writes PRINT output to a writer.
type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleOutput creates a sink over w.
func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) Print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, text)
}

// ConsoleInput reads INPUT lines from a reader, echoing prompts to a
// writer.
type ConsoleInput struct {
	r *bufio.Reader
	w io.Writer
}

// NewConsoleInput creates a source reading from r and writing prompts
// to w.
func NewConsoleInput(r io.Reader, w io.Writer) *ConsoleInput {
	return &ConsoleInput{r: bufio.NewReader(r), w: w}
}

func (c *ConsoleInput) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(c.w, prompt)
	}
	line, err := c.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NoInput is an input source for modes where stdin belongs to the
// wire protocol. Every INPUT statement fails.
type NoInput struct{}

func (NoInput) ReadLine(string) (string, error) {
	return "", errors.Unsupported("INPUT is not available on this transport")
}

// Runtime executes statements and evaluates expressions against a
// variable store and function table.
type Runtime struct {
	out OutputSink
	in  InputSource
}

// NewRuntime creates a runtime with the given sinks.
func NewRuntime(out OutputSink, in InputSource) *Runtime {
	return &Runtime{out: out, in: in}
}

// Exec executes a single statement.
func (r *Runtime) Exec(stmt ast.Statement, vars *Variables, funcs *Functions) error {
	if stmt == nil {
		return nil
	}
	switch s := stmt.(type) {
	case *ast.Program:
		for _, child := range s.Statements {
			if err := r.Exec(child, vars, funcs); err != nil {
				return err
			}
		}
		return nil
	case *ast.Let:
		value, err := r.Eval(s.Value, vars, funcs)
		if err != nil {
			return err
		}
		vars.Set(s.Name, value)
		return nil
	case *ast.If:
		cond, err := r.Eval(s.Cond, vars, funcs)
		if err != nil {
			return err
		}
		if cond.Truthy() {
			return r.Exec(s.Then, vars, funcs)
		}
		if s.Else != nil {
			return r.Exec(s.Else, vars, funcs)
		}
		return nil
	case *ast.For:
		return r.execFor(s, vars, funcs)
	case *ast.Next:
		return nil
	case *ast.While:
		for {
			cond, err := r.Eval(s.Cond, vars, funcs)
			if err != nil {
				return err
			}
			if !cond.Truthy() {
				return nil
			}
			if err := r.Exec(s.Body, vars, funcs); err != nil {
				return err
			}
		}
	case *ast.Print:
		parts := make([]string, len(s.Args))
		for i, arg := range s.Args {
			value, err := r.Eval(arg, vars, funcs)
			if err != nil {
				return err
			}
			parts[i] = value.String()
		}
		r.out.Print(strings.Join(parts, " ") + "\n")
		return nil
	case *ast.Input:
		line, err := r.in.ReadLine(s.Prompt)
		if err != nil {
			return errors.EvaluationError("INPUT failed: %v", err).At(s.Line, s.Column)
		}
		if value, ok := tryParseNumber(line); ok {
			vars.Set(s.Name, value)
		} else {
			vars.Set(s.Name, Str(line))
		}
		return nil
	case *ast.ExprStmt:
		_, err := r.Eval(s.Expr, vars, funcs)
		return err
	case *ast.FuncDecl:
		funcs.Define(s.Name, "")
		return nil
	case *ast.Unsupported:
		return errors.Unsupported(s.Keyword+" statement").At(s.Line, s.Column)
	default:
		return errors.EvaluationError("unhandled statement %T", stmt)
	}
}

// execFor runs the counted loop. The control variable is coerced to
// float for the duration of the loop and stays visible afterwards.
func (r *Runtime) execFor(s *ast.For, vars *Variables, funcs *Functions) error {
	start, err := r.evalNumeric(s.Start, vars, funcs, "FOR start")
	if err != nil {
		return err
	}
	end, err := r.evalNumeric(s.End, vars, funcs, "FOR end")
	if err != nil {
		return err
	}
	step := 1.0
	if s.Step != nil {
		step, err = r.evalNumeric(s.Step, vars, funcs, "FOR step")
		if err != nil {
			return err
		}
	}
	if step == 0 {
		return errors.EvaluationError("FOR step must not be zero").At(s.Line, s.Column)
	}

	vars.Set(s.Name, Float(start))
	for {
		current, _ := vars.Get(s.Name)
		cur, ok := current.AsFloat()
		if !ok {
			// The body reassigned the control variable to a
			// non-number; stop rather than loop forever.
			return errors.EvaluationError("FOR variable %s is no longer numeric", s.Name).At(s.Line, s.Column)
		}
		if step > 0 && cur > end {
			return nil
		}
		if step < 0 && cur < end {
			return nil
		}
		if err := r.Exec(s.Body, vars, funcs); err != nil {
			return err
		}
		latest, _ := vars.Get(s.Name)
		cur, ok = latest.AsFloat()
		if !ok {
			return errors.EvaluationError("FOR variable %s is no longer numeric", s.Name).At(s.Line, s.Column)
		}
		vars.Set(s.Name, Float(cur+step))
	}
}

func (r *Runtime) evalNumeric(expr ast.Expression, vars *Variables, funcs *Functions, what string) (float64, error) {
	value, err := r.Eval(expr, vars, funcs)
	if err != nil {
		return 0, err
	}
	f, ok := value.AsFloat()
	if !ok {
		return 0, errors.EvaluationError("%s must be numeric, got %s", what, value.Kind()).At(expr.Pos().Line, expr.Pos().Column)
	}
	return f, nil
}

// Eval evaluates an expression to a value.
func (r *Runtime) Eval(expr ast.Expression, vars *Variables, funcs *Functions) (Value, error) {
	switch e := expr.(type) {
	case *ast.IntLit:
		return Int(e.Value), nil
	case *ast.FloatLit:
		return Float(e.Value), nil
	case *ast.StringLit:
		return Str(e.Value), nil
	case *ast.Identifier:
		if value, ok := vars.Get(e.Name); ok {
			return value, nil
		}
		return Value{}, errors.UnknownIdentifier(e.Name).At(e.Line, e.Column)
	case *ast.Call:
		args := make([]Value, len(e.Args))
		for i, arg := range e.Args {
			value, err := r.Eval(arg, vars, funcs)
			if err != nil {
				return Value{}, err
			}
			args[i] = value
		}
		value, err := funcs.Call(e.Name, args, vars)
		if err != nil {
			return Value{}, positioned(err, e.Line, e.Column)
		}
		return value, nil
	case *ast.Unary:
		operand, err := r.Eval(e.Operand, vars, funcs)
		if err != nil {
			return Value{}, err
		}
		if e.Op == lexer.MINUS {
			switch operand.Kind() {
			case KindInt:
				return Int(-operand.AsInt()), nil
			case KindFloat:
				f, _ := operand.AsFloat()
				return Float(-f), nil
			}
			return Value{}, errors.EvaluationError("unary '-' not defined for %s", operand.Kind()).At(e.Line, e.Column)
		}
		return Value{}, errors.EvaluationError("unhandled unary operator %s", e.Op).At(e.Line, e.Column)
	case *ast.Binary:
		left, err := r.Eval(e.Left, vars, funcs)
		if err != nil {
			return Value{}, err
		}
		right, err := r.Eval(e.Right, vars, funcs)
		if err != nil {
			return Value{}, err
		}
		value, err := applyBinary(e.Op, left, right)
		if err != nil {
			return Value{}, positioned(err, e.Line, e.Column)
		}
		return value, nil
	default:
		return Value{}, errors.EvaluationError("unhandled expression %T", expr)
	}
}

func applyBinary(op lexer.TokenType, left, right Value) (Value, error) {
	switch op {
	case lexer.PLUS:
		if left.Kind() == KindString && right.Kind() == KindString {
			return Str(left.AsString() + right.AsString()), nil
		}
		return arith(op, left, right, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case lexer.MINUS:
		return arith(op, left, right, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case lexer.MULTIPLY:
		return arith(op, left, right, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case lexer.DIVIDE:
		return divide(left, right)
	case lexer.MOD:
		return modulo(left, right)
	case lexer.POWER:
		a, aok := left.AsFloat()
		b, bok := right.AsFloat()
		if !aok || !bok {
			return Value{}, errors.TypeMismatch("^", left.Kind().String(), right.Kind().String())
		}
		return Float(math.Pow(a, b)), nil
	case lexer.EQUALS:
		return Bool(left.Equal(right)), nil
	case lexer.NOTEQUAL:
		return Bool(!left.Equal(right)), nil
	case lexer.LESS:
		return compare(op, left, right)
	case lexer.LESSEQUAL:
		return compare(op, left, right)
	case lexer.GREATER:
		return compare(op, left, right)
	case lexer.GREATEREQUAL:
		return compare(op, left, right)
	default:
		return Value{}, errors.EvaluationError("unhandled binary operator %s", op)
	}
}

// arith applies an arithmetic operator. Integer operands stay
// integral; mixing in a float promotes the result to float.
func arith(op lexer.TokenType, left, right Value, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return Value{}, errors.TypeMismatch(op.String(), left.Kind().String(), right.Kind().String())
	}
	if left.Kind() == KindInt && right.Kind() == KindInt {
		return Int(intOp(left.AsInt(), right.AsInt())), nil
	}
	a, _ := left.AsFloat()
	b, _ := right.AsFloat()
	return Float(floatOp(a, b)), nil
}

// divide keeps exact integer quotients integral and widens everything
// else to float.
func divide(left, right Value) (Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return Value{}, errors.TypeMismatch("/", left.Kind().String(), right.Kind().String())
	}
	b, _ := right.AsFloat()
	if b == 0 {
		return Value{}, errors.DivisionByZero("division")
	}
	if left.Kind() == KindInt && right.Kind() == KindInt {
		la, lb := left.AsInt(), right.AsInt()
		if la%lb == 0 {
			return Int(la / lb), nil
		}
	}
	a, _ := left.AsFloat()
	return Float(a / b), nil
}

func modulo(left, right Value) (Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return Value{}, errors.TypeMismatch("MOD", left.Kind().String(), right.Kind().String())
	}
	b, _ := right.AsFloat()
	if b == 0 {
		return Value{}, errors.DivisionByZero("modulo")
	}
	if left.Kind() == KindInt && right.Kind() == KindInt {
		return Int(left.AsInt() % right.AsInt()), nil
	}
	a, _ := left.AsFloat()
	return Float(math.Mod(a, b)), nil
}

// compare orders two values: numbers across integer and float, strings
// lexicographically. Ordering across kinds is an error, unlike
// equality which is simply false.
func compare(op lexer.TokenType, left, right Value) (Value, error) {
	var less, equal bool
	switch {
	case left.IsNumeric() && right.IsNumeric():
		a, _ := left.AsFloat()
		b, _ := right.AsFloat()
		less, equal = a < b, a == b
	case left.Kind() == KindString && right.Kind() == KindString:
		less, equal = left.AsString() < right.AsString(), left.AsString() == right.AsString()
	default:
		return Value{}, errors.TypeMismatch(op.String(), left.Kind().String(), right.Kind().String())
	}
	switch op {
	case lexer.LESS:
		return Bool(less), nil
	case lexer.LESSEQUAL:
		return Bool(less || equal), nil
	case lexer.GREATER:
		return Bool(!less && !equal), nil
	case lexer.GREATEREQUAL:
		return Bool(!less), nil
	default:
		return Value{}, errors.EvaluationError("unhandled comparison %s", op)
	}
}

// positioned attaches a source position to structured errors that do
// not carry one yet.
func positioned(err error, line, column int) error {
	e := errors.FromError(err)
	if e.Line == 0 {
		e.Line = line
		e.Column = column
	}
	return e
}
