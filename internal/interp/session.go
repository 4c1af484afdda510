package interp

import (
	"regexp"
	"strings"
	"sync"

	"github.com/basiclang/basic-dap/internal/ast"
	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/lexer"
	"github.com/basiclang/basic-dap/internal/parser"
	"github.com/basiclang/basic-dap/pkg/types"
)

// Classic numbered lines ("10 PRINT X") lose their leading number
// before lexing.
var lineNumberRe = regexp.MustCompile(`^\s*\d+\s*`)

// Session owns one loaded program: its source text, the line cursor,
// and the store and table the program runs against. Execution is
// line at a time; the debug engine drives the cursor.
type Session struct {
	mu      sync.RWMutex
	source  string
	lines   []string
	cursor  int // 0-based index of the next line to execute
	runtime *Runtime
	vars    *Variables
	funcs   *Functions
}

// NewSession creates an empty session whose PRINT and INPUT route
// through the given sinks.
func NewSession(out OutputSink, in InputSource) *Session {
	return &Session{
		runtime: NewRuntime(out, in),
		vars:    NewVariables(),
		funcs:   NewFunctions(),
	}
}

// Load replaces the program. The whole source must lex cleanly;
// statement-level parse errors surface later, when the offending line
// executes. The cursor rewinds to the first line.
func (s *Session) Load(source string) error {
	if _, err := lexer.New(source).Tokenize(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
	s.lines = splitLines(source)
	s.cursor = 0
	return nil
}

// Source returns the loaded program text.
func (s *Session) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Loaded reports whether a program is present.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines) > 0
}

// LineCount returns the number of source lines.
func (s *Session) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// CurrentLine returns the 1-based line the cursor points at, clamped
// to the last line once the program has run out.
func (s *Session) CurrentLine() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lines) == 0 {
		return 1
	}
	if s.cursor >= len(s.lines) {
		return len(s.lines)
	}
	return s.cursor + 1
}

// AtEnd reports whether the cursor has passed the last line.
func (s *Session) AtEnd() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor >= len(s.lines)
}

// ExecCurrentLine executes the line under the cursor and advances the
// cursor by exactly one, whether or not the line failed. Blank lines
// and comments execute as no-ops.
func (s *Session) ExecCurrentLine() error {
	s.mu.Lock()
	if s.cursor >= len(s.lines) {
		s.mu.Unlock()
		return nil
	}
	line := s.lines[s.cursor]
	s.cursor++
	s.mu.Unlock()

	return s.execLine(line)
}

// Rewind moves the cursor back to the first line without touching
// variables.
func (s *Session) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = 0
}

// Reset clears variables and user functions and rewinds the cursor.
// The program text stays loaded.
func (s *Session) Reset() {
	s.vars.Clear()
	s.funcs.Clear()
	s.Rewind()
}

// Cleanup drops the program and all state.
func (s *Session) Cleanup() {
	s.vars.Clear()
	s.funcs.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = ""
	s.lines = nil
	s.cursor = 0
}

func (s *Session) execLine(line string) error {
	code := lineNumberRe.ReplaceAllString(line, "")
	code = strings.TrimSpace(code)
	if code == "" || strings.HasPrefix(code, "'") {
		return nil
	}
	stmt, err := parseStatement(code)
	if err != nil {
		return err
	}
	return s.runtime.Exec(stmt, s.vars, s.funcs)
}

// Evaluate lexes, parses, and executes a single statement, as backing
// for the evaluate request. Expressions yield their value; assignments
// execute and yield the assigned value, so the console can mutate
// state.
func (s *Session) Evaluate(text string) (Value, error) {
	stmt, err := parseStatement(text)
	if err != nil {
		return Value{}, err
	}
	switch st := stmt.(type) {
	case *ast.ExprStmt:
		return s.runtime.Eval(st.Expr, s.vars, s.funcs)
	case *ast.Let:
		value, err := s.runtime.Eval(st.Value, s.vars, s.funcs)
		if err != nil {
			return Value{}, err
		}
		s.vars.Set(st.Name, value)
		return value, nil
	default:
		if err := s.runtime.Exec(stmt, s.vars, s.funcs); err != nil {
			return Value{}, err
		}
		return Value{}, nil
	}
}

// SetVariable assigns a variable from its wire representation. The
// text is evaluated as an expression first, so "2+3" assigns 5; text
// that does not evaluate assigns as a plain string.
func (s *Session) SetVariable(name, text string) (Value, error) {
	if name == "" {
		return Value{}, errors.EvaluationError("variable name must not be empty")
	}
	value := Str(text)
	if stmt, err := parseStatement(text); err == nil {
		if expr, ok := stmt.(*ast.ExprStmt); ok {
			if v, err := s.runtime.Eval(expr.Expr, s.vars, s.funcs); err == nil {
				value = v
			}
		}
	}
	s.vars.Set(name, value)
	return value, nil
}

// Var returns a single variable.
func (s *Session) Var(name string) (Value, bool) {
	return s.vars.Get(name)
}

// VarCount returns the number of variables without snapshotting.
func (s *Session) VarCount() int {
	return s.vars.Len()
}

// Variables snapshots the store sorted by name, shaped for the wire.
func (s *Session) Variables() []types.VariableInfo {
	entries := s.vars.Snapshot()
	out := make([]types.VariableInfo, len(entries))
	for i, e := range entries {
		out[i] = types.VariableInfo{
			Name:  e.Name,
			Value: e.Value.String(),
			Type:  e.Value.Kind().String(),
		}
	}
	return out
}

func parseStatement(code string) (ast.Statement, error) {
	tokens, err := lexer.New(code).Tokenize()
	if err != nil {
		return nil, err
	}
	return parser.New(tokens).ParseLine()
}

func splitLines(source string) []string {
	if source == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	// A trailing newline does not create a phantom last line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
