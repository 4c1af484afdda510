package interp

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/basiclang/basic-dap/internal/errors"
)

// Functions resolves calls. Builtins are checked first, then
// user-defined functions, and finally a zero-argument call falls back
// to variable lookup so bare identifiers in call position still
// resolve.
type Functions struct {
	mu   sync.RWMutex
	user map[string]string
}

// NewFunctions creates a table with only the builtins available.
func NewFunctions() *Functions {
	return &Functions{user: make(map[string]string)}
}

// Define registers a user function. Bodies are stored as declarations;
// calls to user functions evaluate their arguments and return 0.
func (f *Functions) Define(name, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user[name] = body
}

// Exists reports whether a user function with this name is defined.
func (f *Functions) Exists(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.user[name]
	return ok
}

// Clear removes all user functions.
func (f *Functions) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = make(map[string]string)
}

// Call resolves and invokes name with args.
func (f *Functions) Call(name string, args []Value, vars *Variables) (Value, error) {
	if result, ok, err := callBuiltin(strings.ToUpper(name), args); ok {
		return result, err
	}

	if f.Exists(name) {
		return Int(0), nil
	}

	if len(args) == 0 {
		if value, ok := vars.Get(name); ok {
			return value, nil
		}
		return Value{}, errors.UnknownIdentifier(name)
	}
	return Value{}, errors.UnknownFunction(name)
}

// callBuiltin dispatches the builtin set. The middle return is false
// when name is not a builtin.
func callBuiltin(name string, args []Value) (Value, bool, error) {
	switch name {
	case "ABS":
		v, err := numericArg(name, args)
		if err != nil {
			return Value{}, true, err
		}
		if v.Kind() == KindInt {
			n := v.AsInt()
			if n < 0 {
				n = -n
			}
			return Int(n), true, nil
		}
		f, _ := v.AsFloat()
		return Float(math.Abs(f)), true, nil
	case "SIN":
		return mathBuiltin(name, args, math.Sin)
	case "COS":
		return mathBuiltin(name, args, math.Cos)
	case "TAN":
		return mathBuiltin(name, args, math.Tan)
	case "SQRT":
		v, err := numericArg(name, args)
		if err != nil {
			return Value{}, true, err
		}
		f, _ := v.AsFloat()
		if f < 0 {
			return Value{}, true, errors.InvalidArgument(name, "negative operand")
		}
		return Float(math.Sqrt(f)), true, nil
	case "LOG":
		v, err := numericArg(name, args)
		if err != nil {
			return Value{}, true, err
		}
		f, _ := v.AsFloat()
		if f <= 0 {
			return Value{}, true, errors.InvalidArgument(name, "non-positive operand")
		}
		return Float(math.Log(f)), true, nil
	case "EXP":
		return mathBuiltin(name, args, math.Exp)
	case "LEN":
		s, err := stringArg(name, args)
		if err != nil {
			return Value{}, true, err
		}
		return Int(int64(len(s))), true, nil
	case "MID":
		return builtinMid(args)
	case "LEFT":
		return builtinLeft(args)
	case "RIGHT":
		return builtinRight(args)
	case "VAL":
		s, err := stringArg(name, args)
		if err != nil {
			return Value{}, true, err
		}
		return parseNumber(s), true, nil
	case "STR":
		if len(args) != 1 {
			return Value{}, true, errors.WrongArgCount(name, 1, len(args))
		}
		return Str(args[0].String()), true, nil
	}
	return Value{}, false, nil
}

func mathBuiltin(name string, args []Value, fn func(float64) float64) (Value, bool, error) {
	v, err := numericArg(name, args)
	if err != nil {
		return Value{}, true, err
	}
	f, _ := v.AsFloat()
	return Float(fn(f)), true, nil
}

func numericArg(name string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, errors.WrongArgCount(name, 1, len(args))
	}
	if !args[0].IsNumeric() {
		return Value{}, errors.InvalidArgument(name, "operand must be a number, got "+args[0].Kind().String())
	}
	return args[0], nil
}

func stringArg(name string, args []Value) (string, error) {
	if len(args) != 1 {
		return "", errors.WrongArgCount(name, 1, len(args))
	}
	if args[0].Kind() != KindString {
		return "", errors.InvalidArgument(name, "operand must be a string, got "+args[0].Kind().String())
	}
	return args[0].AsString(), nil
}

// builtinMid implements MID(s, start [, length]) with a 1-based start.
// Out-of-range starts yield the empty string.
func builtinMid(args []Value) (Value, bool, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, true, errors.EvaluationError("MID expects 2 or 3 arguments, got %d", len(args))
	}
	if args[0].Kind() != KindString {
		return Value{}, true, errors.InvalidArgument("MID", "first argument must be a string")
	}
	s := args[0].AsString()
	start, err := intArg("MID", args[1])
	if err != nil {
		return Value{}, true, err
	}
	length := len(s) - start + 1
	if len(args) == 3 {
		length, err = intArg("MID", args[2])
		if err != nil {
			return Value{}, true, err
		}
	}
	if start < 1 || start > len(s) || length <= 0 {
		return Str(""), true, nil
	}
	from := start - 1
	to := from + length
	if to > len(s) {
		to = len(s)
	}
	return Str(s[from:to]), true, nil
}

func builtinLeft(args []Value) (Value, bool, error) {
	s, n, err := stringAndCount("LEFT", args)
	if err != nil {
		return Value{}, true, err
	}
	if n <= 0 {
		return Str(""), true, nil
	}
	if n >= len(s) {
		return Str(s), true, nil
	}
	return Str(s[:n]), true, nil
}

func builtinRight(args []Value) (Value, bool, error) {
	s, n, err := stringAndCount("RIGHT", args)
	if err != nil {
		return Value{}, true, err
	}
	if n <= 0 {
		return Str(""), true, nil
	}
	if n >= len(s) {
		return Str(s), true, nil
	}
	return Str(s[len(s)-n:]), true, nil
}

func stringAndCount(name string, args []Value) (string, int, error) {
	if len(args) != 2 {
		return "", 0, errors.WrongArgCount(name, 2, len(args))
	}
	if args[0].Kind() != KindString {
		return "", 0, errors.InvalidArgument(name, "first argument must be a string")
	}
	n, err := intArg(name, args[1])
	if err != nil {
		return "", 0, err
	}
	return args[0].AsString(), n, nil
}

func intArg(name string, v Value) (int, error) {
	f, ok := v.AsFloat()
	if !ok {
		return 0, errors.InvalidArgument(name, "expected a number, got "+v.Kind().String())
	}
	return int(f), nil
}

// parseNumber converts text to a numeric value the way VAL does,
// yielding integer 0 when the text is not a number.
func parseNumber(s string) Value {
	if v, ok := tryParseNumber(s); ok {
		return v
	}
	return Int(0)
}

// tryParseNumber parses text as a numeric literal: a dot makes it a
// float, plain digits an integer.
func tryParseNumber(s string) (Value, bool) {
	trimmed := strings.TrimSpace(s)
	if strings.Contains(trimmed, ".") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Float(f), true
		}
		return Value{}, false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Int(n), true
	}
	return Value{}, false
}
