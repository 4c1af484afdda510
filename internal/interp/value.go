package interp

import "strconv"

// Kind identifies the runtime type held by a Value.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a tagged BASIC runtime value. The zero Value is integer 0.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
}

// Int creates an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float creates a floating-point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Str creates a string value.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// Bool creates a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Kind returns the value's runtime type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNumeric reports whether the value is an integer or a float.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// AsFloat returns the numeric value widened to float64. The second
// return is false for non-numeric values.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// AsInt returns the integer payload. Only meaningful for KindInt.
func (v Value) AsInt() int64 { return v.i }

// AsString returns the string payload. Only meaningful for KindString.
func (v Value) AsString() string { return v.s }

// AsBool returns the boolean payload. Only meaningful for KindBool.
func (v Value) AsBool() bool { return v.b }

// String stringifies the value the way PRINT and the debugger's
// variable views render it. Integers keep their integral form so that
// parsing and re-stringifying a literal round-trips.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Truthy reports the value's truth for IF and WHILE conditions:
// booleans as themselves, numbers when nonzero, strings when nonempty.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	default:
		return false
	}
}

// Equal implements the language's equality: numbers compare by
// numeric value across integer and float, strings and booleans
// compare within their own kind, and everything else is unequal.
func (v Value) Equal(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		a, _ := v.AsFloat()
		b, _ := other.AsFloat()
		return a == b
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == other.s
	case KindBool:
		return v.b == other.b
	default:
		return false
	}
}
