// Package errors provides structured error types for the BASIC debug
// engine. Every failure carries a machine-readable code from one of
// five classes (lexical, syntax, evaluation, protocol, session) plus
// the source position where that makes sense, so handlers can map
// errors onto wire responses without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Lexical errors
	CodeUnexpectedChar     ErrorCode = "LEX_UNEXPECTED_CHAR"
	CodeUnterminatedString ErrorCode = "LEX_UNTERMINATED_STRING"

	// Syntax errors
	CodeUnexpectedToken ErrorCode = "SYNTAX_UNEXPECTED_TOKEN"
	CodeExpectedToken   ErrorCode = "SYNTAX_EXPECTED_TOKEN"

	// Evaluation errors
	CodeTypeMismatch      ErrorCode = "EVAL_TYPE_MISMATCH"
	CodeDivisionByZero    ErrorCode = "EVAL_DIVISION_BY_ZERO"
	CodeUnknownIdentifier ErrorCode = "EVAL_UNKNOWN_IDENTIFIER"
	CodeUnknownFunction   ErrorCode = "EVAL_UNKNOWN_FUNCTION"
	CodeWrongArgCount     ErrorCode = "EVAL_WRONG_ARG_COUNT"
	CodeInvalidArgument   ErrorCode = "EVAL_INVALID_ARGUMENT"
	CodeUnsupported       ErrorCode = "EVAL_UNSUPPORTED"
	CodeEvaluation        ErrorCode = "EVAL_ERROR"

	// Protocol errors
	CodeMethodNotFound ErrorCode = "PROTO_METHOD_NOT_FOUND"
	CodeFrameTooLarge  ErrorCode = "PROTO_FRAME_TOO_LARGE"
	CodeBadFrame       ErrorCode = "PROTO_BAD_FRAME"
	CodeBadArguments   ErrorCode = "PROTO_BAD_ARGUMENTS"
	CodeNotAllowed     ErrorCode = "PROTO_NOT_ALLOWED"

	// Session errors
	CodeNoProgram         ErrorCode = "SESSION_NO_PROGRAM"
	CodeIllegalTransition ErrorCode = "SESSION_ILLEGAL_TRANSITION"
	CodeSessionTerminated ErrorCode = "SESSION_TERMINATED"
	CodeLaunchFailed      ErrorCode = "SESSION_LAUNCH_FAILED"
)

// MethodNotFoundID is the numeric error id reported in error responses
// for commands the dispatcher does not recognize.
const MethodNotFoundID = -32601

// Error is the structured error type used across the engine. Line and
// Column are 1-based and zero when the error has no source position.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d, column %d", e.Message, e.Line, e.Column)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chaining
func (e *Error) Unwrap() error {
	return e.Cause
}

// At attaches a source position and returns the error.
func (e *Error) At(line, column int) *Error {
	e.Line = line
	e.Column = column
	return e
}

// WithCause sets the underlying cause
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// --- Lexical errors ---

// UnexpectedChar creates an error for a character the lexer cannot start
// a token with.
func UnexpectedChar(ch rune, line, column int) *Error {
	return &Error{
		Code:    CodeUnexpectedChar,
		Message: fmt.Sprintf("unexpected character '%c'", ch),
		Line:    line,
		Column:  column,
	}
}

// UnterminatedString creates an error for a string literal that runs off
// the end of the input.
func UnterminatedString(line, column int) *Error {
	return &Error{
		Code:    CodeUnterminatedString,
		Message: "unterminated string literal",
		Line:    line,
		Column:  column,
	}
}

// --- Syntax errors ---

// SyntaxError creates a general parse error at a token position.
func SyntaxError(message string, line, column int) *Error {
	return &Error{
		Code:    CodeUnexpectedToken,
		Message: message,
		Line:    line,
		Column:  column,
	}
}

// ExpectedToken creates an error for a missing required token.
func ExpectedToken(want, got string, line, column int) *Error {
	return &Error{
		Code:    CodeExpectedToken,
		Message: fmt.Sprintf("expected %s, got %s", want, got),
		Line:    line,
		Column:  column,
	}
}

// --- Evaluation errors ---

// TypeMismatch creates an error for an operator applied to operand types
// it does not support.
func TypeMismatch(op, left, right string) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("operator '%s' not defined for %s and %s", op, left, right),
	}
}

// DivisionByZero creates an error for division or modulo by zero.
func DivisionByZero(op string) *Error {
	return &Error{
		Code:    CodeDivisionByZero,
		Message: fmt.Sprintf("%s by zero", op),
	}
}

// UnknownIdentifier creates an error for a variable that has never been
// assigned.
func UnknownIdentifier(name string) *Error {
	return &Error{
		Code:    CodeUnknownIdentifier,
		Message: fmt.Sprintf("unknown identifier '%s'", name),
	}
}

// UnknownFunction creates an error for a call to a name that is neither
// a builtin nor a declared function.
func UnknownFunction(name string) *Error {
	return &Error{
		Code:    CodeUnknownFunction,
		Message: fmt.Sprintf("unknown function '%s'", name),
	}
}

// WrongArgCount creates an error for a call with the wrong arity.
func WrongArgCount(name string, want, got int) *Error {
	return &Error{
		Code:    CodeWrongArgCount,
		Message: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got),
	}
}

// InvalidArgument creates an error for an argument of the wrong type or
// out of range.
func InvalidArgument(name, reason string) *Error {
	return &Error{
		Code:    CodeInvalidArgument,
		Message: fmt.Sprintf("invalid argument to %s: %s", name, reason),
	}
}

// Unsupported creates an error for a statement the runtime recognizes
// but does not execute.
func Unsupported(what string) *Error {
	return &Error{
		Code:    CodeUnsupported,
		Message: fmt.Sprintf("%s is not supported", what),
	}
}

// EvaluationError creates a general runtime error.
func EvaluationError(format string, args ...interface{}) *Error {
	return &Error{
		Code:    CodeEvaluation,
		Message: fmt.Sprintf(format, args...),
	}
}

// --- Protocol errors ---

// MethodNotFound creates an error for an unrecognized request command.
func MethodNotFound(command string) *Error {
	return &Error{
		Code:    CodeMethodNotFound,
		Message: "Method not found",
		Cause:   fmt.Errorf("unknown command %q", command),
	}
}

// FrameTooLarge creates an error for a frame exceeding the content cap.
func FrameTooLarge(length, max int) *Error {
	return &Error{
		Code:    CodeFrameTooLarge,
		Message: fmt.Sprintf("frame of %d bytes exceeds maximum of %d", length, max),
	}
}

// BadFrame creates an error for a frame that cannot be decoded.
func BadFrame(err error) *Error {
	return &Error{
		Code:    CodeBadFrame,
		Message: fmt.Sprintf("malformed message: %v", err),
		Cause:   err,
	}
}

// NotAllowed creates an error for a request disabled by configuration.
func NotAllowed(command string) *Error {
	return &Error{
		Code:    CodeNotAllowed,
		Message: fmt.Sprintf("%s is disabled by configuration", command),
	}
}

// BadArguments creates an error for request arguments that fail to decode.
func BadArguments(command string, err error) *Error {
	return &Error{
		Code:    CodeBadArguments,
		Message: fmt.Sprintf("invalid arguments for %s: %v", command, err),
		Cause:   err,
	}
}

// --- Session errors ---

// NoProgram creates an error for operations that need a loaded program.
func NoProgram() *Error {
	return &Error{
		Code:    CodeNoProgram,
		Message: "no program loaded",
	}
}

// IllegalTransition creates an error for a request that is not legal in
// the current run state.
func IllegalTransition(command, state string) *Error {
	return &Error{
		Code:    CodeIllegalTransition,
		Message: fmt.Sprintf("cannot %s while session is %s", command, state),
	}
}

// SessionTerminated creates an error for operations on a dead session.
func SessionTerminated() *Error {
	return &Error{
		Code:    CodeSessionTerminated,
		Message: "session has terminated",
	}
}

// LaunchFailed wraps a failure to load or launch a program.
func LaunchFailed(err error) *Error {
	return &Error{
		Code:    CodeLaunchFailed,
		Message: fmt.Sprintf("launch failed: %v", err),
		Cause:   err,
	}
}

// --- Helpers ---

// CodeOf extracts the ErrorCode from err, or "UNKNOWN_ERROR" when err
// carries no structured code.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return "UNKNOWN_ERROR"
}

// FromError converts a generic error to a structured one, preserving any
// existing structure.
func FromError(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Cause:   err,
	}
}
