package compiler

import (
	"errors"
	"fmt"
)

// Kind classifies a compilation failure.
type Kind int

const (
	KindTokenize Kind = iota + 1 // malformed input bytes or read failure
	KindParse                    // malformed statement, declaration or struct
	KindType                     // operand type / pointer depth mismatch
	KindInternal                 // defect in the reducer
)

func (k Kind) String() string {
	switch k {
	case KindTokenize:
		return "tokenize"
	case KindParse:
		return "parse"
	case KindType:
		return "type"
	case KindInternal:
		return "internal"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel causes, matched with errors.Is.
var (
	ErrTokenLengthExceeded = errors.New("token length limit exceeded")
	ErrLiteralTooLong      = errors.New("integer literal too long")
	ErrLiteralRange        = errors.New("integer literal out of range")
	ErrUnexpectedByte      = errors.New("unexpected byte")
	ErrUnexpectedToken     = errors.New("unexpected token")
	ErrUndefined           = errors.New("undefined name")
	ErrUnbalanced          = errors.New("unbalanced parenthesis")
	ErrDuplicate           = errors.New("duplicate definition")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrUnsupported         = errors.New("unsupported operation")
	ErrUnhandledDirective  = errors.New("unhandled directive")
)

// Error is the single error type returned by the tokenizer and compiler.
type Error struct {
	Kind Kind
	Line int // 0 when unknown
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s error: %s", e.Line, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

func newError(kind Kind, line int, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func tokenizeErrorf(line int, cause error, format string, args ...any) error {
	return newError(KindTokenize, line, cause, format, args...)
}

func parseErrorf(tok Token, cause error, format string, args ...any) error {
	return newError(KindParse, tok.Line, cause, format, args...)
}

func typeErrorf(line int, format string, args ...any) error {
	return newError(KindType, line, ErrTypeMismatch, format, args...)
}

func internalErrorf(line int, format string, args ...any) error {
	return newError(KindInternal, line, ErrUnhandledDirective, format, args...)
}
