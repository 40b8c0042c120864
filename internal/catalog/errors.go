package catalog

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes catalog errors.
type ErrorCode string

const (
	// ErrCodeSyntax indicates a malformed selection expression.
	ErrCodeSyntax ErrorCode = "SYNTAX"

	// ErrCodeField indicates a reference to an unknown field name.
	ErrCodeField ErrorCode = "FIELD"

	// ErrCodeType indicates a value/field type or operator mismatch,
	// including a non-numeric increment target.
	ErrCodeType ErrorCode = "TYPE"

	// ErrCodeNotFound indicates the referenced evid/version does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeSchema indicates an incoming event is missing a required core
	// field or carries a mistyped one.
	ErrCodeSchema ErrorCode = "SCHEMA"

	// ErrCodeConfirmationRequired indicates a destructive operation was
	// attempted without an explicit force flag.
	ErrCodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"

	// ErrCodeBusy indicates the store stayed locked beyond the retry budget.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeStale indicates an optimistic-concurrency conflict: the version
	// observed before a write was no longer the latest inside the write
	// transaction. Always retried by callers, never surfaced to users.
	ErrCodeStale ErrorCode = "STALE"
)

// Error is the structured error type for all catalog operations.
//
// Every error carries enough context (field name, operator, literal,
// evid/version, position, retry count) to pinpoint the cause without
// inspecting internals. Zero-valued context fields are omitted from the
// message.
type Error struct {
	Code    ErrorCode
	Message string

	// Field, Op, Literal identify the offending clause or mutation target.
	Field   string
	Op      string
	Literal string

	// Evid and Ver identify the affected record.
	Evid string
	Ver  int64

	// Pos and Token locate a syntax error in the expression text.
	Pos   int
	Token string

	// Attempts is the number of tries made before a BUSY error surfaced.
	Attempts int
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Token != "":
		msg += fmt.Sprintf(" (token %q at position %d)", e.Token, e.Pos)
	case e.Field != "" && e.Op != "":
		msg += fmt.Sprintf(" (field %q, operator %q, value %q)", e.Field, e.Op, e.Literal)
	case e.Field != "":
		msg += fmt.Sprintf(" (field %q)", e.Field)
	case e.Evid != "" && e.Ver > 0:
		msg += fmt.Sprintf(" (event %s version %d)", e.Evid, e.Ver)
	case e.Evid != "":
		msg += fmt.Sprintf(" (event %s)", e.Evid)
	case e.Attempts > 0:
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

// HasCode reports whether err is (or wraps) a catalog Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// SyntaxError builds a SYNTAX error for a token at a byte position.
func SyntaxError(msg, token string, pos int) *Error {
	return &Error{Code: ErrCodeSyntax, Message: msg, Token: token, Pos: pos}
}

// FieldError builds a FIELD error naming the unknown key.
func FieldError(name string) *Error {
	return &Error{Code: ErrCodeField, Message: "unknown field", Field: name}
}

// TypeError builds a TYPE error for a field/operator/literal combination.
func TypeError(msg, field, op, literal string) *Error {
	return &Error{Code: ErrCodeType, Message: msg, Field: field, Op: op, Literal: literal}
}

// NotFoundError builds a NOT_FOUND error for an evid/version pair.
// Pass ver 0 when the version is unspecified.
func NotFoundError(evid string, ver int64) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "no such event version", Evid: evid, Ver: ver}
}

// SchemaError builds a SCHEMA error for a missing or mistyped core field.
func SchemaError(msg, field string) *Error {
	return &Error{Code: ErrCodeSchema, Message: msg, Field: field}
}

// ConfirmationRequiredError builds a CONFIRMATION_REQUIRED error.
func ConfirmationRequiredError(msg string) *Error {
	return &Error{Code: ErrCodeConfirmationRequired, Message: msg}
}

// BusyError builds a BUSY error after the retry budget is exhausted.
func BusyError(msg string, attempts int) *Error {
	return &Error{Code: ErrCodeBusy, Message: msg, Attempts: attempts}
}

// StaleError builds a STALE error for an optimistic-concurrency conflict.
func StaleError(evid string, ver int64) *Error {
	return &Error{Code: ErrCodeStale, Message: "observed latest version is no longer latest", Evid: evid, Ver: ver}
}
