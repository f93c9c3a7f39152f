// Package domainerrors carries the error kinds the coordinator returns to its
// callers. Services translate store sentinels into these codes at their
// boundary; callers branch on codes, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error kind.
type Code string

const (
	// CodeInvalidTransition: edge not in the state graph, or the transaction is terminal.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeUnauthorized: actor lacks the role or party relationship the operation requires.
	CodeUnauthorized Code = "unauthorized"
	// CodeHalted: the transaction or its counterpart is under an active emergency stop.
	CodeHalted Code = "halted"
	// CodeNotFound: unknown transaction, stop or dispute id.
	CodeNotFound Code = "not_found"
	// CodePolicyViolation: value exceeds the ceiling of the automation path being attempted.
	CodePolicyViolation Code = "policy_violation"

	CodeValidation  Code = "validation_error"
	CodeConflict    Code = "conflict"
	CodeLedgerWrite Code = "ledger_write_failed"
	CodeInternal    Code = "internal_error"
)

// Error is a coded domain error. Err keeps the underlying cause for logging.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in err's chain, or
// the empty code when there is none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
