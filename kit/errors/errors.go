package errors

import (
	"fmt"
	"strings"
)

// Error codes recognized across the module. Automated handlers switch on
// the code; Msg is for the humans reading it.
const (
	EInternal          = "internal error"
	EInvalid           = "invalid"   // validation failed
	ENotFound          = "not found" // no entry for the key
	ECompileFailed     = "compile failed"
	EResourceExhausted = "resource exhausted" // try again later
	EUnavailable       = "unavailable"
)

// Error is the module-wide error type.
//
// Errors may have error codes, human-readable messages, and a logical
// stack trace.
//
// The Code targets automated handlers so that recovery can occur. Msg is
// meant for the operator diagnosing the problem. Op and Err chain errors
// together into a logical stack trace.
//
// To create a simple error,
//     &Error{
//         Code: ENotFound,
//     }
// To show where the error happened, add Op.
//     &Error{
//         Code: ECompileFailed,
//         Op:   "jit.compileStrict",
//     }
// To carry an unpredictable value, use Msg.
//     &Error{
//         Code: EInvalid,
//         Msg:  fmt.Sprintf("constant argument %d has no value", i),
//     }
// To wrap another error, set Err.
//     &Error{
//         Code: EInternal,
//         Err:  err,
//     }
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code of the root error, if available; otherwise
// returns EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return EInternal
	}

	if e == nil {
		return ""
	}

	if e.Code != "" {
		return e.Code
	}

	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EInternal
}

// ErrorOp returns the op of the error, if available; otherwise returns an
// empty string.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return ""
	}

	if e == nil {
		return ""
	}

	if e.Op != "" {
		return e.Op
	}

	if e.Err != nil {
		return ErrorOp(e.Err)
	}

	return ""
}

// ErrorMessage returns the human-readable message of the error, if available.
// Otherwise returns a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return "An internal error has occurred."
	}

	if e == nil {
		return ""
	}

	if e.Msg != "" {
		return e.Msg
	}

	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}
