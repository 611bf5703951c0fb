package leads

import (
	"errors"
	"fmt"
)

// Code classifies every failure this package reports.
type Code string

const (
	CodeInvalidName          Code = "InvalidName"
	CodeDuplicateAttribute   Code = "DuplicateAttribute"
	CodeUnknownAttribute     Code = "UnknownAttribute"
	CodeUnsupportedType      Code = "UnsupportedType"
	CodeMissingRequiredField Code = "MissingRequiredField"
	CodeTypeMismatch         Code = "TypeMismatch"
	CodeRejectedPayload      Code = "RejectedPayload"
	CodeStorageUnavailable   Code = "StorageUnavailable"
	CodeUnknownRecord        Code = "UnknownRecord"
	CodeInvalidStatus        Code = "InvalidStatus"
)

// Sentinels for errors.Is; any *Error with the same code matches.
var (
	ErrInvalidName          = &Error{Code: CodeInvalidName}
	ErrDuplicateAttribute   = &Error{Code: CodeDuplicateAttribute}
	ErrUnknownAttribute     = &Error{Code: CodeUnknownAttribute}
	ErrUnsupportedType      = &Error{Code: CodeUnsupportedType}
	ErrMissingRequiredField = &Error{Code: CodeMissingRequiredField}
	ErrTypeMismatch         = &Error{Code: CodeTypeMismatch}
	ErrRejectedPayload      = &Error{Code: CodeRejectedPayload}
	ErrStorageUnavailable   = &Error{Code: CodeStorageUnavailable}
	ErrUnknownRecord        = &Error{Code: CodeUnknownRecord}
	ErrInvalidStatus        = &Error{Code: CodeInvalidStatus}
)

// Error carries a Code, the offending attribute or key when there is one, and the underlying
// cause for storage failures.
type Error struct {
	Code    Code
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Recoverable reports whether the caller can fix the request and retry. Only storage failures
// are not recoverable.
func (e *Error) Recoverable() bool {
	return e.Code != CodeStorageUnavailable
}

func newError(code Code, field, format string, args ...interface{}) *Error {
	return &Error{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

func storageError(op string, err error) *Error {
	return &Error{Code: CodeStorageUnavailable, Message: op, Err: err}
}

// CodeOf returns the Code of err, or "" when err is nil or foreign.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ResultFromError converts a validation failure into a {OK:false} Result. Storage failures and
// foreign errors are handed back untouched so they stay fatal for the operation.
func ResultFromError(err error) (Result, error) {
	if err == nil {
		return Result{OK: true}, nil
	}
	var e *Error
	if errors.As(err, &e) && e.Recoverable() {
		return Result{OK: false, Message: e.Error(), Code: e.Code}, nil
	}
	return Result{OK: false, Message: err.Error(), Code: CodeOf(err)}, err
}
