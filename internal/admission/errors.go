// Package admission decides whether a booking request is accepted and
// commits it atomically with respect to capacity.
package admission

import (
	"errors"
	"fmt"
)

// Code is the structured result of an admission attempt.
type Code string

const (
	CodeAdmitted        Code = "ADMITTED"
	CodeTenantNotFound  Code = "TENANT_NOT_FOUND"
	CodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	CodeClosed          Code = "CLOSED"
	CodeFull            Code = "FULL"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInternal        Code = "INTERNAL"
)

// Error is a rejected admission.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admission: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("admission: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func reject(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf maps err to its admission code. Errors that are not admission
// errors are internal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeAdmitted
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}
