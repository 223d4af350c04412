// Package apperr defines the structured error kinds surfaced to API
// callers. Every validation or authorization failure is one of these; the
// HTTP layer maps the kind to a status code and a JSON error envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeMissingParameter          = "MissingParameter"
	CodeInvalidCredentials        = "InvalidCredentials"
	CodeAccountDisabled           = "AccountDisabled"
	CodePasswordChangeRequired    = "PasswordChangeRequired"
	CodeAccessDenied              = "AccessDenied"
	CodeNotFound                  = "NotFound"
	CodeInvalidGroupReference     = "InvalidGroupReference"
	CodeAccountExists             = "AccountExists"
	CodeInvalidEmailFormat        = "InvalidEmailFormat"
	CodePasswordTooShort          = "PasswordTooShort"
	CodeUnsupportedBatchOperation = "UnsupportedBatchOperation"
	CodeInvalidApiCredential      = "InvalidApiCredential"
)

// Error is a structured API error with a stable code and an HTTP status.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code string, status int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Status: status}
}

func MissingParameter(format string, args ...interface{}) *Error {
	return newError(CodeMissingParameter, http.StatusBadRequest, format, args...)
}

func InvalidCredentials() *Error {
	return newError(CodeInvalidCredentials, http.StatusUnauthorized, "the login or password you entered is not valid")
}

func AccountDisabled(reason string) *Error {
	if reason == "" {
		reason = "this account is disabled"
	}
	return newError(CodeAccountDisabled, http.StatusForbidden, "%s", reason)
}

func PasswordChangeRequired() *Error {
	return newError(CodePasswordChangeRequired, http.StatusForbidden, "a password change is required before logging in")
}

func AccessDenied(format string, args ...interface{}) *Error {
	return newError(CodeAccessDenied, http.StatusForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(CodeNotFound, http.StatusNotFound, format, args...)
}

func InvalidGroupReference(format string, args ...interface{}) *Error {
	return newError(CodeInvalidGroupReference, http.StatusBadRequest, format, args...)
}

func AccountExists(email string) *Error {
	return newError(CodeAccountExists, http.StatusConflict, "an account with the email address %s already exists", email)
}

func InvalidEmailFormat(email string) *Error {
	return newError(CodeInvalidEmailFormat, http.StatusBadRequest, "the email address %s is not valid", email)
}

func PasswordTooShort(min int) *Error {
	return newError(CodePasswordTooShort, http.StatusBadRequest, "passwords must be at least %d characters long", min)
}

func UnsupportedBatchOperation(format string, args ...interface{}) *Error {
	return newError(CodeUnsupportedBatchOperation, http.StatusBadRequest, format, args...)
}

func InvalidApiCredential() *Error {
	return newError(CodeInvalidApiCredential, http.StatusUnauthorized, "the supplied API credential could not be verified")
}

// From extracts a structured Error from err, if there is one.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
