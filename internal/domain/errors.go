package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced by the bootstrap workflow and the repository.
type ErrorCode string

const (
	CodeConnection   ErrorCode = "CONNECTION_ERROR"
	CodeDatabase     ErrorCode = "DATABASE_ERROR"
	CodeSchema       ErrorCode = "SCHEMA_ERROR"
	CodeInsert       ErrorCode = "INSERT_ERROR"
	CodeQuery        ErrorCode = "QUERY_ERROR"
	CodeVerification ErrorCode = "VERIFICATION_FAILED"
)

// Error is a coded error with an optional cause. Two Errors match under errors.Is
// when their codes are equal, so the sentinels below can be used as categories.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Category sentinels for errors.Is checks.
var (
	ErrConnection   = &Error{Code: CodeConnection, Message: "connection failed"}
	ErrDatabase     = &Error{Code: CodeDatabase, Message: "database operation failed"}
	ErrSchema       = &Error{Code: CodeSchema, Message: "schema definition failed"}
	ErrInsert       = &Error{Code: CodeInsert, Message: "data insertion failed"}
	ErrQuery        = &Error{Code: CodeQuery, Message: "query failed"}
	ErrVerification = &Error{Code: CodeVerification, Message: "verification failed"}
)

// Repository level failures from the sample requests.
var (
	ErrNoUsers       = errors.New("no users found in the database")
	ErrAmbiguousUser = errors.New("found more than one user with that name")
	ErrFileCount     = errors.New("wrong number of files matched")
	ErrInvalidInput  = errors.New("invalid input")
)

// NewError creates a non-retryable coded error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a coded error around cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WrapRetryable creates a coded error marked as worth retrying by the caller.
func WrapRetryable(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: true, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether any *Error in err's chain is marked retryable.
func IsRetryable(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Retryable {
			return true
		}
		err = e.Cause
	}
	return false
}

// VerificationError reports a verification query that ran but returned the wrong count.
type VerificationError struct {
	Database string
	Expected int64
	Observed int64
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("[%s] database %q: expected %d, observed %d", CodeVerification, e.Database, e.Expected, e.Observed)
}

// Is lets errors.Is(err, ErrVerification) match.
func (e *VerificationError) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == CodeVerification
	}
	return false
}
