// Package apperr defines the typed failures returned by the enrollment engine.
// Every failure carries a machine-readable Code; callers branch on the code,
// never on the message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	CodeNotEnrolled            Code = "NOT_ENROLLED"
	CodeAlreadyEnrolled        Code = "ALREADY_ENROLLED"
	CodeCourseNotFound         Code = "COURSE_NOT_FOUND"
	CodeContentItemNotFound    Code = "CONTENT_ITEM_NOT_FOUND"
	CodeWrongContentType       Code = "WRONG_CONTENT_TYPE"
	CodeInvalidAnswer          Code = "INVALID_ANSWER"
	CodeAttemptsExhausted      Code = "ATTEMPTS_EXHAUSTED"
	CodeInvalidMarks           Code = "INVALID_MARKS"
	CodeAnswerNotFound         Code = "ANSWER_NOT_FOUND"
	CodeCourseNotCompleted     Code = "COURSE_NOT_COMPLETED"
	CodeCertificateNotFound    Code = "CERTIFICATE_NOT_FOUND"
	CodeNotAuthorized          Code = "NOT_AUTHORIZED"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeStorageUnavailable     Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus maps a code to the response status used at the request boundary.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidAnswer, CodeInvalidMarks, CodeWrongContentType:
		return http.StatusBadRequest
	case CodeNotEnrolled, CodeNotAuthorized:
		return http.StatusForbidden
	case CodeCourseNotFound, CodeContentItemNotFound, CodeAnswerNotFound, CodeCertificateNotFound:
		return http.StatusNotFound
	case CodeAlreadyEnrolled, CodeConcurrentModification:
		return http.StatusConflict
	case CodeAttemptsExhausted, CodeCourseNotCompleted:
		return http.StatusUnprocessableEntity
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed engine failure.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Err      error
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

// New creates an error with the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// With returns a copy of e carrying one more metadata pair.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return &out
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not an engine error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// Message returns the user-facing message of an engine error, or a generic one.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}
