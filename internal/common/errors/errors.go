// Package errors provides the standardized error taxonomy of the interview
// service: validation, state machine, record store and aggregation failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "INTERVIEW_VALIDATION_FAILED"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodeTransitionInFlight ErrorCode = "TRANSITION_IN_FLIGHT"
	ErrCodeNoteMissing        ErrorCode = "INTERVIEW_NOTE_MISSING"
	ErrCodeNoteEncodeFailed   ErrorCode = "INTERVIEW_NOTE_ENCODE_FAILED"

	ErrCodeRecordStoreRequestFailed ErrorCode = "RECORD_STORE_REQUEST_FAILED"
	ErrCodeRecordStoreUnavailable   ErrorCode = "RECORD_STORE_UNAVAILABLE"
	ErrCodeJobListFetchFailed       ErrorCode = "JOB_LIST_FETCH_FAILED"

	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAuthentication   ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// GenericFailureMessage is shown when the record store gives no message of its own.
const GenericFailureMessage = "request failed, please try again"

// StandardError represents a structured application error. Message is
// user-facing; Details is for logs.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// Field returns the offending input field of a validation error, if any.
func (e *StandardError) Field() string {
	if e.Metadata == nil {
		return ""
	}
	f, _ := e.Metadata["field"].(string)
	return f
}

// ==========================
// 2. Constructors
// ==========================

// NewValidationError reports a missing or malformed input field. No store
// call has been made when this is returned.
func NewValidationError(field, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   message,
		Details:   fmt.Sprintf("field: %s", field),
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidTransitionError(from, operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   fmt.Sprintf("%s is not allowed while the interview is %s", operation, displayStatus(from)),
		Details:   fmt.Sprintf("from: %q, operation: %s", from, operation),
		Retryable: false,
		Metadata:  map[string]interface{}{"from": from, "operation": operation},
		Timestamp: time.Now().UTC(),
	}
}

func NewTransitionInFlightError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransitionInFlight,
		Message:   "another change to this interview is still being processed",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNoteMissingError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoteMissing,
		Message:   "no interview proposal exists for this application",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Metadata:  map[string]interface{}{"field": "interviewNote"},
		Timestamp: time.Now().UTC(),
	}
}

func NewNoteEncodeFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoteEncodeFailed,
		Message:   GenericFailureMessage,
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRecordStoreError reports a non-2xx answer. storeMessage is the store's
// own {message}, surfaced verbatim when present.
func NewRecordStoreError(statusCode int, storeMessage string) *StandardError {
	msg := strings.TrimSpace(storeMessage)
	if msg == "" {
		msg = GenericFailureMessage
	}
	return &StandardError{
		Code:      ErrCodeRecordStoreRequestFailed,
		Message:   msg,
		Details:   fmt.Sprintf("status: %d", statusCode),
		Retryable: statusCode >= 500,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordStoreUnavailableError reports a transport failure (no response).
func NewRecordStoreUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordStoreUnavailable,
		Message:   GenericFailureMessage,
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewJobListFetchFailedError(err error) *StandardError {
	msg := GenericFailureMessage
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) && stdErr.Message != "" {
		msg = stdErr.Message
	}
	return &StandardError{
		Code:      ErrCodeJobListFetchFailed,
		Message:   msg,
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewResourceNotFoundError(resource, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthentication,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard normalizes any error to a StandardError.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   GenericFailureMessage,
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if !stderrors.As(err, &stdErr) {
		return false
	}
	return stdErr.Code == code
}

// UserMessage returns the single notice shown to the employer for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return AsStandard(err).Message
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "NOTE_MISSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TRANSITION"):
		return "STATE"
	case strings.Contains(codeStr, "RECORD_STORE") || strings.Contains(codeStr, "JOB_LIST"):
		return "STORE"
	case strings.Contains(codeStr, "AUTH"):
		return "AUTH"
	default:
		return "OTHER"
	}
}

func displayStatus(s string) string {
	if s == "" {
		return "not yet proposed"
	}
	return s
}
