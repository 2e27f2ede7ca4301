package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Code lookup
	ErrCodeCodeNotFound     ErrorCode = "CODE_NOT_FOUND"
	ErrCodeCodeExpired      ErrorCode = "CODE_EXPIRED"
	ErrCodeSelfJoinRejected ErrorCode = "SELF_JOIN_REJECTED"

	// Session lifecycle
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionTerminal ErrorCode = "SESSION_TERMINAL"
	ErrCodeSessionExpired  ErrorCode = "SESSION_EXPIRED"
	ErrCodeNotTheOwner     ErrorCode = "NOT_THE_OWNER"
	ErrCodeNotTheLeader    ErrorCode = "NOT_THE_LEADER"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"

	// Group membership
	ErrCodeGroupFull     ErrorCode = "GROUP_FULL"
	ErrCodeAlreadyMember ErrorCode = "ALREADY_MEMBER"

	// Arrival
	ErrCodeAlreadyArrived ErrorCode = "ALREADY_ARRIVED"

	// Rate limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func CodeNotFound() *AppError {
	return New(ErrCodeCodeNotFound, "Code not found, check it and try again")
}

func CodeExpired() *AppError {
	return New(ErrCodeCodeExpired, "This code has expired, ask for a new one")
}

func SelfJoinRejected() *AppError {
	return New(ErrCodeSelfJoinRejected, "You cannot join your own session")
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found")
}

func SessionTerminal() *AppError {
	return New(ErrCodeSessionTerminal, "Session has already ended")
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session has expired")
}

func NotTheOwner() *AppError {
	return New(ErrCodeNotTheOwner, "Only the session owner may do this")
}

func NotTheLeader() *AppError {
	return New(ErrCodeNotTheLeader, "Only the group leader may do this")
}

func InvalidState(message string) *AppError {
	return New(ErrCodeInvalidState, message)
}

func GroupFull() *AppError {
	return New(ErrCodeGroupFull, "This group is full")
}

func AlreadyArrived() *AppError {
	return New(ErrCodeAlreadyArrived, "Arrival has already been signalled for this session")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
