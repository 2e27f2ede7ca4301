package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	status := statusFromCode(appErr.Code)
	response := ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}

	WriteJSON(w, status, response)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeCodeExpired,
		apperrors.ErrCodeSessionExpired:
		return http.StatusBadRequest

	// 403 Forbidden
	case apperrors.ErrCodeSelfJoinRejected,
		apperrors.ErrCodeNotTheOwner,
		apperrors.ErrCodeNotTheLeader:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeCodeNotFound,
		apperrors.ErrCodeSessionNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeGroupFull,
		apperrors.ErrCodeAlreadyMember,
		apperrors.ErrCodeAlreadyArrived,
		apperrors.ErrCodeSessionTerminal,
		apperrors.ErrCodeInvalidState:
		return http.StatusConflict

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeExternal:
		return http.StatusBadGateway

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
