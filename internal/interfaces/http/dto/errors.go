package dto

import (
	"net/http"

	"github.com/mealtracker/backend/internal/domain/shared"
)

// Transport level error codes. Domain failures keep their shared.DomainError code.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeNotFound:               http.StatusNotFound,
	shared.CodePermissionDenied:       http.StatusForbidden,
	shared.CodeQuotaExceeded:          http.StatusBadRequest,
	shared.CodeInvalidArgument:        http.StatusBadRequest,
	shared.CodeConcurrentModification: http.StatusConflict,
	shared.CodeStorageError:           http.StatusInternalServerError,
	shared.CodePublishError:           http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500 Internal Server Error.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
