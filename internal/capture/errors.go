package capture

import (
	"errors"
	"net/http"
)

// Domain errors for capture operations.
var (
	ErrNotFound      = errors.New("capture not found")
	ErrInvalidBundle = errors.New("invalid capture bundle")
	ErrTooLarge      = errors.New("capture upload exceeds size limit")
	ErrDuplicate     = errors.New("capture already exists")
)

// MapHTTPStatus maps capture domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidBundle):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
