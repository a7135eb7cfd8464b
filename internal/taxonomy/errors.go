package taxonomy

import (
	"errors"
	"net/http"
)

var (
	// ErrSchema indicates a malformed or conflicting taxonomy definition.
	ErrSchema = errors.New("taxonomy schema error")
	// ErrNotFound indicates no entry exists for the requested identifier.
	ErrNotFound = errors.New("taxonomy entry not found")
)

// MapHTTPStatus maps taxonomy errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
