package review

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("review item not found")
	ErrDuplicate         = errors.New("decision already queued for review")
	ErrEmpty             = errors.New("no pending review items")
	ErrConflict          = errors.New("review item is not claimed by this reviewer")
	ErrInvalidResolution = errors.New("invalid resolution")
)

// MapHTTPStatus maps review errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrEmpty):
		return http.StatusNoContent
	case errors.Is(err, ErrInvalidResolution):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
