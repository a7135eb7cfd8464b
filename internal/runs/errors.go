package runs

import (
	"errors"
	"net/http"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/pipeline"
	"github.com/justinbach/migration-pipeline/internal/workspace"
	"github.com/justinbach/migration-pipeline/pkg/storage"
)

// Domain errors for run operations.
var (
	ErrNotFound       = errors.New("run not found")
	ErrDuplicate      = errors.New("run already exists")
	ErrInvalidRequest = errors.New("invalid run request")
	ErrNotReady       = errors.New("run output not available")
)

// MapHTTPStatus maps run domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, pipeline.ErrRunNotFound),
		errors.Is(err, capture.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady),
		errors.Is(err, workspace.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, pipeline.ErrResume):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, capture.ErrInvalidBundle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
