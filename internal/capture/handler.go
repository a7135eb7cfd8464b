package capture

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/pkg/handlers"
	"github.com/justinbach/migration-pipeline/pkg/routes"
)

// Store is a Source that also accepts uploads.
type Store interface {
	Source
	Save(ctx context.Context, id string, screenshot, html, metadata []byte) (*Artifact, error)
}

// Handler provides HTTP endpoints for capture bundles.
type Handler struct {
	store         Store
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler with the given store and upload size limit.
func NewHandler(store Store, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		store:         store,
		logger:        logger.With("handler", "captures"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for capture endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/captures",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "", Handler: h.Upload},
		},
	}
}

// List returns the identifiers of stored captures.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	handlers.RespondJSON(w, http.StatusOK, ids)
}

// Find returns a capture's metadata.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, a)
}

// Upload accepts a multipart form with screenshot and html file parts, an
// optional metadata part, and an optional id field. A random id is assigned
// when none is given.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrTooLarge)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		id = uuid.NewString()
	}

	screenshot, err := formBytes(r, "screenshot")
	if err != nil || len(screenshot) == 0 {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidBundle)
		return
	}

	html, err := formBytes(r, "html")
	if err != nil || len(html) == 0 {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidBundle)
		return
	}

	metadata, err := formBytes(r, "metadata")
	if err != nil {
		metadata = []byte(r.FormValue("metadata"))
	}

	a, err := h.store.Save(r.Context(), id, screenshot, html, metadata)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, a)
}

func formBytes(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
