package taxonomy

import (
	"log/slog"
	"net/http"

	"github.com/justinbach/migration-pipeline/pkg/handlers"
	"github.com/justinbach/migration-pipeline/pkg/routes"
)

// Handler exposes the loaded registry read-only over HTTP.
type Handler struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHandler creates a Handler for the given registry.
func NewHandler(registry *Registry, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger.With("handler", "taxonomy"),
	}
}

// Routes returns the route group definition for taxonomy endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/taxonomy",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
		},
	}
}

// List returns every entry sorted by identifier.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.registry.Entries())
}

// Find returns a single entry by identifier.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	e, err := h.registry.Lookup(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, e)
}
