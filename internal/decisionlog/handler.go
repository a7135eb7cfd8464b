package decisionlog

import (
	"log/slog"
	"net/http"

	"github.com/justinbach/migration-pipeline/pkg/handlers"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/routes"
)

// Handler exposes decision log queries over HTTP.
type Handler struct {
	store      Store
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler reading from store.
func NewHandler(store Store, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		store:      store,
		logger:     logger.With("handler", "decisions"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for decision log endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/decisions",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
		},
	}
}

// List returns entries filtered by run_id, subject, stage and action query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.store.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
