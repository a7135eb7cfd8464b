package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/pkg/handlers"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/routes"
)

// Resumer continues a run after one of its items is resolved.
type Resumer interface {
	Resume(ctx context.Context, runID uuid.UUID, decision component.MappingDecision) error
}

// ResumerFunc adapts a function to Resumer.
type ResumerFunc func(ctx context.Context, runID uuid.UUID, decision component.MappingDecision) error

func (f ResumerFunc) Resume(ctx context.Context, runID uuid.UUID, decision component.MappingDecision) error {
	return f(ctx, runID, decision)
}

// TypeLookup validates resolved type identifiers.
type TypeLookup interface {
	Lookup(id string) (taxonomy.Entry, error)
}

// Handler exposes the review queue over HTTP.
type Handler struct {
	queue      Queue
	types      TypeLookup
	resumer    Resumer
	logger     *slog.Logger
	pagination pagination.Config
}

// ClaimRequest names the reviewer taking or returning an item.
type ClaimRequest struct {
	Claimant string `json:"claimant"`
}

// ResolveResult is the reply to a resolution. ResumeError is set when the
// decision was stored but the run could not be continued.
type ResolveResult struct {
	Item        *Item                      `json:"item"`
	Decision    *component.MappingDecision `json:"decision"`
	ResumeError string                     `json:"resume_error,omitempty"`
}

// NewHandler creates a Handler. A nil resumer leaves runs untouched after
// resolution.
func NewHandler(queue Queue, types TypeLookup, resumer Resumer, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		queue:      queue,
		types:      types,
		resumer:    resumer,
		logger:     logger.With("handler", "review"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for review endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/review",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/claim", Handler: h.Claim},
			{Method: "POST", Pattern: "/{id}/release", Handler: h.Release},
			{Method: "POST", Pattern: "/{id}/resolve", Handler: h.Resolve},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.queue.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	item, err := h.queue.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}

// Claim hands the oldest pending item to the claimant. An empty queue
// replies 204.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	claimant, ok := h.decodeClaimant(w, r)
	if !ok {
		return
	}

	item, err := h.queue.Claim(r.Context(), claimant)
	if errors.Is(err, ErrEmpty) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	claimant, ok := h.decodeClaimant(w, r)
	if !ok {
		return
	}

	item, err := h.queue.Release(r.Context(), id, claimant)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, item)
}

// Resolve records a superseding decision for a claimed item and resumes its
// run at extraction.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	var res Resolution
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if res.TypeID != nil && h.types != nil {
		if _, err := h.types.Lookup(*res.TypeID); err != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidResolution, err)
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
	}

	item, decision, err := h.queue.Resolve(r.Context(), id, res)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	result := ResolveResult{Item: item, Decision: decision}
	if h.resumer != nil {
		if err := h.resumer.Resume(r.Context(), item.RunID, *decision); err != nil {
			h.logger.Warn("resume after resolution failed",
				"item", item.ID,
				"run_id", item.RunID,
				"error", err,
			)
			result.ResumeError = err.Error()
		}
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) decodeClaimant(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return "", false
	}
	if strings.TrimSpace(req.Claimant) == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("%w: claimant is required", ErrInvalidResolution))
		return "", false
	}
	return req.Claimant, true
}
