// Package runs exposes pipeline runs as a domain: it executes captures
// through the pipeline, persists run summaries and mapping decisions, and
// serves their outputs.
package runs

import (
	"context"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/pipeline"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// System defines the public contract for run domain operations.
type System interface {
	Handler() *Handler

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[pipeline.Result], error)

	Find(ctx context.Context, id uuid.UUID) (*pipeline.Result, error)
	Execute(ctx context.Context, cmd ExecuteCommand) (*pipeline.Result, error)
	Batch(ctx context.Context, cmd BatchCommand) ([]pipeline.BatchItem, error)
	Resume(ctx context.Context, runID uuid.UUID, decision component.MappingDecision) error

	Decisions(
		ctx context.Context,
		page pagination.PageRequest,
		filters DecisionFilters,
	) (*pagination.PageResult[component.MappingDecision], error)

	// Artifact returns a published run file (output.json or report.json).
	Artifact(ctx context.Context, id uuid.UUID, name string) ([]byte, error)
}

// ExecuteCommand starts a run for one capture.
type ExecuteCommand struct {
	CaptureID string  `json:"capture_id"`
	Threshold float64 `json:"threshold"`
}

// BatchCommand starts runs for several captures. An empty list runs every
// known capture.
type BatchCommand struct {
	CaptureIDs []string `json:"capture_ids"`
	Threshold  float64  `json:"threshold"`
}

func validThreshold(t float64) bool {
	return t >= 0 && t <= 1
}
