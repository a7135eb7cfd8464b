package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/extractor"
	"github.com/justinbach/migration-pipeline/internal/mapper"
	"github.com/justinbach/migration-pipeline/internal/review"
	"github.com/justinbach/migration-pipeline/internal/segmenter"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/internal/validator"
	"github.com/justinbach/migration-pipeline/internal/workspace"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/storage"
)

// Tracker persists run results and mapping decisions as they change.
// Failures are logged and do not affect the run.
type Tracker interface {
	Save(ctx context.Context, r *Result) error
	SaveDecisions(ctx context.Context, decisions []component.MappingDecision) error
}

// Runtime bundles the dependencies that pipeline stages require. It is
// constructed by composition code from infrastructure and domain systems.
// Only the registry is shared between concurrent runs; every other
// collaborator must be safe for concurrent use.
type Runtime struct {
	Registry  *taxonomy.Registry
	Captures  capture.Source
	Segmenter *segmenter.Segmenter
	Mapper    *mapper.Mapper
	Extractor *extractor.Extractor
	Validator *validator.Validator
	Queue     review.Queue
	Workspace *workspace.Workspace

	// Output receives output.json and report.json under runs/<run-id>/. Optional.
	Output storage.System
	// Stores receive every decision log entry. When FileLog is set each run
	// also appends to decisions.jsonl in its workspace.
	Stores     []decisionlog.Store
	FileLog    bool
	// LogTimeout bounds each decision log append. Zero uses the recorder default.
	LogTimeout time.Duration
	Pagination pagination.Config

	Tracker Tracker
	Metrics *Metrics
	Logger  *slog.Logger
	Workers int
}

func (rt *Runtime) recorder(run *workspace.Run) *decisionlog.Recorder {
	stores := rt.Stores
	if rt.FileLog {
		stores = append(stores[:len(stores):len(stores)],
			decisionlog.NewFileStore(run.Path(workspace.LogFile), rt.Pagination))
	}
	rec := decisionlog.NewRecorder(run.ID(), rt.Logger, stores...)
	rec.SetAppendTimeout(rt.LogTimeout)
	return rec
}

func (rt *Runtime) track(ctx context.Context, r *Result) {
	if rt.Tracker == nil {
		return
	}
	if err := rt.Tracker.Save(context.WithoutCancel(ctx), r); err != nil {
		rt.Logger.WarnContext(ctx, "run tracking failed", "run_id", r.RunID, "error", err)
	}
}

func (rt *Runtime) trackDecisions(ctx context.Context, runID uuid.UUID, decisions []component.MappingDecision) {
	if rt.Tracker == nil || len(decisions) == 0 {
		return
	}
	if err := rt.Tracker.SaveDecisions(context.WithoutCancel(ctx), decisions); err != nil {
		rt.Logger.WarnContext(ctx, "decision tracking failed", "run_id", runID, "error", err)
	}
}

func (rt *Runtime) workers() int {
	return max(rt.Workers, 1)
}
