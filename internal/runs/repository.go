package runs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/pipeline"
	"github.com/justinbach/migration-pipeline/internal/workspace"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/query"
	"github.com/justinbach/migration-pipeline/pkg/repository"
	"github.com/justinbach/migration-pipeline/pkg/storage"
)

type repo struct {
	db         *sql.DB
	rt         *pipeline.Runtime
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a run repository implementing the System interface. The
// repository registers itself as the runtime's tracker so every run,
// batch or resumption is persisted.
func New(
	db *sql.DB,
	rt pipeline.Runtime,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	r := &repo{
		db:         db,
		logger:     logger.With("system", "runs"),
		pagination: pagination,
	}
	rt.Tracker = r
	r.rt = &rt
	return r
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[pipeline.Result], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "CaptureID", "SourceURL")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRun)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*pipeline.Result, error) {
	q, args := query.NewBuilder(projection).BuildSingle("RunID", id)

	run, err := repository.QueryOne(ctx, r.db, q, args, scanRun)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &run, nil
}

func (r *repo) Execute(ctx context.Context, cmd ExecuteCommand) (*pipeline.Result, error) {
	if cmd.CaptureID == "" || !validThreshold(cmd.Threshold) {
		return nil, fmt.Errorf("%w: capture_id required and threshold must be within [0, 1]", ErrInvalidRequest)
	}

	result, err := pipeline.Execute(ctx, r.rt, cmd.CaptureID, pipeline.Options{Threshold: cmd.Threshold})
	if result == nil || errors.Is(err, capture.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		r.logger.WarnContext(ctx, "run aborted", "run_id", result.RunID, "error", err)
	}
	return result, nil
}

func (r *repo) Batch(ctx context.Context, cmd BatchCommand) ([]pipeline.BatchItem, error) {
	if !validThreshold(cmd.Threshold) {
		return nil, fmt.Errorf("%w: threshold must be within [0, 1]", ErrInvalidRequest)
	}
	return pipeline.RunBatch(ctx, r.rt, cmd.CaptureIDs, pipeline.Options{Threshold: cmd.Threshold})
}

// Resume implements review.Resumer.
func (r *repo) Resume(ctx context.Context, runID uuid.UUID, decision component.MappingDecision) error {
	result, err := pipeline.Resume(ctx, r.rt, runID, decision)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "run resumed", "run_id", runID, "status", result.Status)
	return nil
}

func (r *repo) Decisions(
	ctx context.Context,
	page pagination.PageRequest,
	filters DecisionFilters,
) (*pagination.PageResult[component.MappingDecision], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(decisionProjection, decisionSort...).
		WhereSearch(page.Search, "Rationale", "TypeID")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanDecision)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

// Artifact reads a published run file from the output sink, falling back to
// the run workspace.
func (r *repo) Artifact(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	if name != workspace.OutputFile && name != workspace.ReportFile {
		return nil, fmt.Errorf("%w: unknown run file %q", ErrInvalidRequest, name)
	}

	if r.rt.Output != nil {
		data, err := storage.ReadAll(ctx, r.rt.Output, pipeline.OutputKey(id, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	run, err := r.rt.Workspace.Open(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var raw json.RawMessage
	if err := run.Read(name, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return bytes.TrimSpace(raw), nil
}

const upsertRun = `
	INSERT INTO runs(
		id, capture_id, source_url, status, stage, error, threshold,
		instances, accepted, queued, rejected, pending_review, warnings,
		score, verdict, document_hash, notes, sequence, started_at, completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	ON CONFLICT (id) DO UPDATE SET
		source_url = EXCLUDED.source_url,
		status = EXCLUDED.status,
		stage = EXCLUDED.stage,
		error = EXCLUDED.error,
		threshold = EXCLUDED.threshold,
		instances = EXCLUDED.instances,
		accepted = EXCLUDED.accepted,
		queued = EXCLUDED.queued,
		rejected = EXCLUDED.rejected,
		pending_review = EXCLUDED.pending_review,
		warnings = EXCLUDED.warnings,
		score = EXCLUDED.score,
		verdict = EXCLUDED.verdict,
		document_hash = EXCLUDED.document_hash,
		notes = EXCLUDED.notes,
		sequence = EXCLUDED.sequence,
		completed_at = EXCLUDED.completed_at`

// Save implements pipeline.Tracker.
func (r *repo) Save(ctx context.Context, run *pipeline.Result) error {
	notes, err := json.Marshal(run.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, upsertRun,
		run.RunID,
		run.CaptureID,
		run.SourceURL,
		run.Status,
		run.Stage,
		run.Error,
		run.Threshold,
		run.Instances,
		run.Accepted,
		run.Queued,
		run.Rejected,
		run.PendingReview,
		run.Warnings,
		run.Score,
		run.Verdict,
		run.DocumentHash,
		notes,
		run.Sequence,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

// SaveDecisions implements pipeline.Tracker. Decisions already stored,
// such as a resolution written by the review queue, are left untouched.
func (r *repo) SaveDecisions(ctx context.Context, decisions []component.MappingDecision) error {
	q := `
		INSERT INTO mapping_decisions(id, run_id, instance_id, type_id, confidence, rationale, outcome, supersedes, decided_by, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		for _, d := range decisions {
			if _, err := tx.ExecContext(ctx, q,
				d.ID, d.RunID, d.InstanceID, d.TypeID, d.Confidence,
				d.Rationale, d.Outcome, d.Supersedes, d.DecidedBy, d.DecidedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("insert decision %s: %w", d.ID, err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}
