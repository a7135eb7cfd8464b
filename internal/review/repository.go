package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/query"
	"github.com/justinbach/migration-pipeline/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "review_items", "ri").
	Project("id", "ID").
	Project("run_id", "RunID").
	Project("capture_id", "CaptureID").
	Project("instance", "Instance").
	Project("decision", "Decision").
	Project("candidates", "Candidates").
	Project("status", "Status").
	Project("claimed_by", "ClaimedBy").
	Project("claimed_at", "ClaimedAt").
	Project("resolution", "Resolution").
	Project("enqueued_at", "EnqueuedAt").
	Project("resolved_at", "ResolvedAt")

var defaultSort = []query.SortField{
	{Field: "EnqueuedAt"},
	{Field: "ID"},
}

const (
	columns   = "id, run_id, capture_id, instance, decision, candidates, status, claimed_by, claimed_at, resolution, enqueued_at, resolved_at"
	returning = "RETURNING " + columns
)

func scanItem(s repository.Scanner) (Item, error) {
	var (
		item                          Item
		instance, decision, candidate []byte
		resolution                    uuid.NullUUID
	)

	err := s.Scan(
		&item.ID,
		&item.RunID,
		&item.CaptureID,
		&instance,
		&decision,
		&candidate,
		&item.Status,
		&item.ClaimedBy,
		&item.ClaimedAt,
		&resolution,
		&item.EnqueuedAt,
		&item.ResolvedAt,
	)
	if err != nil {
		return item, err
	}

	if err := json.Unmarshal(instance, &item.Instance); err != nil {
		return item, fmt.Errorf("decode instance: %w", err)
	}
	if err := json.Unmarshal(decision, &item.Decision); err != nil {
		return item, fmt.Errorf("decode decision: %w", err)
	}
	if err := json.Unmarshal(candidate, &item.Candidates); err != nil {
		return item, fmt.Errorf("decode candidates: %w", err)
	}
	if resolution.Valid {
		item.Resolution = &resolution.UUID
	}

	return item, nil
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// NewRepository creates a Postgres-backed Queue. Claims use
// FOR UPDATE SKIP LOCKED so concurrent reviewers never receive the same item.
func NewRepository(db *sql.DB, logger *slog.Logger, pagination pagination.Config) Queue {
	return &repo{
		db:         db,
		logger:     logger.With("system", "review"),
		pagination: pagination,
	}
}

func (r *repo) Enqueue(ctx context.Context, item Item) (*Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}
	if item.Candidates == nil {
		item.Candidates = []string{}
	}

	instance, err := json.Marshal(item.Instance)
	if err != nil {
		return nil, fmt.Errorf("encode instance: %w", err)
	}
	decision, err := json.Marshal(item.Decision)
	if err != nil {
		return nil, fmt.Errorf("encode decision: %w", err)
	}
	candidates, err := json.Marshal(item.Candidates)
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}

	q := `
		INSERT INTO review_items(id, run_id, capture_id, instance_id, decision_id, instance, decision, candidates, status, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9) ` + returning

	args := []any{
		item.ID, item.RunID, item.CaptureID, item.Instance.ID, item.Decision.ID,
		instance, decision, candidates, item.EnqueuedAt,
	}

	out, err := repository.QueryOne(ctx, r.db, q, args, scanItem)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("review item enqueued",
		"id", out.ID,
		"run_id", out.RunID,
		"instance", out.Instance.Ordinal,
	)
	return &out, nil
}

func (r *repo) Claim(ctx context.Context, claimant string) (*Item, error) {
	q := `
		UPDATE review_items
		SET status = 'claimed', claimed_by = $1, claimed_at = now()
		WHERE id = (
			SELECT id FROM review_items
			WHERE status = 'pending'
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) ` + returning

	item, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Item, error) {
		return repository.QueryOne(ctx, tx, q, []any{claimant}, scanItem)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrEmpty, ErrDuplicate)
	}
	return &item, nil
}

func (r *repo) Release(ctx context.Context, id uuid.UUID, claimant string) (*Item, error) {
	q := `
		UPDATE review_items
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL
		WHERE id = $1 AND status = 'claimed' AND claimed_by = $2 ` + returning

	item, err := repository.QueryOne(ctx, r.db, q, []any{id, claimant}, scanItem)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.conflictOrMissing(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("release review item: %w", err)
	}
	return &item, nil
}

func (r *repo) Resolve(ctx context.Context, id uuid.UUID, res Resolution) (*Item, *component.MappingDecision, error) {
	if err := res.Validate(); err != nil {
		return nil, nil, err
	}

	type result struct {
		item     Item
		decision component.MappingDecision
	}

	out, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (result, error) {
		lock := "SELECT " + columns + " FROM review_items WHERE id = $1 FOR UPDATE"
		item, err := repository.QueryOne(ctx, tx, lock, []any{id}, scanItem)
		if err != nil {
			return result{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}
		if item.Status != StatusClaimed || item.ClaimedBy == nil || *item.ClaimedBy != res.DecidedBy {
			return result{}, fmt.Errorf("%w: %s (%s)", ErrConflict, id, item.Status)
		}

		now := time.Now().UTC()
		decision := Supersede(item, res, now)

		insert := `
			INSERT INTO mapping_decisions(id, run_id, instance_id, type_id, confidence, rationale, outcome, supersedes, decided_by, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.ExecContext(ctx, insert,
			decision.ID, decision.RunID, decision.InstanceID, decision.TypeID, decision.Confidence,
			decision.Rationale, decision.Outcome, decision.Supersedes, decision.DecidedBy, decision.DecidedAt,
		); err != nil {
			return result{}, fmt.Errorf("insert superseding decision: %w", err)
		}

		update := `
			UPDATE review_items
			SET status = 'resolved', resolution = $2, resolved_at = $3
			WHERE id = $1 ` + returning
		item, err = repository.QueryOne(ctx, tx, update, []any{id, decision.ID, now}, scanItem)
		if err != nil {
			return result{}, fmt.Errorf("resolve review item: %w", err)
		}

		return result{item: item, decision: decision}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	r.logger.Info("review item resolved",
		"id", id,
		"decision", out.decision.ID,
		"outcome", out.decision.Outcome,
		"decided_by", res.DecidedBy,
	)
	return &out.item, &out.decision, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Item, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	item, err := repository.QueryOne(ctx, r.db, q, args, scanItem)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Item], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort...).
		WhereEquals("RunID", filters.RunID).
		WhereEquals("CaptureID", filters.CaptureID).
		WhereEquals("Status", filters.Status)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count review items: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanItem)
	if err != nil {
		return nil, fmt.Errorf("query review items: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Outstanding(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM review_items WHERE run_id = $1 AND status <> 'resolved'",
		runID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding review items: %w", err)
	}
	return n, nil
}

func (r *repo) conflictOrMissing(ctx context.Context, id uuid.UUID) error {
	item, err := r.Find(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s (%s)", ErrConflict, id, item.Status)
}
