package decisionlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/justinbach/migration-pipeline/pkg/pagination"
	"github.com/justinbach/migration-pipeline/pkg/query"
	"github.com/justinbach/migration-pipeline/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "decision_log", "d").
	Project("id", "ID").
	Project("run_id", "RunID").
	Project("sequence", "Sequence").
	Project("stage", "Stage").
	Project("action", "Action").
	Project("subject", "Subject").
	Project("input", "Input").
	Project("output", "Output").
	Project("rationale", "Rationale").
	Project("recorded_at", "RecordedAt")

var defaultSort = []query.SortField{
	{Field: "RecordedAt"},
	{Field: "RunID"},
	{Field: "Sequence"},
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var e Entry
	err := s.Scan(
		&e.ID,
		&e.RunID,
		&e.Sequence,
		&e.Stage,
		&e.Action,
		&e.Subject,
		&e.Input,
		&e.Output,
		&e.Rationale,
		&e.RecordedAt,
	)
	return e, err
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// NewRepository creates a Postgres-backed Store over the decision_log table.
func NewRepository(db *sql.DB, logger *slog.Logger, pagination pagination.Config) Store {
	return &repo{
		db:         db,
		logger:     logger.With("system", "decisionlog"),
		pagination: pagination,
	}
}

func (r *repo) Name() string { return "postgres" }

func (r *repo) Append(ctx context.Context, e Entry) error {
	q := `
		INSERT INTO decision_log(id, run_id, sequence, stage, action, subject, input, output, rationale, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if _, err := r.db.ExecContext(ctx, q,
		e.ID, e.RunID, e.Sequence, e.Stage, e.Action, e.Subject,
		e.Input, e.Output, e.Rationale, e.RecordedAt,
	); err != nil {
		return fmt.Errorf("insert decision log entry: %w", err)
	}
	return nil
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort...).
		WhereEquals("RunID", filters.RunID).
		WhereEquals("Subject", filters.Subject).
		WhereEquals("Stage", filters.Stage).
		WhereEquals("Action", filters.Action).
		WhereSearch(page.Search, "Rationale", "Output")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count decision log: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	entries, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("query decision log: %w", err)
	}

	result := pagination.NewPageResult(entries, total, page.Page, page.PageSize)
	return &result, nil
}
