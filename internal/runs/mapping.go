package runs

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/pipeline"
	"github.com/justinbach/migration-pipeline/pkg/query"
	"github.com/justinbach/migration-pipeline/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "runs", "r").
	Project("id", "RunID").
	Project("capture_id", "CaptureID").
	Project("source_url", "SourceURL").
	Project("status", "Status").
	Project("stage", "Stage").
	Project("error", "Error").
	Project("threshold", "Threshold").
	Project("instances", "Instances").
	Project("accepted", "Accepted").
	Project("queued", "Queued").
	Project("rejected", "Rejected").
	Project("pending_review", "PendingReview").
	Project("warnings", "Warnings").
	Project("score", "Score").
	Project("verdict", "Verdict").
	Project("document_hash", "DocumentHash").
	Project("notes", "Notes").
	Project("sequence", "Sequence").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt")

var defaultSort = query.SortField{
	Field:      "StartedAt",
	Descending: true,
}

var decisionProjection = query.
	NewProjectionMap("public", "mapping_decisions", "md").
	Project("id", "ID").
	Project("run_id", "RunID").
	Project("instance_id", "InstanceID").
	Project("type_id", "TypeID").
	Project("confidence", "Confidence").
	Project("rationale", "Rationale").
	Project("outcome", "Outcome").
	Project("supersedes", "Supersedes").
	Project("decided_by", "DecidedBy").
	Project("decided_at", "DecidedAt")

var decisionSort = []query.SortField{
	{Field: "DecidedAt"},
	{Field: "ID"},
}

// Filters contains optional filtering criteria for run queries.
// Status, CaptureID and Verdict use exact matching.
type Filters struct {
	Status    *string `json:"status,omitempty"`
	CaptureID *string `json:"capture_id,omitempty"`
	Verdict   *string `json:"verdict,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("CaptureID", f.CaptureID).
		WhereEquals("Verdict", f.Verdict)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Unknown statuses are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		if _, ok := pipeline.ParseStatus(s); ok {
			f.Status = &s
		}
	}

	if c := values.Get("capture_id"); c != "" {
		f.CaptureID = &c
	}

	if v := values.Get("verdict"); v != "" {
		f.Verdict = &v
	}

	return f
}

// DecisionFilters narrows mapping decision queries.
type DecisionFilters struct {
	RunID      *uuid.UUID `json:"run_id,omitempty"`
	InstanceID *uuid.UUID `json:"instance_id,omitempty"`
	Outcome    *string    `json:"outcome,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f DecisionFilters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("RunID", f.RunID).
		WhereEquals("InstanceID", f.InstanceID).
		WhereEquals("Outcome", f.Outcome)
}

// DecisionFiltersFromQuery extracts decision filters from URL query parameters.
func DecisionFiltersFromQuery(values url.Values) DecisionFilters {
	var f DecisionFilters

	if v := values.Get("instance_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.InstanceID = &id
		}
	}

	if o := values.Get("outcome"); o != "" {
		f.Outcome = &o
	}

	return f
}

func scanRun(s repository.Scanner) (pipeline.Result, error) {
	var (
		r     pipeline.Result
		notes []byte
	)
	err := s.Scan(
		&r.RunID,
		&r.CaptureID,
		&r.SourceURL,
		&r.Status,
		&r.Stage,
		&r.Error,
		&r.Threshold,
		&r.Instances,
		&r.Accepted,
		&r.Queued,
		&r.Rejected,
		&r.PendingReview,
		&r.Warnings,
		&r.Score,
		&r.Verdict,
		&r.DocumentHash,
		&notes,
		&r.Sequence,
		&r.StartedAt,
		&r.CompletedAt,
	)
	if err != nil {
		return r, err
	}

	r.Notes = []string{}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &r.Notes); err != nil {
			return r, fmt.Errorf("decode notes: %w", err)
		}
	}
	return r, nil
}

func scanDecision(s repository.Scanner) (component.MappingDecision, error) {
	var (
		d          component.MappingDecision
		supersedes uuid.NullUUID
	)
	err := s.Scan(
		&d.ID,
		&d.RunID,
		&d.InstanceID,
		&d.TypeID,
		&d.Confidence,
		&d.Rationale,
		&d.Outcome,
		&supersedes,
		&d.DecidedBy,
		&d.DecidedAt,
	)
	if supersedes.Valid {
		d.Supersedes = &supersedes.UUID
	}
	return d, err
}
