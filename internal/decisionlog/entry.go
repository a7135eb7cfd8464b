// Package decisionlog records every choice the pipeline makes so a run can be
// audited after the fact. Entries are append-only and sequenced per run.
package decisionlog

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Stage names the pipeline stage that produced an entry.
type Stage string

// Pipeline stages.
const (
	StagePipeline Stage = "pipeline"
	StageSegment  Stage = "segment"
	StageMap      Stage = "map"
	StageReview   Stage = "review"
	StageExtract  Stage = "extract"
	StageAssemble Stage = "assemble"
	StageValidate Stage = "validate"
)

// Entry is one immutable decision log record. Input and Output are
// summaries, bounded by MaxSummary.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	Sequence   int64     `json:"sequence"`
	Stage      Stage     `json:"stage"`
	Action     string    `json:"action"`
	Subject    string    `json:"subject"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Rationale  string    `json:"rationale"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Filters narrows entry queries. Nil fields are ignored.
type Filters struct {
	RunID   *uuid.UUID `json:"run_id,omitempty"`
	Subject *string    `json:"subject,omitempty"`
	Stage   *Stage     `json:"stage,omitempty"`
	Action  *string    `json:"action,omitempty"`
}

// Match reports whether e satisfies every set filter.
func (f Filters) Match(e Entry) bool {
	if f.RunID != nil && e.RunID != *f.RunID {
		return false
	}
	if f.Subject != nil && e.Subject != *f.Subject {
		return false
	}
	if f.Stage != nil && e.Stage != *f.Stage {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	return true
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("run_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.RunID = &id
		}
	}
	if v := values.Get("subject"); v != "" {
		f.Subject = &v
	}
	if v := values.Get("stage"); v != "" {
		s := Stage(v)
		f.Stage = &s
	}
	if v := values.Get("action"); v != "" {
		f.Action = &v
	}

	return f
}
