// Package pipeline runs a capture through segmentation, mapping, extraction,
// assembly and validation, and resumes runs once review items are resolved.
// Stages execute in strict order; cancellation is checked between stages.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/validator"
)

// Status is the terminal state of a run.
type Status string

// Run statuses. StatusRunning is only observed while a run is in flight.
const (
	StatusRunning Status = "running"
	StatusPass    Status = "completed-pass"
	StatusFail    Status = "completed-fail"
	StatusReview  Status = "completed-with-review-items"
	StatusAborted Status = "aborted-with-error"
)

// Statuses returns every status in precedence order.
func Statuses() []Status {
	return []Status{StatusAborted, StatusFail, StatusReview, StatusPass, StatusRunning}
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Decide applies status precedence: an error aborts the run, then a failed
// verdict, then outstanding review items, else pass.
func Decide(err error, verdict validator.Verdict, pending int) Status {
	switch {
	case err != nil:
		return StatusAborted
	case verdict != validator.VerdictPass:
		return StatusFail
	case pending > 0:
		return StatusReview
	default:
		return StatusPass
	}
}

// Stage names used in results, metrics and logs.
const (
	StageLoad     = "load"
	StageSegment  = "segment"
	StageMap      = "map"
	StageExtract  = "extract"
	StageAssemble = "assemble"
	StageValidate = "validate"
	StagePublish  = "publish"
)

// Options tune a single run. A zero Threshold uses the validator default.
type Options struct {
	Threshold float64 `json:"threshold"`
}

// Result summarizes a run. It is persisted as the run manifest and carries
// the run id as the reference into the decision log.
type Result struct {
	RunID         uuid.UUID         `json:"run_id"`
	CaptureID     string            `json:"capture_id"`
	SourceURL     string            `json:"source_url"`
	Status        Status            `json:"status"`
	Stage         string            `json:"stage"`
	Error         string            `json:"error,omitempty"`
	Threshold     float64           `json:"threshold"`
	Instances     int               `json:"instances"`
	Accepted      int               `json:"accepted"`
	Queued        int               `json:"queued"`
	Rejected      int               `json:"rejected"`
	PendingReview int               `json:"pending_review"`
	Warnings      int               `json:"warnings"`
	Score         *float64          `json:"score"`
	Verdict       validator.Verdict `json:"verdict,omitempty"`
	DocumentHash  string            `json:"document_hash,omitempty"`
	Notes         []string          `json:"notes"`
	Sequence      int64             `json:"sequence"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
}

func (r *Result) tally(decisions []component.MappingDecision) {
	r.Accepted, r.Queued, r.Rejected = 0, 0, 0
	for _, d := range decisions {
		switch d.Outcome {
		case component.OutcomeAccepted:
			r.Accepted++
		case component.OutcomeQueued:
			r.Queued++
		case component.OutcomeRejected:
			r.Rejected++
		}
	}
}
