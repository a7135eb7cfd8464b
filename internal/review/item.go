// Package review holds mapping decisions that fell below the confidence
// threshold until a reviewer resolves them. The queue is shared across runs:
// items are claimed in enqueue order and each item has at most one claimant.
package review

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
)

// Status is the lifecycle state of a review item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusClaimed  Status = "claimed"
	StatusResolved Status = "resolved"
)

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusClaimed, StatusResolved:
		return st, nil
	default:
		return "", fmt.Errorf("unknown review status %q", s)
	}
}

// Item is one queued mapping decision. Decision is the queued decision as
// made by the mapper; Resolution is the id of the decision that superseded it.
type Item struct {
	ID         uuid.UUID                 `json:"id"`
	RunID      uuid.UUID                 `json:"run_id"`
	CaptureID  string                    `json:"capture_id"`
	Instance   component.Instance        `json:"instance"`
	Decision   component.MappingDecision `json:"decision"`
	Candidates []string                  `json:"candidates"`
	Status     Status                    `json:"status"`
	ClaimedBy  *string                   `json:"claimed_by"`
	ClaimedAt  *time.Time                `json:"claimed_at"`
	Resolution *uuid.UUID                `json:"resolution"`
	EnqueuedAt time.Time                 `json:"enqueued_at"`
	ResolvedAt *time.Time                `json:"resolved_at"`
}

// Resolution is a reviewer's answer for a claimed item. A nil TypeID rejects
// the instance.
type Resolution struct {
	TypeID    *string `json:"type_id"`
	Rationale string  `json:"rationale"`
	DecidedBy string  `json:"decided_by"`
}

// Validate checks that the resolution names its reviewer.
func (r Resolution) Validate() error {
	if strings.TrimSpace(r.DecidedBy) == "" {
		return fmt.Errorf("%w: decided_by is required", ErrInvalidResolution)
	}
	if r.TypeID != nil && strings.TrimSpace(*r.TypeID) == "" {
		return fmt.Errorf("%w: type_id must be null or non-empty", ErrInvalidResolution)
	}
	return nil
}

// Supersede builds the decision that replaces item's queued decision.
func Supersede(item Item, res Resolution, now time.Time) component.MappingDecision {
	outcome := component.OutcomeAccepted
	if res.TypeID == nil {
		outcome = component.OutcomeRejected
	}

	rationale := res.Rationale
	if rationale == "" {
		rationale = "resolved by reviewer"
	}

	prior := item.Decision.ID
	return component.MappingDecision{
		ID:         uuid.New(),
		RunID:      item.RunID,
		InstanceID: item.Instance.ID,
		TypeID:     res.TypeID,
		Confidence: 1,
		Rationale:  rationale,
		Outcome:    outcome,
		Supersedes: &prior,
		DecidedBy:  res.DecidedBy,
		DecidedAt:  now,
	}
}

// Filters narrows item queries. Nil fields are ignored.
type Filters struct {
	RunID     *uuid.UUID `json:"run_id,omitempty"`
	CaptureID *string    `json:"capture_id,omitempty"`
	Status    *Status    `json:"status,omitempty"`
}

// Match reports whether item satisfies every set filter.
func (f Filters) Match(item Item) bool {
	if f.RunID != nil && item.RunID != *f.RunID {
		return false
	}
	if f.CaptureID != nil && item.CaptureID != *f.CaptureID {
		return false
	}
	if f.Status != nil && item.Status != *f.Status {
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

	if v := values.Get("capture_id"); v != "" {
		f.CaptureID = &v
	}

	if v := values.Get("status"); v != "" {
		if st, err := ParseStatus(v); err == nil {
			f.Status = &st
		}
	}

	return f
}
