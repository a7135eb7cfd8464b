// Package component defines the entities that flow between pipeline stages:
// detected instances, mapping decisions, extracted content records and the
// assembled output document.
package component

import (
	"time"

	"github.com/google/uuid"
)

// Region is a bounding box in capture screenshot pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the region area in pixels.
func (r Region) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Contains reports whether o lies entirely within r.
func (r Region) Contains(o Region) bool {
	return o.X >= r.X && o.Y >= r.Y &&
		o.X+o.Width <= r.X+r.Width &&
		o.Y+o.Height <= r.Y+r.Height
}

// Clip returns r restricted to a width x height canvas.
func (r Region) Clip(width, height int) Region {
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.Width, width), min(r.Y+r.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return Region{}
	}
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Instance is a visually distinct region detected in a capture. Instances are
// never mutated; corrections are expressed as superseding MappingDecisions.
type Instance struct {
	ID          uuid.UUID `json:"id"`
	Ordinal     int       `json:"ordinal"`
	Region      Region    `json:"region"`
	Label       string    `json:"label"`
	Observation string    `json:"observation"`
	Anchor      string    `json:"anchor"`
	TextHint    string    `json:"text_hint"`
}

// Ref returns the reference carried by content records.
func (i Instance) Ref() InstanceRef {
	return InstanceRef{ID: i.ID, Ordinal: i.Ordinal, Region: i.Region}
}

// InstanceRef identifies the instance a record or decision belongs to.
type InstanceRef struct {
	ID      uuid.UUID `json:"id"`
	Ordinal int       `json:"ordinal"`
	Region  Region    `json:"region"`
}

// Outcome is the terminal or pending state of a mapping decision.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeQueued   Outcome = "queued-for-review"
	OutcomeRejected Outcome = "rejected"
)

// MappingDecision resolves (or queues, or rejects) one instance against the
// taxonomy. TypeID is nil when no entry was resolved. Supersedes links a
// human resolution to the decision it replaces.
type MappingDecision struct {
	ID         uuid.UUID  `json:"id"`
	RunID      uuid.UUID  `json:"run_id"`
	InstanceID uuid.UUID  `json:"instance_id"`
	TypeID     *string    `json:"type_id"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale"`
	Outcome    Outcome    `json:"outcome"`
	Supersedes *uuid.UUID `json:"supersedes"`
	DecidedBy  string     `json:"decided_by"`
	DecidedAt  time.Time  `json:"decided_at"`
}

// ImageRef is the coerced value of an image field. Fields are declared in
// key order so a record decoded into generic maps re-encodes identically.
type ImageRef struct {
	Alt string `json:"alt,omitempty"`
	Src string `json:"src"`
}

// Warning is a non-fatal extraction problem attached to a record.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ContentRecord holds the content extracted for one accepted instance.
// Field values are string, []string or ImageRef.
type ContentRecord struct {
	Instance InstanceRef    `json:"instance"`
	TypeID   string         `json:"type"`
	Fields   map[string]any `json:"fields"`
	Warnings []Warning      `json:"warnings"`
}

// Node is a record placed in the output document with its nested children.
type Node struct {
	Record   ContentRecord `json:"record"`
	Children []Node        `json:"children,omitempty"`
}

// OutputDocument is the assembled, canonically serialized result of a run.
// Hash covers the canonical encoding of the document with Hash empty.
type OutputDocument struct {
	RunID     uuid.UUID `json:"run_id"`
	CaptureID string    `json:"capture_id"`
	SourceURL string    `json:"source_url"`
	Nodes     []Node    `json:"nodes"`
	Hash      string    `json:"hash"`
}

// Records returns every record in document order, parents before children.
func (d *OutputDocument) Records() []ContentRecord {
	var out []ContentRecord
	var walk func([]Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			out = append(out, n.Record)
			walk(n.Children)
		}
	}
	walk(d.Nodes)
	return out
}
