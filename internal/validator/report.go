package validator

import (
	"image"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
)

// Verdict is the outcome of a validation.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// KindSection marks a discrepancy covering a horizontal page section.
const KindSection = "section-divergence"

// PixelStats summarizes per-channel absolute differences.
type PixelStats struct {
	MeanDiff        float64 `json:"mean_diff"`
	MaxDiff         int     `json:"max_diff"`
	WithinTolerance float64 `json:"within_tolerance_pct"`
	Tolerance       int     `json:"tolerance"`
}

// Section is the similarity of one horizontal band of the page.
type Section struct {
	Index          int              `json:"index"`
	Region         component.Region `json:"region"`
	Score          float64          `json:"score"`
	Interpretation string           `json:"interpretation"`
}

// Discrepancy is a localized divergence above the noise floor. Severity is
// the section dissimilarity, 1 - score.
type Discrepancy struct {
	Region   component.Region `json:"region"`
	Severity float64          `json:"severity"`
	Label    string           `json:"label"`
	Kind     string           `json:"kind"`
	Detail   string           `json:"detail"`
}

// Report is the result of comparing a rendered document to its capture.
// Discrepancies are ordered by descending severity; Worst lists section
// indexes from least to most similar.
type Report struct {
	RunID          uuid.UUID     `json:"run_id"`
	CaptureID      string        `json:"capture_id"`
	DocumentHash   string        `json:"document_hash"`
	Renderer       string        `json:"renderer"`
	Compared       Size          `json:"compared"`
	Score          float64       `json:"score"`
	Interpretation string        `json:"interpretation"`
	Pixels         PixelStats    `json:"pixels"`
	Sections       []Section     `json:"sections"`
	Worst          []int         `json:"worst_sections"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
	Threshold      float64       `json:"threshold"`
	Ceiling        float64       `json:"severity_ceiling"`
	NoiseFloor     float64       `json:"noise_floor"`
	Verdict        Verdict       `json:"verdict"`
}

// Size is the compared area in source pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Decide computes the verdict: pass iff score >= threshold and no
// discrepancy is more severe than the ceiling.
func (r *Report) Decide() Verdict {
	if r.Score < r.Threshold {
		return VerdictFail
	}
	for _, d := range r.Discrepancies {
		if d.Severity > r.Ceiling {
			return VerdictFail
		}
	}
	return VerdictPass
}

// Interpret describes a similarity score.
func Interpret(score float64) string {
	switch {
	case score >= 0.95:
		return "excellent"
	case score >= 0.90:
		return "very good"
	case score >= 0.80:
		return "good"
	case score >= 0.70:
		return "fair"
	case score >= 0.50:
		return "poor"
	default:
		return "very poor"
	}
}

// SeverityLabel names a discrepancy severity.
func SeverityLabel(severity float64) string {
	switch {
	case severity >= 0.50:
		return "critical"
	case severity >= 0.30:
		return "major"
	case severity >= 0.15:
		return "moderate"
	default:
		return "minor"
	}
}

func regionOf(r image.Rectangle) component.Region {
	return component.Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}
