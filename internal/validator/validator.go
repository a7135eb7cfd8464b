// Package validator scores how faithfully an output document reproduces the
// captured page. A renderer turns the document back into an image; the
// comparison against the capture screenshot is deterministic.
package validator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
)

// Config holds validation thresholds.
type Config struct {
	Threshold  float64
	Ceiling    float64
	NoiseFloor float64
	Sections   int
	Tolerance  int
	Window     int
}

// DefaultConfig returns the standard validation thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:  0.80,
		Ceiling:    0.50,
		NoiseFloor: 0.05,
		Sections:   5,
		Tolerance:  30,
		Window:     8,
	}
}

// Validator renders output documents and compares them to their capture.
type Validator struct {
	renderer Renderer
	cfg      Config
	logger   *slog.Logger
}

// New creates a Validator. A nil renderer uses CoverageRenderer.
func New(renderer Renderer, cfg Config, logger *slog.Logger) *Validator {
	if renderer == nil {
		renderer = CoverageRenderer{}
	}
	return &Validator{
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.With("system", "validator"),
	}
}

// Validate renders doc and scores it against the artifact screenshot. A
// threshold of zero or less uses the configured threshold.
func (v *Validator) Validate(
	ctx context.Context,
	rec *decisionlog.Recorder,
	artifact *capture.Artifact,
	doc *component.OutputDocument,
	threshold float64,
) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = v.cfg.Threshold
	}

	source, err := artifact.Image()
	if err != nil {
		return nil, fmt.Errorf("load screenshot: %w", err)
	}

	rendered, err := v.renderer.Render(ctx, artifact, doc)
	if err != nil {
		rec.Record(ctx, decisionlog.StageValidate, "render-failed", doc.CaptureID,
			v.renderer.Name(), err.Error(), "renderer returned an error")
		return nil, err
	}

	cmp, err := Compare(source, rendered, Options{
		Window:     v.cfg.Window,
		Sections:   v.cfg.Sections,
		Tolerance:  v.cfg.Tolerance,
		NoiseFloor: v.cfg.NoiseFloor,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:          doc.RunID,
		CaptureID:      doc.CaptureID,
		DocumentHash:   doc.Hash,
		Renderer:       v.renderer.Name(),
		Compared:       cmp.Compared,
		Score:          cmp.Score,
		Interpretation: Interpret(cmp.Score),
		Pixels:         cmp.Pixels,
		Sections:       cmp.Sections,
		Worst:          cmp.Worst(),
		Discrepancies:  cmp.Discrepancies,
		Threshold:      threshold,
		Ceiling:        v.cfg.Ceiling,
		NoiseFloor:     v.cfg.NoiseFloor,
	}
	if report.Discrepancies == nil {
		report.Discrepancies = []Discrepancy{}
	}
	report.Verdict = report.Decide()

	rec.Record(ctx, decisionlog.StageValidate, "verdict", doc.CaptureID,
		map[string]any{"renderer": report.Renderer, "threshold": threshold, "ceiling": report.Ceiling},
		map[string]any{"score": report.Score, "verdict": report.Verdict, "discrepancies": len(report.Discrepancies)},
		fmt.Sprintf("similarity %.3f (%s)", report.Score, report.Interpretation),
	)

	v.logger.InfoContext(ctx, "document validated",
		"run_id", doc.RunID,
		"score", report.Score,
		"verdict", report.Verdict,
		"discrepancies", len(report.Discrepancies),
	)

	return report, nil
}
