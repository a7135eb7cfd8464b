// Package segmenter detects visually distinct component regions in a
// captured page by asking the classification capability to enumerate them.
package segmenter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/prompts"
	"github.com/justinbach/migration-pipeline/pkg/retry"
)

var (
	// ErrSegmentation is fatal for the run: no instances are produced.
	ErrSegmentation = errors.New("segmentation failed")
	// ErrMalformedResponse marks a reply that could not be parsed or failed validation.
	ErrMalformedResponse = errors.New("malformed segmentation response")
)

// Config sets the retry budgets and request shaping. Malformed replies and
// transient failures (timeouts, rate limits) draw from separate budgets.
type Config struct {
	Malformed   retry.Policy
	Transient   retry.Policy
	CallTimeout time.Duration
	HTMLLimit   int
}

// DefaultConfig returns three malformed attempts, four transient attempts,
// a two minute call timeout and a 24KiB HTML excerpt.
func DefaultConfig() Config {
	return Config{
		Malformed:   retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2},
		Transient:   retry.Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, Multiplier: 2},
		CallTimeout: 2 * time.Minute,
		HTMLLimit:   24 << 10,
	}
}

// Segmenter turns a capture into ordered component instances.
type Segmenter struct {
	classifier classifier.Classifier
	prompts    prompts.Source
	cfg        Config
	logger     *slog.Logger
}

// New creates a Segmenter. A nil prompt source uses the built-in instructions.
func New(c classifier.Classifier, src prompts.Source, cfg Config, logger *slog.Logger) *Segmenter {
	if src == nil {
		src = prompts.Defaults()
	}
	return &Segmenter{
		classifier: c,
		prompts:    src,
		cfg:        cfg,
		logger:     logger.With("system", "segmenter"),
	}
}

type callSummary struct {
	Attempt     int    `json:"attempt"`
	MediaType   string `json:"media_type"`
	ImageBytes  int    `json:"image_bytes"`
	PromptBytes int    `json:"prompt_bytes"`
}

// Segment returns the instances detected in artifact. Each classifier call,
// raw reply, retry and the final result are written to rec. On exhaustion of
// either retry budget it returns ErrSegmentation and no instances.
func (s *Segmenter) Segment(ctx context.Context, rec *decisionlog.Recorder, artifact *capture.Artifact) ([]component.Instance, error) {
	if s.classifier == nil {
		return nil, fmt.Errorf("%w: %s: no classifier configured", ErrSegmentation, artifact.ID)
	}

	system, err := prompts.Compose(ctx, s.prompts, prompts.StageSegment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSegmentation, artifact.ID, err)
	}

	req := classifier.Request{
		Purpose:   classifier.PurposeSegment,
		Image:     artifact.Screenshot,
		MediaType: artifact.MediaType,
		System:    system,
		Prompt:    s.pageContext(artifact),
	}

	var malformed, transient int

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			rec.Record(ctx, decisionlog.StageSegment, "abort", artifact.ID, nil, err, "run cancelled")
			return nil, fmt.Errorf("%w: %s: %w", ErrSegmentation, artifact.ID, err)
		}

		rec.Record(ctx, decisionlog.StageSegment, "call", artifact.ID, callSummary{
			Attempt:     attempt,
			MediaType:   req.MediaType,
			ImageBytes:  len(req.Image),
			PromptBytes: len(req.System) + len(req.Prompt),
		}, nil, "")

		instances, err := s.attempt(ctx, rec, artifact, req)
		if err == nil {
			rec.Record(ctx, decisionlog.StageSegment, "result", artifact.ID, nil, instances,
				fmt.Sprintf("%d regions detected after %d attempts", len(instances), attempt))
			s.logger.InfoContext(ctx, "segmentation complete",
				"capture", artifact.ID,
				"run_id", rec.RunID(),
				"instances", len(instances),
				"attempts", attempt,
			)
			return instances, nil
		}

		var (
			policy retry.Policy
			used   int
			kind   string
		)
		switch {
		case errors.Is(err, ErrMalformedResponse), errors.Is(err, classifier.ErrEmptyResponse):
			malformed++
			policy, used, kind = s.cfg.Malformed, malformed, "malformed"
		case isTransient(err):
			transient++
			policy, used, kind = s.cfg.Transient, transient, "transient"
		default:
			rec.Record(ctx, decisionlog.StageSegment, "fail", artifact.ID, nil, err, "non-retryable classifier error")
			return nil, fmt.Errorf("%w: %s: %w", ErrSegmentation, artifact.ID, err)
		}

		if used >= policy.Attempts() {
			rec.Record(ctx, decisionlog.StageSegment, "fail", artifact.ID, nil, err,
				fmt.Sprintf("%s retry budget of %d exhausted", kind, policy.Attempts()))
			return nil, fmt.Errorf("%w: %s: %s budget exhausted: %w", ErrSegmentation, artifact.ID, kind, err)
		}

		delay := policy.Backoff(used)
		rec.Record(ctx, decisionlog.StageSegment, "retry", artifact.ID, nil, err,
			fmt.Sprintf("%s attempt %d of %d failed; retrying in %s", kind, used, policy.Attempts(), delay))

		if err := retry.Wait(ctx, delay); err != nil {
			rec.Record(ctx, decisionlog.StageSegment, "abort", artifact.ID, nil, err, "run cancelled during backoff")
			return nil, fmt.Errorf("%w: %s: %w", ErrSegmentation, artifact.ID, err)
		}
	}
}

// attempt performs one call on a context detached from run cancellation and
// bounded by the call timeout.
func (s *Segmenter) attempt(ctx context.Context, rec *decisionlog.Recorder, artifact *capture.Artifact, req classifier.Request) ([]component.Instance, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CallTimeout)
	defer cancel()

	resp, err := s.classifier.Classify(callCtx, req)
	if resp != nil {
		rec.Record(ctx, decisionlog.StageSegment, "response", artifact.ID, nil, resp.Content,
			fmt.Sprintf("model %s, %d output tokens", resp.Model, resp.OutputTokens))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, classifier.ErrTimeout) {
			err = errors.Join(classifier.ErrTimeout, err)
		}
		return nil, err
	}

	return parse(rec.RunID(), resp.Content)
}

func isTransient(err error) bool {
	return classifier.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Segmenter) pageContext(a *capture.Artifact) string {
	var sb strings.Builder
	m := a.Metadata

	fmt.Fprintf(&sb, "Page URL: %s\n", m.URL)
	if m.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", m.Title)
	}
	fmt.Fprintf(&sb, "Viewport: %dx%d\n", m.Viewport.Width, m.Viewport.Height)
	if m.Metrics.ScrollHeight > 0 {
		fmt.Fprintf(&sb, "Full page size: %dx%d\n", m.Metrics.ScrollWidth, m.Metrics.ScrollHeight)
	}

	html := a.HTML
	truncated := false
	if s.cfg.HTMLLimit > 0 && len(html) > s.cfg.HTMLLimit {
		cut := s.cfg.HTMLLimit
		for cut > 0 && !utf8.RuneStart(html[cut]) {
			cut--
		}
		html, truncated = html[:cut], true
	}

	sb.WriteString("\nHTML")
	if truncated {
		fmt.Fprintf(&sb, " (first %d bytes of %d)", len(html), len(a.HTML))
	}
	sb.WriteString(":\n")
	sb.WriteString(html)
	sb.WriteString("\n\nIdentify every distinct component in the screenshot.")

	return sb.String()
}

// InstanceID derives the identifier of the instance at ordinal within a run.
func InstanceID(runID uuid.UUID, ordinal int) uuid.UUID {
	return uuid.NewSHA1(runID, fmt.Appendf(nil, "instance/%d", ordinal))
}

func sortByPosition(instances []component.Instance) {
	slices.SortStableFunc(instances, func(a, b component.Instance) int {
		if c := cmp.Compare(a.Region.Y, b.Region.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.Region.X, b.Region.X)
	})
}
