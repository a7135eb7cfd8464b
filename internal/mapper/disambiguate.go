package mapper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/prompts"
	"github.com/justinbach/migration-pipeline/pkg/formatting"
	"github.com/justinbach/migration-pipeline/pkg/retry"
)

// ErrMalformedResponse marks a disambiguation reply that could not be parsed
// or named a type outside the taxonomy.
var ErrMalformedResponse = errors.New("malformed mapping response")

type mapReply struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// verdict is a parsed reply. An empty TypeID means no type fits.
type verdict struct {
	TypeID     string
	Confidence float64
	Rationale  string
}

func (m *Mapper) disambiguate(
	ctx context.Context,
	rec *decisionlog.Recorder,
	subject string,
	artifact *capture.Artifact,
	inst component.Instance,
	candidates []Candidate,
) (verdict, error) {
	system, err := prompts.Compose(ctx, m.prompts, prompts.StageMap)
	if err != nil {
		return verdict{}, err
	}

	shot, mediaType := crop(artifact, inst.Region)
	req := classifier.Request{
		Purpose:   classifier.PurposeMap,
		Image:     shot,
		MediaType: mediaType,
		System:    system,
		Prompt:    m.describe(inst, candidates),
	}

	retryable := func(err error) bool {
		return errors.Is(err, ErrMalformedResponse) ||
			errors.Is(err, classifier.ErrEmptyResponse) ||
			classifier.IsTransient(err)
	}

	var out verdict
	err = retry.Do(ctx, m.cfg.Retry, retryable, func(attempt int) error {
		rec.Record(ctx, decisionlog.StageMap, "disambiguate", subject, attempt, nil, "")

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CallTimeout)
		defer cancel()

		resp, err := m.classifier.Classify(callCtx, req)
		if resp != nil {
			rec.Record(ctx, decisionlog.StageMap, "response", subject, nil, resp.Content, "")
		}
		if err == nil {
			out, err = m.parse(resp.Content)
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, classifier.ErrTimeout) {
			err = errors.Join(classifier.ErrTimeout, err)
		}
		if err != nil {
			rec.Record(ctx, decisionlog.StageMap, "attempt-failed", subject, attempt, err, "")
		}
		return err
	})

	return out, err
}

func (m *Mapper) parse(content string) (verdict, error) {
	reply, err := formatting.Parse[mapReply](content)
	if err != nil {
		return verdict{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	rationale := strings.TrimSpace(reply.Rationale)
	if rationale == "" {
		rationale = "classifier gave no rationale"
	}

	typeID := strings.ToLower(strings.TrimSpace(reply.Type))
	switch typeID {
	case "", "none", "unknown", "null":
		return verdict{Rationale: rationale}, nil
	}

	if _, err := m.registry.Lookup(typeID); err != nil {
		return verdict{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return verdict{
		TypeID:     typeID,
		Confidence: clamp(reply.Confidence),
		Rationale:  rationale,
	}, nil
}

func (m *Mapper) describe(inst component.Instance, candidates []Candidate) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Detected label: %s\n", inst.Label)
	if inst.Observation != "" {
		fmt.Fprintf(&sb, "Description: %s\n", inst.Observation)
	}
	if inst.TextHint != "" {
		fmt.Fprintf(&sb, "Text excerpt: %s\n", inst.TextHint)
	}

	if len(candidates) > 0 {
		sb.WriteString("\nLexical candidates:\n")
		for _, c := range candidates {
			fmt.Fprintf(&sb, "- %s (%.2f)\n", c.TypeID, c.Score)
		}
	}

	sb.WriteString("\nTaxonomy types:\n")
	sb.WriteString(m.registry.Catalog())

	return sb.String()
}

// crop returns the instance region of the screenshot as PNG, or the whole
// screenshot when the region cannot be cut out.
func crop(a *capture.Artifact, r component.Region) ([]byte, string) {
	img, err := a.Image()
	if err != nil {
		return a.Screenshot, a.MediaType
	}

	b := img.Bounds()
	c := r.Clip(b.Dx(), b.Dy())
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if c.Empty() || !ok {
		return a.Screenshot, a.MediaType
	}

	rect := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Add(b.Min)
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return a.Screenshot, a.MediaType
	}
	return buf.Bytes(), "image/png"
}
