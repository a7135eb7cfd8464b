// Package mapper resolves detected component instances to taxonomy types.
// A deterministic lexical pass runs first; the classification capability is
// consulted only when that pass finds nothing or cannot separate its top two
// candidates. Decisions below the confidence threshold go to the review queue.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/prompts"
	"github.com/justinbach/migration-pipeline/internal/review"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/pkg/retry"
)

// ErrAmbiguous marks an instance whose top lexical candidates are within the
// configured margin. It is recorded in the decision log and never returned.
var ErrAmbiguous = errors.New("mapping ambiguity")

// Decision makers.
const (
	DecidedByLexical    = "mapper/lexical"
	DecidedByClassifier = "mapper/classifier"
)

// Config tunes decision thresholds and classifier use.
type Config struct {
	Threshold   float64
	Margin      float64
	Workers     int
	CallTimeout time.Duration
	Retry       retry.Policy
}

// DefaultConfig returns a 0.70 threshold, a 0.10 ambiguity margin and four
// concurrent mappings.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.70,
		Margin:      0.10,
		Workers:     4,
		CallTimeout: time.Minute,
		Retry:       retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 15 * time.Second, Multiplier: 2},
	}
}

// Mapper produces one MappingDecision per instance.
type Mapper struct {
	registry   *taxonomy.Registry
	lexicon    *lexicon
	classifier classifier.Classifier
	prompts    prompts.Source
	queue      review.Queue
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Mapper. The classifier and prompt source may be nil; without
// a classifier absent or ambiguous lexical matches are never disambiguated.
func New(
	registry *taxonomy.Registry,
	c classifier.Classifier,
	src prompts.Source,
	queue review.Queue,
	cfg Config,
	logger *slog.Logger,
) *Mapper {
	if src == nil {
		src = prompts.Defaults()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Mapper{
		registry:   registry,
		lexicon:    newLexicon(registry.Entries()),
		classifier: c,
		prompts:    src,
		queue:      queue,
		cfg:        cfg,
		logger:     logger.With("system", "mapper"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DecisionID derives the mapper's decision identifier for an instance.
func DecisionID(instanceID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(instanceID, []byte("mapping"))
}

// Candidates returns the lexical candidates for inst, best first.
func (m *Mapper) Candidates(inst component.Instance) []Candidate {
	return m.lexicon.score(inst)
}

// Map decides inst. The only errors are cancellation before the decision is
// made and a failure to enqueue a queued-for-review decision; the decision is
// still returned in the latter case.
func (m *Mapper) Map(ctx context.Context, rec *decisionlog.Recorder, artifact *capture.Artifact, inst component.Instance) (component.MappingDecision, error) {
	if err := ctx.Err(); err != nil {
		return component.MappingDecision{}, err
	}

	subject := fmt.Sprintf("%s#%d", artifact.ID, inst.Ordinal)
	candidates := m.lexicon.score(inst)
	rec.Record(ctx, decisionlog.StageMap, "lexical", subject, inst.Label, candidates,
		fmt.Sprintf("%d lexical candidates", len(candidates)))

	d := component.MappingDecision{
		ID:         DecisionID(inst.ID),
		RunID:      rec.RunID(),
		InstanceID: inst.ID,
		DecidedBy:  DecidedByLexical,
	}

	ambiguous := len(candidates) > 1 && candidates[0].Score-candidates[1].Score < m.cfg.Margin
	if ambiguous {
		rec.Record(ctx, decisionlog.StageMap, "ambiguous", subject, nil, candidates[:2],
			fmt.Sprintf("%v: %s %.2f vs %s %.2f within margin %.2f", ErrAmbiguous,
				candidates[0].TypeID, candidates[0].Score, candidates[1].TypeID, candidates[1].Score, m.cfg.Margin))
	}

	switch {
	case len(candidates) > 0 && !ambiguous:
		top := candidates[0]
		d.TypeID = &top.TypeID
		d.Confidence = top.Score
		d.Rationale = fmt.Sprintf("lexical match on %q", top.Terms)
		if top.Exact {
			d.Rationale = fmt.Sprintf("label %q matches taxonomy type %s", inst.Label, top.TypeID)
		}

	case m.classifier != nil:
		reply, err := m.disambiguate(ctx, rec, subject, artifact, inst, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return component.MappingDecision{}, ctx.Err()
			}
			m.fallback(&d, candidates, fmt.Sprintf("disambiguation failed: %v", err))
			break
		}
		if reply.TypeID == "" {
			if len(candidates) > 0 {
				m.fallback(&d, candidates, "classifier found no fitting type: "+reply.Rationale)
			} else {
				d.Rationale = "no lexical match and classifier found no fitting type: " + reply.Rationale
				d.Outcome = component.OutcomeRejected
			}
			break
		}
		d.TypeID = &reply.TypeID
		d.Confidence = reply.Confidence
		d.Rationale = reply.Rationale
		d.DecidedBy = DecidedByClassifier

	case len(candidates) > 0:
		m.fallback(&d, candidates, "no classifier configured")

	default:
		d.Rationale = "no lexical match and no classifier configured"
		d.Outcome = component.OutcomeRejected
	}

	d.Confidence = clamp(d.Confidence)
	if d.Outcome == "" {
		if d.TypeID != nil && d.Confidence >= m.cfg.Threshold {
			d.Outcome = component.OutcomeAccepted
		} else {
			d.Outcome = component.OutcomeQueued
		}
	}
	d.DecidedAt = m.now()

	rec.Record(ctx, decisionlog.StageMap, "decision", subject, nil, d, d.Rationale)

	if d.Outcome != component.OutcomeQueued {
		return d, nil
	}
	return d, m.enqueue(ctx, rec, subject, artifact, inst, d, candidates)
}

// fallback settles on the best lexical candidate. When the top two are
// within the margin, confidence is scaled by gap/margin; an exact tie scores
// zero. With no candidates the type stays nil and the decision is queued.
func (m *Mapper) fallback(d *component.MappingDecision, candidates []Candidate, reason string) {
	if len(candidates) == 0 {
		d.Rationale = reason + "; queued without a type"
		return
	}

	top := candidates[0]
	confidence := top.Score
	if len(candidates) > 1 && m.cfg.Margin > 0 {
		if gap := top.Score - candidates[1].Score; gap < m.cfg.Margin {
			confidence *= gap / m.cfg.Margin
		}
	}

	d.TypeID = &top.TypeID
	d.Confidence = round(confidence)
	d.Rationale = fmt.Sprintf("%s; best lexical candidate %s", reason, top.TypeID)
}

func (m *Mapper) enqueue(
	ctx context.Context,
	rec *decisionlog.Recorder,
	subject string,
	artifact *capture.Artifact,
	inst component.Instance,
	d component.MappingDecision,
	candidates []Candidate,
) error {
	if m.queue == nil {
		return nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.TypeID
	}

	item, err := m.queue.Enqueue(context.WithoutCancel(ctx), review.Item{
		RunID:      d.RunID,
		CaptureID:  artifact.ID,
		Instance:   inst,
		Decision:   d,
		Candidates: ids,
	})
	if errors.Is(err, review.ErrDuplicate) {
		return nil
	}
	if err != nil {
		rec.Record(ctx, decisionlog.StageReview, "enqueue-failed", subject, nil, err, "")
		return fmt.Errorf("enqueue %s: %w", subject, err)
	}

	rec.Record(ctx, decisionlog.StageReview, "enqueue", subject, nil, item.ID,
		fmt.Sprintf("confidence %.2f below threshold %.2f", d.Confidence, m.cfg.Threshold))
	return nil
}

// MapAll maps instances concurrently and returns decisions in input order.
func (m *Mapper) MapAll(ctx context.Context, rec *decisionlog.Recorder, artifact *capture.Artifact, instances []component.Instance) ([]component.MappingDecision, error) {
	decisions := make([]component.MappingDecision, len(instances))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)

	for i, inst := range instances {
		g.Go(func() error {
			d, err := m.Map(gctx, rec, artifact, inst)
			if err != nil {
				return err
			}
			decisions[i] = d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var accepted, queued, rejected int
	for _, d := range decisions {
		switch d.Outcome {
		case component.OutcomeAccepted:
			accepted++
		case component.OutcomeQueued:
			queued++
		case component.OutcomeRejected:
			rejected++
		}
	}
	m.logger.InfoContext(ctx, "mapping complete",
		"capture", artifact.ID,
		"run_id", rec.RunID(),
		"accepted", accepted,
		"queued", queued,
		"rejected", rejected,
	)

	return decisions, nil
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
