package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/assembler"
	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/extractor"
	"github.com/justinbach/migration-pipeline/internal/validator"
	"github.com/justinbach/migration-pipeline/internal/workspace"
	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

// state carries the artifacts of one run between stages.
type state struct {
	rt      *Runtime
	run     *workspace.Run
	rec     *decisionlog.Recorder
	result  *Result
	opts    Options
	started time.Time

	artifact  *capture.Artifact
	instances []component.Instance
	decisions []component.MappingDecision
	records   []component.ContentRecord
	doc       *component.OutputDocument
	report    *validator.Report
}

type stage struct {
	name string
	fn   func(ctx context.Context, s *state) error
}

// Execute runs captureID through every stage under a new run id. The
// returned result is non-nil whenever the workspace could be created; a
// fatal stage error yields an aborted result alongside the error.
func Execute(ctx context.Context, rt *Runtime, captureID string, opts Options) (*Result, error) {
	runID := uuid.New()
	unlock := lockRun(runID)
	defer unlock()

	run, err := rt.Workspace.Create(runID)
	if err != nil {
		return nil, err
	}

	s := &state{
		rt:      rt,
		run:     run,
		rec:     rt.recorder(run),
		opts:    opts,
		started: time.Now(),
		result: &Result{
			RunID:     runID,
			CaptureID: captureID,
			Status:    StatusRunning,
			Threshold: opts.Threshold,
			Notes:     []string{},
			StartedAt: time.Now().UTC(),
		},
	}

	rt.Metrics.start()
	defer rt.Metrics.done()

	s.rec.Record(ctx, decisionlog.StagePipeline, "start", captureID, opts, runID, "run started")
	s.checkpoint(ctx)

	err = s.execute(ctx, []stage{
		{StageLoad, loadStage},
		{StageSegment, segmentStage},
		{StageMap, mapStage},
		{StageExtract, extractStage},
		{StageAssemble, assembleStage},
		{StageValidate, validateStage},
		{StagePublish, publishStage},
	})
	return s.finish(ctx, err)
}

func (s *state) execute(ctx context.Context, stages []stage) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w before %s: %w", ErrAborted, st.name, err)
		}

		s.result.Stage = st.name
		start := time.Now()

		if err := st.fn(ctx, s); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrAborted, st.name, err)
		}

		s.rt.Metrics.observeStage(st.name, time.Since(start))
	}
	return nil
}

// finish computes the terminal status, records it and persists the manifest.
func (s *state) finish(ctx context.Context, runErr error) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	r := s.result

	var verdict validator.Verdict
	if s.report != nil {
		verdict = s.report.Verdict
	}

	if runErr == nil {
		r.PendingReview = s.pending(ctx)
	}
	r.Status = Decide(runErr, verdict, r.PendingReview)
	if runErr != nil {
		r.Error = runErr.Error()
	}

	now := time.Now().UTC()
	r.CompletedAt = &now

	s.rec.Record(ctx, decisionlog.StagePipeline, "complete", r.CaptureID,
		map[string]any{"stage": r.Stage, "pending_review": r.PendingReview, "verdict": verdict},
		r.Status, r.Error)

	if notes := s.rec.Notes(); notes != nil {
		r.Notes = notes
	}
	r.Sequence = s.rec.Sequence()
	s.checkpoint(ctx)
	s.rt.Metrics.finish(r)

	s.rt.Logger.InfoContext(ctx, "run complete",
		"run_id", r.RunID,
		"capture", r.CaptureID,
		"status", r.Status,
		"stage", r.Stage,
		"duration", time.Since(s.started),
	)

	return r, runErr
}

func (s *state) pending(ctx context.Context) int {
	if s.rt.Queue == nil {
		return s.result.Queued
	}
	n, err := s.rt.Queue.Outstanding(ctx, s.result.RunID)
	if err != nil {
		s.rt.Logger.WarnContext(ctx, "review count failed", "run_id", s.result.RunID, "error", err)
		return s.result.Queued
	}
	return n
}

// checkpoint writes the manifest and reports it to the tracker.
func (s *state) checkpoint(ctx context.Context) {
	if err := s.run.Write(workspace.ManifestFile, s.result); err != nil {
		s.rt.Logger.WarnContext(ctx, "manifest write failed", "run_id", s.result.RunID, "error", err)
	}
	s.rt.track(ctx, s.result)
}

func loadStage(ctx context.Context, s *state) error {
	a, err := s.rt.Captures.Load(ctx, s.result.CaptureID)
	if err != nil {
		s.rec.Record(ctx, decisionlog.StagePipeline, "load-failed", s.result.CaptureID, nil, err.Error(), "capture could not be loaded")
		return err
	}
	s.artifact = a
	s.result.SourceURL = a.Metadata.URL

	s.rt.Logger.InfoContext(ctx, "load stage complete",
		"run_id", s.result.RunID,
		"capture", a.ID,
		"html_bytes", len(a.HTML),
	)
	return nil
}

func segmentStage(ctx context.Context, s *state) error {
	instances, err := s.rt.Segmenter.Segment(ctx, s.rec, s.artifact)
	if err != nil {
		return err
	}
	s.instances = instances
	s.result.Instances = len(instances)

	if err := s.run.Write(workspace.InstancesFile, instances); err != nil {
		return err
	}
	s.checkpoint(ctx)

	s.rt.Logger.InfoContext(ctx, "segment stage complete",
		"run_id", s.result.RunID,
		"instances", len(instances),
	)
	return nil
}

func mapStage(ctx context.Context, s *state) error {
	decisions, err := s.rt.Mapper.MapAll(ctx, s.rec, s.artifact, s.instances)
	if err != nil {
		return err
	}
	s.decisions = decisions
	s.result.tally(decisions)
	s.rt.Metrics.decisions(s.result.Accepted, s.result.Queued, s.result.Rejected)

	if err := s.run.Write(workspace.DecisionsFile, decisions); err != nil {
		return err
	}
	s.checkpoint(ctx)
	s.rt.trackDecisions(ctx, s.result.RunID, decisions)
	return nil
}

func extractStage(ctx context.Context, s *state) error {
	page, err := s.rt.Extractor.Load(s.artifact)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]component.Instance, len(s.instances))
	for _, inst := range s.instances {
		byID[inst.ID] = inst
	}

	s.records = s.records[:0]
	for _, d := range s.decisions {
		if d.Outcome != component.OutcomeAccepted || d.TypeID == nil {
			continue
		}
		rec, err := s.extract(ctx, page, byID[d.InstanceID], *d.TypeID)
		if err != nil {
			return err
		}
		s.records = append(s.records, rec)
	}

	s.result.Warnings = countWarnings(s.records)
	if err := s.run.Write(workspace.RecordsFile, s.records); err != nil {
		return err
	}

	s.rt.Logger.InfoContext(ctx, "extract stage complete",
		"run_id", s.result.RunID,
		"records", len(s.records),
		"warnings", s.result.Warnings,
	)
	return nil
}

func (s *state) extract(ctx context.Context, page *extractor.Page, inst component.Instance, typeID string) (component.ContentRecord, error) {
	entry, err := s.rt.Registry.Lookup(typeID)
	if err != nil {
		return component.ContentRecord{}, fmt.Errorf("instance %s: %w", inst.ID, err)
	}

	rec := page.Extract(inst, entry)
	s.rec.Record(ctx, decisionlog.StageExtract, "extract", inst.ID.String(),
		map[string]any{"type": typeID, "anchor": inst.Anchor},
		map[string]any{"fields": len(rec.Fields), "warnings": rec.Warnings},
		fmt.Sprintf("%d fields, %d warnings", len(rec.Fields), len(rec.Warnings)),
	)
	return rec, nil
}

func assembleStage(ctx context.Context, s *state) error {
	doc, err := assembler.Assemble(assembler.Run{
		ID:        s.result.RunID,
		CaptureID: s.result.CaptureID,
		SourceURL: s.result.SourceURL,
	}, s.records, s.rt.Registry)
	if err != nil {
		s.rec.Record(ctx, decisionlog.StageAssemble, "assemble-failed", s.result.CaptureID, len(s.records), err.Error(), "")
		return err
	}
	s.doc = doc
	s.result.DocumentHash = doc.Hash

	s.rec.Record(ctx, decisionlog.StageAssemble, "assemble", s.result.CaptureID,
		len(s.records), doc.Hash, fmt.Sprintf("%d top-level nodes", len(doc.Nodes)))

	return s.run.Write(workspace.OutputFile, doc)
}

func validateStage(ctx context.Context, s *state) error {
	report, err := s.rt.Validator.Validate(ctx, s.rec, s.artifact, s.doc, s.opts.Threshold)
	if err != nil {
		return err
	}
	s.report = report

	score := report.Score
	s.result.Score = &score
	s.result.Verdict = report.Verdict
	s.result.Threshold = report.Threshold

	return s.run.Write(workspace.ReportFile, report)
}

// publishStage hands the document and report to the output sink.
func publishStage(ctx context.Context, s *state) error {
	if s.rt.Output == nil {
		return nil
	}

	files := []struct {
		name string
		v    any
	}{
		{workspace.OutputFile, s.doc},
		{workspace.ReportFile, s.report},
	}

	for _, f := range files {
		data, err := canonical.MarshalIndent(f.v)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", ErrOutput, f.name, err)
		}
		if err := s.rt.Output.Upload(ctx, OutputKey(s.result.RunID, f.name), bytes.NewReader(data), "application/json"); err != nil {
			return fmt.Errorf("%w: %w", ErrOutput, err)
		}
	}
	return nil
}

// OutputKey is the storage key of a published run file.
func OutputKey(runID uuid.UUID, name string) string {
	return fmt.Sprintf("runs/%s/%s", runID, name)
}

func countWarnings(records []component.ContentRecord) int {
	n := 0
	for _, r := range records {
		n += len(r.Warnings)
	}
	return n
}

// IsAborted reports whether err ended a run.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
