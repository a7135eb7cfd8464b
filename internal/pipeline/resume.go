package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/decisionlog"
	"github.com/justinbach/migration-pipeline/internal/workspace"
)

// runLocks serializes execution and resumption of the same run. Entries
// are reference counted and removed when the last holder unlocks.
var runLocks = struct {
	sync.Mutex
	m map[uuid.UUID]*runLock
}{m: make(map[uuid.UUID]*runLock)}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func lockRun(id uuid.UUID) func() {
	runLocks.Lock()
	l, ok := runLocks.m[id]
	if !ok {
		l = &runLock{}
		runLocks.m[id] = l
	}
	l.refs++
	runLocks.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		runLocks.Lock()
		defer runLocks.Unlock()
		if l.refs--; l.refs == 0 {
			delete(runLocks.m, id)
		}
	}
}

// Resume applies a superseding decision to a finished run: the resolved
// instance is extracted (or dropped when rejected), the document is
// reassembled and revalidated, and the status is recomputed.
func Resume(ctx context.Context, rt *Runtime, runID uuid.UUID, decision component.MappingDecision) (*Result, error) {
	unlock := lockRun(runID)
	defer unlock()

	run, err := rt.Workspace.Open(runID)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	s, err := reload(rt, run)
	if err != nil {
		return nil, err
	}
	idx, inst, err := s.target(decision)
	if err != nil {
		return nil, err
	}

	s.rec.Continue(s.result.Sequence)

	rt.Metrics.start()
	defer rt.Metrics.done()
	rt.Metrics.resumed()

	s.result.Status = StatusRunning
	s.result.Error = ""
	s.result.CompletedAt = nil

	s.rec.Record(ctx, decisionlog.StagePipeline, "resume", decision.InstanceID.String(),
		decision, s.result.Status, decision.Rationale)

	err = s.execute(ctx, []stage{
		{StageLoad, loadStage},
		{StageExtract, func(ctx context.Context, s *state) error {
			return s.supersede(ctx, idx, inst, decision)
		}},
		{StageAssemble, assembleStage},
		{StageValidate, validateStage},
		{StagePublish, publishStage},
	})
	return s.finish(ctx, err)
}

// reload rebuilds run state from the workspace.
func reload(rt *Runtime, run *workspace.Run) (*state, error) {
	result, err := workspace.Load[Result](run, workspace.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResume, err)
	}
	if result.Status == StatusRunning {
		return nil, fmt.Errorf("%w: run %s is %s at %s", ErrResume, result.RunID, result.Status, result.Stage)
	}

	instances, err := workspace.Load[[]component.Instance](run, workspace.InstancesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResume, err)
	}
	decisions, err := workspace.Load[[]component.MappingDecision](run, workspace.DecisionsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResume, err)
	}
	records, err := workspace.Load[[]component.ContentRecord](run, workspace.RecordsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResume, err)
	}

	if result.Notes == nil {
		result.Notes = []string{}
	}

	return &state{
		rt:        rt,
		run:       run,
		rec:       rt.recorder(run),
		result:    &result,
		opts:      Options{Threshold: result.Threshold},
		started:   time.Now(),
		instances: instances,
		decisions: decisions,
		records:   records,
	}, nil
}

// target locates the decision being superseded and its instance.
func (s *state) target(d component.MappingDecision) (int, component.Instance, error) {
	if d.RunID != s.result.RunID {
		return 0, component.Instance{}, fmt.Errorf("%w: decision %s belongs to run %s", ErrResume, d.ID, d.RunID)
	}

	idx := slices.IndexFunc(s.decisions, func(prior component.MappingDecision) bool {
		return prior.InstanceID == d.InstanceID
	})
	instIdx := slices.IndexFunc(s.instances, func(i component.Instance) bool {
		return i.ID == d.InstanceID
	})
	if idx < 0 || instIdx < 0 {
		return 0, component.Instance{}, fmt.Errorf("%w: instance %s is not part of run %s", ErrResume, d.InstanceID, s.result.RunID)
	}

	if prior := s.decisions[idx]; d.Supersedes == nil || *d.Supersedes != prior.ID {
		return 0, component.Instance{}, fmt.Errorf("%w: decision %s does not supersede %s", ErrResume, d.ID, prior.ID)
	}
	return idx, s.instances[instIdx], nil
}

// supersede swaps the resolved decision into the run and updates the
// records for its instance.
func (s *state) supersede(ctx context.Context, idx int, inst component.Instance, d component.MappingDecision) error {
	s.decisions[idx] = d
	s.result.tally(s.decisions)
	if err := s.run.Write(workspace.DecisionsFile, s.decisions); err != nil {
		return err
	}
	s.rt.trackDecisions(ctx, s.result.RunID, []component.MappingDecision{d})

	s.records = slices.DeleteFunc(s.records, func(r component.ContentRecord) bool {
		return r.Instance.ID == d.InstanceID
	})

	if d.Outcome == component.OutcomeAccepted && d.TypeID != nil {
		page, err := s.rt.Extractor.Load(s.artifact)
		if err != nil {
			return err
		}
		rec, err := s.extract(ctx, page, inst, *d.TypeID)
		if err != nil {
			return err
		}
		s.records = append(s.records, rec)
	}

	s.result.Warnings = countWarnings(s.records)
	return s.run.Write(workspace.RecordsFile, s.records)
}
