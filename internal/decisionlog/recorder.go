package decisionlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAppendTimeout bounds a single store append when no timeout is set.
const DefaultAppendTimeout = 10 * time.Second

// ErrStalled marks an append skipped because an earlier append to the same
// store has not returned yet.
var ErrStalled = errors.New("store stalled")

// Recorder appends entries for one run to every configured store. Sequence
// numbers and timestamps are assigned under a lock; store appends run
// outside it, each bounded by the append timeout. Stores may receive
// concurrent entries out of sequence order and order them on List.
type Recorder struct {
	runID   uuid.UUID
	sinks   []*sink
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu       sync.Mutex
	seq      int64
	degraded []error
}

// NewRecorder creates a Recorder for runID using DefaultAppendTimeout.
func NewRecorder(runID uuid.UUID, logger *slog.Logger, stores ...Store) *Recorder {
	sinks := make([]*sink, len(stores))
	for i, s := range stores {
		sinks[i] = &sink{store: s}
	}
	return &Recorder{
		runID:   runID,
		sinks:   sinks,
		logger:  logger.With("system", "decisionlog", "run_id", runID),
		now:     func() time.Time { return time.Now().UTC() },
		timeout: DefaultAppendTimeout,
	}
}

// SetAppendTimeout replaces the per-append timeout. Non-positive values
// restore DefaultAppendTimeout.
func (r *Recorder) SetAppendTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultAppendTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// RunID returns the run the recorder writes for.
func (r *Recorder) RunID() uuid.UUID {
	return r.runID
}

// Continue sets the last used sequence number when appending to an existing run.
func (r *Recorder) Continue(seq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq > r.seq {
		r.seq = seq
	}
}

// Sequence returns the last assigned sequence number.
func (r *Recorder) Sequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Record appends an entry. Store failures, timeouts included, are logged
// and retained as degraded notes; Record itself never fails.
func (r *Recorder) Record(
	ctx context.Context,
	stage Stage,
	action, subject string,
	input, output any,
	rationale string,
) Entry {
	r.mu.Lock()
	r.seq++
	e := Entry{
		ID:         uuid.New(),
		RunID:      r.runID,
		Sequence:   r.seq,
		Stage:      stage,
		Action:     action,
		Subject:    subject,
		Input:      Summarize(input),
		Output:     Summarize(output),
		Rationale:  truncate(rationale, MaxSummary),
		RecordedAt: r.now(),
	}
	timeout := r.timeout
	r.mu.Unlock()

	for _, s := range r.sinks {
		if err := s.append(ctx, e, timeout); err != nil {
			r.degrade(ctx, s.store.Name(), e.Sequence, err)
		}
	}

	return e
}

func (r *Recorder) degrade(ctx context.Context, store string, seq int64, err error) {
	r.mu.Lock()
	r.degraded = append(r.degraded, fmt.Errorf("%w: %s: %w", ErrDegraded, store, err))
	r.mu.Unlock()

	r.logger.WarnContext(ctx, "decision log append failed",
		"store", store,
		"sequence", seq,
		"error", err,
	)
}

// Err returns the joined degraded-store errors, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.degraded...)
}

// Notes returns one message per degraded append.
func (r *Recorder) Notes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	notes := make([]string, len(r.degraded))
	for i, err := range r.degraded {
		notes[i] = err.Error()
	}
	return notes
}

// sink wraps a store with stall tracking. While an abandoned append is
// still running, further appends to the store are skipped.
type sink struct {
	store Store

	mu      sync.Mutex
	stalled chan struct{}
}

func (s *sink) append(ctx context.Context, e Entry, timeout time.Duration) error {
	s.mu.Lock()
	if s.stalled != nil {
		select {
		case <-s.stalled:
			s.stalled = nil
		default:
			s.mu.Unlock()
			return ErrStalled
		}
	}
	s.mu.Unlock()

	// appends outlive a cancelled run but not the timeout
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	var err error
	finished := make(chan struct{})
	go func() {
		defer cancel()
		defer close(finished)
		err = s.store.Append(actx, e)
	}()

	select {
	case <-finished:
		return err
	case <-actx.Done():
	}

	select {
	case <-finished:
		return err
	default:
	}

	s.mu.Lock()
	s.stalled = finished
	s.mu.Unlock()
	return fmt.Errorf("append timed out after %s: %w", timeout, context.DeadlineExceeded)
}
