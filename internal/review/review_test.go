package review_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/review"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

var pageCfg = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func queuedItem(runID uuid.UUID, ordinal int) review.Item {
	instanceID := uuid.New()
	return review.Item{
		RunID:     runID,
		CaptureID: "landing",
		Instance:  component.Instance{ID: instanceID, Ordinal: ordinal, Label: "unknown-widget"},
		Decision: component.MappingDecision{
			ID:         uuid.New(),
			RunID:      runID,
			InstanceID: instanceID,
			Confidence: 0.4,
			Outcome:    component.OutcomeQueued,
		},
	}
}

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := review.NewMemoryQueue(pageCfg)
	run := uuid.New()

	var ids []uuid.UUID
	for i := 1; i <= 3; i++ {
		item, err := q.Enqueue(ctx, queuedItem(run, i))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if item.Status != review.StatusPending || item.ID == uuid.Nil {
			t.Fatalf("enqueued item = %+v", item)
		}
		ids = append(ids, item.ID)
	}

	for i, want := range ids {
		item, err := q.Claim(ctx, "alice")
		if err != nil {
			t.Fatalf("Claim %d: %v", i, err)
		}
		if item.ID != want {
			t.Errorf("claim %d = %s, want %s", i, item.ID, want)
		}
	}

	if _, err := q.Claim(ctx, "alice"); !errors.Is(err, review.ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestMemoryQueueSingleClaim(t *testing.T) {
	ctx := context.Background()
	q := review.NewMemoryQueue(pageCfg)
	run := uuid.New()

	const items = 25
	for i := 1; i <= items; i++ {
		if _, err := q.Enqueue(ctx, queuedItem(run, i)); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]string{}
		wg      sync.WaitGroup
	)
	for r := range 8 {
		reviewer := fmt.Sprintf("reviewer-%d", r)
		wg.Go(func() {
			for {
				item, err := q.Claim(ctx, reviewer)
				if errors.Is(err, review.ErrEmpty) {
					return
				}
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if prev, dup := claimed[item.ID]; dup {
					t.Errorf("item %s claimed by %s and %s", item.ID, prev, reviewer)
				}
				claimed[item.ID] = reviewer
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if len(claimed) != items {
		t.Errorf("claimed %d items, want %d", len(claimed), items)
	}
}

func TestMemoryQueueDuplicateDecision(t *testing.T) {
	ctx := context.Background()
	q := review.NewMemoryQueue(pageCfg)
	item := queuedItem(uuid.New(), 1)

	if _, err := q.Enqueue(ctx, item); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, item); !errors.Is(err, review.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestMemoryQueueReleaseAndResolve(t *testing.T) {
	ctx := context.Background()
	q := review.NewMemoryQueue(pageCfg)
	run := uuid.New()

	queued, _ := q.Enqueue(ctx, queuedItem(run, 4))
	if _, err := q.Claim(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	if _, err := q.Release(ctx, queued.ID, "bob"); !errors.Is(err, review.ErrConflict) {
		t.Errorf("release by non-claimant: err = %v", err)
	}

	released, err := q.Release(ctx, queued.ID, "alice")
	if err != nil || released.Status != review.StatusPending || released.ClaimedBy != nil {
		t.Fatalf("released = %+v, err = %v", released, err)
	}

	if _, _, err := q.Resolve(ctx, queued.ID, review.Resolution{DecidedBy: "bob"}); !errors.Is(err, review.ErrConflict) {
		t.Errorf("resolve unclaimed: err = %v", err)
	}

	if _, err := q.Claim(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	typeID := "card"
	item, decision, err := q.Resolve(ctx, queued.ID, review.Resolution{TypeID: &typeID, DecidedBy: "bob", Rationale: "promo tile"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if item.Status != review.StatusResolved || item.Resolution == nil || *item.Resolution != decision.ID {
		t.Errorf("item = %+v", item)
	}
	if decision.Supersedes == nil || *decision.Supersedes != queued.Decision.ID {
		t.Error("decision does not supersede the queued decision")
	}
	if decision.Outcome != component.OutcomeAccepted || *decision.TypeID != "card" || decision.InstanceID != queued.Instance.ID {
		t.Errorf("decision = %+v", decision)
	}

	if n, _ := q.Outstanding(ctx, run); n != 0 {
		t.Errorf("outstanding = %d, want 0", n)
	}
}

func TestResolutionValidate(t *testing.T) {
	empty := " "
	tests := []struct {
		name string
		res  review.Resolution
		ok   bool
	}{
		{"reject with reviewer", review.Resolution{DecidedBy: "alice"}, true},
		{"missing reviewer", review.Resolution{}, false},
		{"blank type", review.Resolution{TypeID: &empty, DecidedBy: "alice"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.res.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("err = %v, ok = %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, review.ErrInvalidResolution) {
				t.Errorf("err = %v, want ErrInvalidResolution", err)
			}
		})
	}
}

func TestSupersedeReject(t *testing.T) {
	item := queuedItem(uuid.New(), 2)
	d := review.Supersede(item, review.Resolution{DecidedBy: "alice"}, item.EnqueuedAt)

	if d.Outcome != component.OutcomeRejected || d.TypeID != nil {
		t.Errorf("decision = %+v", d)
	}
	if d.ID == item.Decision.ID {
		t.Error("superseding decision reuses the prior id")
	}
}

func TestMemoryQueueList(t *testing.T) {
	ctx := context.Background()
	q := review.NewMemoryQueue(pageCfg)
	runA, runB := uuid.New(), uuid.New()

	for i := 1; i <= 3; i++ {
		q.Enqueue(ctx, queuedItem(runA, i))
	}
	q.Enqueue(ctx, queuedItem(runB, 1))
	q.Claim(ctx, "alice")

	pending := review.StatusPending
	result, err := q.List(ctx, pagination.PageRequest{PageSize: 10}, review.Filters{RunID: &runA, Status: &pending})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Errorf("total = %d, want 2", result.Total)
	}

	if n, _ := q.Outstanding(ctx, runA); n != 3 {
		t.Errorf("outstanding = %d, want 3", n)
	}
}
