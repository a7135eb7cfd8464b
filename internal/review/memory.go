package review

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// MemoryQueue is a process-local Queue for local batch runs and tests.
type MemoryQueue struct {
	mu         sync.Mutex
	items      []*Item
	pagination pagination.Config
	now        func() time.Time
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue(cfg pagination.Config) *MemoryQueue {
	return &MemoryQueue{
		pagination: cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, item Item) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.items {
		if existing.Decision.ID == item.Decision.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, item.Decision.ID)
		}
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.now()
	}
	item.Status = StatusPending
	item.ClaimedBy, item.ClaimedAt = nil, nil
	item.Resolution, item.ResolvedAt = nil, nil

	stored := item
	q.items = append(q.items, &stored)

	out := stored
	return &out, nil
}

func (q *MemoryQueue) Claim(_ context.Context, claimant string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.Status != StatusPending {
			continue
		}
		now := q.now()
		item.Status = StatusClaimed
		item.ClaimedBy = &claimant
		item.ClaimedAt = &now

		out := *item
		return &out, nil
	}
	return nil, ErrEmpty
}

func (q *MemoryQueue) Release(_ context.Context, id uuid.UUID, claimant string) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.claimed(id, claimant)
	if err != nil {
		return nil, err
	}

	item.Status = StatusPending
	item.ClaimedBy, item.ClaimedAt = nil, nil

	out := *item
	return &out, nil
}

func (q *MemoryQueue) Resolve(_ context.Context, id uuid.UUID, res Resolution) (*Item, *component.MappingDecision, error) {
	if err := res.Validate(); err != nil {
		return nil, nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.claimed(id, res.DecidedBy)
	if err != nil {
		return nil, nil, err
	}

	now := q.now()
	decision := Supersede(*item, res, now)

	item.Status = StatusResolved
	item.Resolution = &decision.ID
	item.ResolvedAt = &now

	out := *item
	return &out, &decision, nil
}

func (q *MemoryQueue) Find(_ context.Context, id uuid.UUID) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *item
	return &out, nil
}

func (q *MemoryQueue) List(_ context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Item], error) {
	page.Normalize(q.pagination)

	q.mu.Lock()
	matched := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		if filters.Match(*item) {
			matched = append(matched, *item)
		}
	}
	q.mu.Unlock()

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)

	result := pagination.NewPageResult(slices.Clone(matched[start:end]), total, page.Page, page.PageSize)
	return &result, nil
}

func (q *MemoryQueue) Outstanding(_ context.Context, runID uuid.UUID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, item := range q.items {
		if item.RunID == runID && item.Status != StatusResolved {
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) find(id uuid.UUID) *Item {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (q *MemoryQueue) claimed(id uuid.UUID, claimant string) (*Item, error) {
	item := q.find(id)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if item.Status != StatusClaimed || item.ClaimedBy == nil || *item.ClaimedBy != claimant {
		return nil, fmt.Errorf("%w: %s (%s)", ErrConflict, id, item.Status)
	}
	return item, nil
}
