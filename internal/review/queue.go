package review

import (
	"context"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// Queue is the durable review queue shared by all runs.
type Queue interface {
	// Enqueue adds a pending item. ID and EnqueuedAt are assigned when zero.
	Enqueue(ctx context.Context, item Item) (*Item, error)
	// Claim hands the oldest pending item to claimant, or returns ErrEmpty.
	Claim(ctx context.Context, claimant string) (*Item, error)
	// Release returns a claimed item to the pending state.
	Release(ctx context.Context, id uuid.UUID, claimant string) (*Item, error)
	// Resolve closes a claimed item and returns the superseding decision.
	Resolve(ctx context.Context, id uuid.UUID, res Resolution) (*Item, *component.MappingDecision, error)
	Find(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Item], error)
	// Outstanding counts the run's items that are not yet resolved.
	Outstanding(ctx context.Context, runID uuid.UUID) (int, error)
}
