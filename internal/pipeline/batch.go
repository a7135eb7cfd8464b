package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome of one capture in a batch.
type BatchItem struct {
	CaptureID string  `json:"capture_id"`
	Result    *Result `json:"result,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// RunBatch executes captures concurrently, up to rt.Workers at a time. A
// failed run does not stop the others. An empty list runs every capture the
// source knows about. Items are returned in input order.
func RunBatch(ctx context.Context, rt *Runtime, captureIDs []string, opts Options) ([]BatchItem, error) {
	if len(captureIDs) == 0 {
		ids, err := rt.Captures.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list captures: %w", err)
		}
		captureIDs = ids
	}

	items := make([]BatchItem, len(captureIDs))

	var g errgroup.Group
	g.SetLimit(rt.workers())

	for i, id := range captureIDs {
		g.Go(func() error {
			items[i].CaptureID = id

			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}

			result, err := Execute(ctx, rt, id, opts)
			items[i].Result = result
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	g.Wait()

	rt.Logger.InfoContext(ctx, "batch complete", "captures", len(captureIDs))
	return items, ctx.Err()
}
