package decisionlog

import (
	"cmp"
	"context"
	"slices"

	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// Store persists entries and lists them back.
type Store interface {
	Name() string
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error)
}

func compareEntries(a, b Entry) int {
	if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RunID.String(), b.RunID.String()); c != 0 {
		return c
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

// paginate filters, orders and slices in-process entry sets.
func paginate(entries []Entry, page pagination.PageRequest, filters Filters) *pagination.PageResult[Entry] {
	matched := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filters.Match(e) {
			matched = append(matched, e)
		}
	}
	slices.SortStableFunc(matched, compareEntries)

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)

	result := pagination.NewPageResult(matched[start:end], total, page.Page, page.PageSize)
	return &result
}
