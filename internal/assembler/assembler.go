// Package assembler orders extracted records into the output document.
// Assembly is pure: it reads no clock, no randomness and no I/O, so the same
// records always produce the same bytes and hash.
package assembler

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

var (
	// ErrAssembly is fatal for the run.
	ErrAssembly = errors.New("assembly failed")
	// ErrHashMismatch is returned by Verify when a document was altered.
	ErrHashMismatch = errors.New("document hash mismatch")
)

// Run identifies the document being assembled.
type Run struct {
	ID        uuid.UUID
	CaptureID string
	SourceURL string
}

type node struct {
	record   component.ContentRecord
	children []*node
}

// Assemble sorts records by source ordinal, applies taxonomy position rules
// and nests records under the nearest preceding record of their parent type.
func Assemble(run Run, records []component.ContentRecord, registry *taxonomy.Registry) (*component.OutputDocument, error) {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b component.ContentRecord) int {
		if c := cmp.Compare(a.Instance.Ordinal, b.Instance.Ordinal); c != 0 {
			return c
		}
		return cmp.Compare(a.Instance.ID.String(), b.Instance.ID.String())
	})

	entries := make(map[string]taxonomy.Entry, len(ordered))
	for _, r := range ordered {
		if _, ok := entries[r.TypeID]; ok {
			continue
		}
		e, err := registry.Lookup(r.TypeID)
		if err != nil {
			return nil, fmt.Errorf("%w: record #%d: %w", ErrAssembly, r.Instance.Ordinal, err)
		}
		entries[r.TypeID] = e
	}

	var first, middle, last []component.ContentRecord
	for _, r := range ordered {
		switch entries[r.TypeID].Position {
		case taxonomy.PositionFirst:
			first = append(first, r)
		case taxonomy.PositionLast:
			last = append(last, r)
		default:
			middle = append(middle, r)
		}
	}
	ordered = slices.Concat(first, middle, last)

	var roots []*node
	latest := make(map[string]*node)

	for _, r := range ordered {
		n := &node{record: r}
		parent := entries[r.TypeID].Parent

		if parent == "" {
			roots = append(roots, n)
		} else {
			host, ok := latest[parent]
			if !ok {
				return nil, fmt.Errorf("%w: %s record #%d has no preceding %s to nest under",
					ErrAssembly, r.TypeID, r.Instance.Ordinal, parent)
			}
			host.children = append(host.children, n)
		}
		latest[r.TypeID] = n
	}

	doc := &component.OutputDocument{
		RunID:     run.ID,
		CaptureID: run.CaptureID,
		SourceURL: run.SourceURL,
		Nodes:     convert(roots),
	}

	hash, err := Hash(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
	}
	doc.Hash = hash

	return doc, nil
}

func convert(nodes []*node) []component.Node {
	out := make([]component.Node, len(nodes))
	for i, n := range nodes {
		out[i] = component.Node{Record: n.record}
		if len(n.children) > 0 {
			out[i].Children = convert(n.children)
		}
	}
	return out
}

// Hash returns the sha256 of the canonical encoding of doc with its Hash
// field cleared.
func Hash(doc *component.OutputDocument) (string, error) {
	clone := *doc
	clone.Hash = ""
	data, err := canonical.Marshal(clone)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return canonical.Hash(data), nil
}

// Verify recomputes the hash of doc and compares it to the stored value.
func Verify(doc *component.OutputDocument) error {
	hash, err := Hash(doc)
	if err != nil {
		return err
	}
	if hash != doc.Hash {
		return fmt.Errorf("%w: stored %s, computed %s", ErrHashMismatch, doc.Hash, hash)
	}
	return nil
}
