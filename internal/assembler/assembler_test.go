package assembler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/assembler"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

func testRegistry(t *testing.T) *taxonomy.Registry {
	t.Helper()
	text := []taxonomy.Field{{Name: "title", Type: taxonomy.FieldText}}
	reg, err := taxonomy.New(
		taxonomy.Entry{ID: "header", Position: taxonomy.PositionFirst, Fields: text},
		taxonomy.Entry{ID: "footer", Position: taxonomy.PositionLast, Fields: text},
		taxonomy.Entry{ID: "paragraph", Fields: text},
		taxonomy.Entry{ID: "card-grid", Fields: text},
		taxonomy.Entry{ID: "card", Parent: "card-grid", Fields: text},
		taxonomy.Entry{ID: "card-badge", Parent: "card", Fields: text},
	)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

var run = assembler.Run{ID: uuid.MustParse("6f1c1b5e-8d0a-4c55-9f57-3f1d2f8b7a10"), CaptureID: "landing", SourceURL: "https://example.com/"}

func record(ordinal int, typeID, title string) component.ContentRecord {
	return component.ContentRecord{
		Instance: component.InstanceRef{
			ID:      uuid.NewSHA1(run.ID, []byte{byte(ordinal)}),
			Ordinal: ordinal,
			Region:  component.Region{Y: ordinal * 10, Width: 10, Height: 10},
		},
		TypeID:   typeID,
		Fields:   map[string]any{"title": title},
		Warnings: []component.Warning{},
	}
}

func types(records []component.ContentRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.TypeID
	}
	return out
}

func TestAssembleOrderAndPosition(t *testing.T) {
	records := []component.ContentRecord{
		record(4, "footer", "bottom"),
		record(2, "paragraph", "second"),
		record(5, "paragraph", "after footer"),
		record(3, "header", "late header"),
		record(1, "paragraph", "first"),
	}

	doc, err := assembler.Assemble(run, records, testRegistry(t))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	got := types(doc.Records())
	want := []string{"header", "paragraph", "paragraph", "paragraph", "footer"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	var ordinals []int
	for _, r := range doc.Records() {
		ordinals = append(ordinals, r.Instance.Ordinal)
	}
	if !slices.Equal(ordinals, []int{3, 1, 2, 5, 4}) {
		t.Errorf("ordinals = %v", ordinals)
	}

	if doc.RunID != run.ID || doc.CaptureID != "landing" || doc.SourceURL != run.SourceURL {
		t.Errorf("document header = %+v", doc)
	}
}

func TestAssembleNesting(t *testing.T) {
	records := []component.ContentRecord{
		record(1, "card-grid", "grid A"),
		record(2, "card", "a1"),
		record(3, "card-badge", "new"),
		record(4, "card", "a2"),
		record(5, "card-grid", "grid B"),
		record(6, "card", "b1"),
	}

	doc, err := assembler.Assemble(run, records, testRegistry(t))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(doc.Nodes) != 2 {
		t.Fatalf("roots = %d, want 2", len(doc.Nodes))
	}
	gridA, gridB := doc.Nodes[0], doc.Nodes[1]
	if len(gridA.Children) != 2 || len(gridB.Children) != 1 {
		t.Errorf("children = %d, %d", len(gridA.Children), len(gridB.Children))
	}
	if len(gridA.Children[0].Children) != 1 || gridA.Children[0].Children[0].Record.TypeID != "card-badge" {
		t.Error("badge not nested under its card")
	}

	if got := len(doc.Records()); got != len(records) {
		t.Errorf("records = %d, want %d", got, len(records))
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name    string
		records []component.ContentRecord
	}{
		{"orphan child", []component.ContentRecord{record(1, "paragraph", "p"), record(2, "card", "lonely")}},
		{"parent after child", []component.ContentRecord{record(1, "card", "early"), record(2, "card-grid", "late")}},
		{"unknown type", []component.ContentRecord{record(1, "carousel", "x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := assembler.Assemble(run, tt.records, testRegistry(t))
			if !errors.Is(err, assembler.ErrAssembly) {
				t.Errorf("err = %v, want ErrAssembly", err)
			}
			if doc != nil {
				t.Error("partial document returned")
			}
		})
	}
}

func TestAssembleEmpty(t *testing.T) {
	doc, err := assembler.Assemble(run, nil, testRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 0 || doc.Hash == "" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestAssemblePure(t *testing.T) {
	records := []component.ContentRecord{
		record(3, "paragraph", "c"),
		record(1, "card-grid", "grid"),
		record(2, "card", "card"),
		record(4, "footer", "f"),
	}
	records[2].Fields["image"] = component.ImageRef{Src: "https://example.com/a.png", Alt: "A"}
	records[0].Fields["items"] = []string{"x", "y"}

	reg := testRegistry(t)
	first, err := assembler.Assemble(run, records, reg)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := canonical.Marshal(first)

	shuffled := []component.ContentRecord{records[3], records[1], records[0], records[2]}
	for _, input := range [][]component.ContentRecord{records, shuffled} {
		doc, err := assembler.Assemble(run, input, reg)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := canonical.Marshal(doc)
		if !bytes.Equal(got, want) || doc.Hash != first.Hash {
			t.Errorf("assembly not pure:\n%s\n%s", got, want)
		}
	}

	if records[0].Instance.Ordinal != 3 {
		t.Error("input slice reordered")
	}
}

func TestVerify(t *testing.T) {
	doc, err := assembler.Assemble(run, []component.ContentRecord{
		record(1, "paragraph", "hello"),
	}, testRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	doc.Nodes[0].Record.Fields["image"] = component.ImageRef{Src: "https://example.com/a.png", Alt: "A"}
	doc.Hash, _ = assembler.Hash(doc)

	// A round trip through generic JSON keeps the hash stable.
	data, _ := json.Marshal(doc)
	var reloaded component.OutputDocument
	if err := json.Unmarshal(data, &reloaded); err != nil {
		t.Fatal(err)
	}
	if err := assembler.Verify(&reloaded); err != nil {
		t.Errorf("Verify after reload: %v", err)
	}

	reloaded.Nodes[0].Record.Fields["title"] = "tampered"
	if err := assembler.Verify(&reloaded); !errors.Is(err, assembler.ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}
