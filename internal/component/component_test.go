package component_test

import (
	"testing"

	"github.com/justinbach/migration-pipeline/internal/component"
)

func TestRegion(t *testing.T) {
	tests := []struct {
		name   string
		region component.Region
		empty  bool
		area   int
	}{
		{"positive", component.Region{X: 0, Y: 0, Width: 10, Height: 5}, false, 50},
		{"zero width", component.Region{Width: 0, Height: 5}, true, 0},
		{"negative height", component.Region{Width: 4, Height: -1}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.region.Empty(); got != tt.empty {
				t.Errorf("Empty() = %v, want %v", got, tt.empty)
			}
			if got := tt.region.Area(); got != tt.area {
				t.Errorf("Area() = %d, want %d", got, tt.area)
			}
		})
	}
}

func TestRegionContains(t *testing.T) {
	outer := component.Region{X: 0, Y: 0, Width: 100, Height: 100}
	if !outer.Contains(component.Region{X: 10, Y: 10, Width: 20, Height: 20}) {
		t.Error("expected inner region to be contained")
	}
	if outer.Contains(component.Region{X: 90, Y: 90, Width: 20, Height: 20}) {
		t.Error("overlapping region should not be contained")
	}
}

func TestRegionClip(t *testing.T) {
	r := component.Region{X: -10, Y: 50, Width: 40, Height: 100}
	got := r.Clip(20, 120)
	want := component.Region{X: 0, Y: 50, Width: 20, Height: 70}
	if got != want {
		t.Errorf("Clip = %+v, want %+v", got, want)
	}

	if !(component.Region{X: 200, Y: 0, Width: 5, Height: 5}).Clip(100, 100).Empty() {
		t.Error("region outside canvas should clip to empty")
	}
}

func TestOutputDocumentRecords(t *testing.T) {
	doc := component.OutputDocument{
		Nodes: []component.Node{
			{
				Record: component.ContentRecord{TypeID: "section"},
				Children: []component.Node{
					{Record: component.ContentRecord{TypeID: "card"}},
					{Record: component.ContentRecord{TypeID: "card"}},
				},
			},
			{Record: component.ContentRecord{TypeID: "footer"}},
		},
	}

	got := doc.Records()
	want := []string{"section", "card", "card", "footer"}
	if len(got) != len(want) {
		t.Fatalf("Records() len = %d, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r.TypeID != want[i] {
			t.Errorf("Records()[%d] = %s, want %s", i, r.TypeID, want[i])
		}
	}
}
