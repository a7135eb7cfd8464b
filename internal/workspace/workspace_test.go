package workspace_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/workspace"
)

func TestCreateWriteLoad(t *testing.T) {
	ws := workspace.New(t.TempDir())
	id := uuid.New()

	run, err := ws.Create(id)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(ws.Root(), "runs", id.String()); run.Dir() != want {
		t.Errorf("dir = %s, want %s", run.Dir(), want)
	}

	instances := []component.Instance{
		{ID: uuid.New(), Ordinal: 1, Label: "header", Region: component.Region{Width: 10, Height: 5}},
		{ID: uuid.New(), Ordinal: 2, Label: "paragraph"},
	}
	if err := run.Write(workspace.InstancesFile, instances); err != nil {
		t.Fatal(err)
	}
	if !run.Exists(workspace.InstancesFile) {
		t.Fatal("instances file missing after write")
	}

	reopened, err := ws.Open(id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := workspace.Load[[]component.Instance](reopened, workspace.InstancesFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != instances[0] || got[1] != instances[1] {
		t.Errorf("loaded = %+v, want %+v", got, instances)
	}

	entries, err := os.ReadDir(run.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("run dir holds %d entries, want only the instances file", len(entries))
	}
}

func TestWriteReplaces(t *testing.T) {
	run, err := workspace.New(t.TempDir()).Create(uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []string{"first", "second"} {
		if err := run.Write(workspace.ManifestFile, map[string]string{"status": v}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := workspace.Load[map[string]string](run, workspace.ManifestFile)
	if err != nil {
		t.Fatal(err)
	}
	if got["status"] != "second" {
		t.Errorf("status = %q, want second", got["status"])
	}
}

func TestErrors(t *testing.T) {
	ws := workspace.New(t.TempDir())

	if _, err := ws.Open(uuid.New()); !errors.Is(err, workspace.ErrNotFound) {
		t.Errorf("open missing run: err = %v, want ErrNotFound", err)
	}

	run, err := ws.Create(uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := workspace.Load[[]component.Instance](run, workspace.RecordsFile); !errors.Is(err, workspace.ErrNotFound) {
		t.Errorf("missing file: err = %v, want ErrNotFound", err)
	}

	if err := run.WriteBytes(workspace.ReportFile, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := workspace.Load[map[string]any](run, workspace.ReportFile); !errors.Is(err, workspace.ErrCorrupt) {
		t.Errorf("corrupt file: err = %v, want ErrCorrupt", err)
	}
}
