// Package workspace keeps the intermediate state of each run on disk under
// <root>/runs/<run-id>/ so a run can be inspected and resumed after review.
// Every file is written through a temp file and rename.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/pkg/canonical"
)

// Run workspace file names.
const (
	ManifestFile  = "run.json"
	InstancesFile = "instances.json"
	DecisionsFile = "decisions.json"
	RecordsFile   = "records.json"
	OutputFile    = "output.json"
	ReportFile    = "report.json"
	LogFile       = "decisions.jsonl"
)

var (
	// ErrNotFound is returned for a missing run directory or file.
	ErrNotFound = errors.New("workspace entry not found")
	// ErrCorrupt is returned when a workspace file cannot be decoded.
	ErrCorrupt = errors.New("workspace file corrupt")
)

// Workspace is a root directory holding one subdirectory per run.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at root.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// Dir returns the directory of a run.
func (w *Workspace) Dir(runID uuid.UUID) string {
	return filepath.Join(w.root, "runs", runID.String())
}

// Create makes the run directory, succeeding if it already exists.
func (w *Workspace) Create(runID uuid.UUID) (*Run, error) {
	dir := w.Dir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run workspace %s: %w", runID, err)
	}
	return &Run{id: runID, dir: dir}, nil
}

// Open returns an existing run directory.
func (w *Workspace) Open(runID uuid.UUID) (*Run, error) {
	dir := w.Dir(runID)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("open run workspace %s: %w", runID, err)
	}
	return &Run{id: runID, dir: dir}, nil
}

// Run is the directory of a single run.
type Run struct {
	id  uuid.UUID
	dir string
}

// ID returns the run identifier.
func (r *Run) ID() uuid.UUID { return r.id }

// Dir returns the run directory.
func (r *Run) Dir() string { return r.dir }

// Path returns the path of a file in the run directory.
func (r *Run) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// Exists reports whether a file is present in the run directory.
func (r *Run) Exists(name string) bool {
	_, err := os.Stat(r.Path(name))
	return err == nil
}

// Write stores v as indented canonical JSON under name.
func (r *Run) Write(name string, v any) error {
	data, err := canonical.MarshalIndent(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return r.WriteBytes(name, data)
}

// WriteBytes stores data under name, replacing any previous content atomically.
func (r *Run) WriteBytes(name string, data []byte) error {
	tmp, err := os.CreateTemp(r.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), r.Path(name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Read decodes the file name into v.
func (r *Run) Read(name string, v any) error {
	data, err := os.ReadFile(r.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, r.id, name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s/%s: %w", ErrCorrupt, r.id, name, err)
	}
	return nil
}

// Load reads name into a new value of type T.
func Load[T any](r *Run, name string) (T, error) {
	var v T
	err := r.Read(name, &v)
	return v, err
}
