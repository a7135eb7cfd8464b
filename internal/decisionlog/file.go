package decisionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/justinbach/migration-pipeline/pkg/canonical"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

// FileStore appends entries as JSON lines to a single file, typically
// decisions.jsonl in a run workspace.
type FileStore struct {
	path       string
	pagination pagination.Config
	mu         sync.Mutex
}

// NewFileStore creates a FileStore writing to path. The file is created on first append.
func NewFileStore(path string, cfg pagination.Config) *FileStore {
	return &FileStore{path: path, pagination: cfg}
}

func (f *FileStore) Name() string { return "file" }

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Append(_ context.Context, e Entry) error {
	line, err := canonical.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}

	if _, err := file.Write(append(line, '\n')); err != nil {
		_ = file.Close()
		return fmt.Errorf("write log: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync log: %w", err)
	}
	return file.Close()
}

func (f *FileStore) List(_ context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error) {
	page.Normalize(f.pagination)

	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	return paginate(entries, page, filters), nil
}

// LastSequence returns the highest sequence in the file, or 0 when empty.
func (f *FileStore) LastSequence() (int64, error) {
	entries, err := f.read()
	if err != nil {
		return 0, err
	}
	var last int64
	for _, e := range entries {
		last = max(last, e.Sequence)
	}
	return last, nil
}

func (f *FileStore) read() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	dec := json.NewDecoder(file)
	for n := 1; ; n++ {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode log entry %d: %w", n, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}
