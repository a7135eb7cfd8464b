package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// Source provides read access to captured bundles.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*Artifact, error)
}

// DirSource reads bundles from subdirectories of a root directory, one
// directory per capture named by its identifier.
type DirSource struct {
	root string
}

// NewDirSource creates a DirSource over root.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// List returns the identifiers of every subdirectory holding a page.html.
func (d *DirSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read capture root %s: %w", d.root, err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !ValidID(e.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.root, e.Name(), HTMLFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Load reads the bundle in root/id.
func (d *DirSource) Load(_ context.Context, id string) (*Artifact, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid capture id %q", ErrInvalidBundle, id)
	}
	return LoadDir(filepath.Join(d.root, id))
}

// LoadDir reads a single bundle directory. The identifier is the directory name.
func LoadDir(dir string) (*Artifact, error) {
	id := filepath.Base(filepath.Clean(dir))

	read := func(name string, required bool) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			if required {
				return nil, fmt.Errorf("%w: %s: missing %s", ErrNotFound, id, name)
			}
			return nil, nil
		}
		return data, err
	}

	screenshot, err := read(ScreenshotFile, true)
	if err != nil {
		return nil, err
	}
	html, err := read(HTMLFile, true)
	if err != nil {
		return nil, err
	}
	meta, err := read(MetadataFile, false)
	if err != nil {
		return nil, err
	}

	return Decode(id, screenshot, html, meta)
}
