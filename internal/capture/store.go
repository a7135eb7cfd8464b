package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/justinbach/migration-pipeline/pkg/storage"
)

// StorePrefix is the blob key prefix for capture bundles.
const StorePrefix = "captures/"

// StoreSource reads and writes bundles in blob storage under captures/<id>/.
type StoreSource struct {
	storage storage.System
	logger  *slog.Logger
}

// NewStoreSource creates a StoreSource over the given storage system.
func NewStoreSource(sys storage.System, logger *slog.Logger) *StoreSource {
	return &StoreSource{
		storage: sys,
		logger:  logger.With("system", "capture"),
	}
}

func key(id, name string) string {
	return StorePrefix + id + "/" + name
}

// List returns the identifiers of bundles with an uploaded page.html.
func (s *StoreSource) List(ctx context.Context) ([]string, error) {
	blobs, err := s.storage.List(ctx, StorePrefix)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}

	var ids []string
	for _, b := range blobs {
		rest := strings.TrimPrefix(b.Key, StorePrefix)
		id, name, ok := strings.Cut(rest, "/")
		if ok && name == HTMLFile && ValidID(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Load downloads and decodes a bundle.
func (s *StoreSource) Load(ctx context.Context, id string) (*Artifact, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: invalid capture id %q", ErrInvalidBundle, id)
	}

	read := func(name string, required bool) ([]byte, error) {
		data, err := storage.ReadAll(ctx, s.storage, key(id, name))
		if errors.Is(err, storage.ErrNotFound) {
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

// Save validates and stores a bundle. Existing bundles are never overwritten.
// The HTML is written last so List only reports complete bundles.
func (s *StoreSource) Save(ctx context.Context, id string, screenshot, html, metadata []byte) (*Artifact, error) {
	a, err := Decode(id, screenshot, html, metadata)
	if err != nil {
		return nil, err
	}

	exists, err := s.storage.Exists(ctx, key(id, HTMLFile))
	if err != nil {
		return nil, fmt.Errorf("check capture %s: %w", id, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	files := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{ScreenshotFile, screenshot, a.MediaType},
		{MetadataFile, metadata, "application/json"},
		{HTMLFile, html, "text/html"},
	}

	var written []string
	for _, f := range files {
		if len(f.data) == 0 {
			continue
		}
		k := key(id, f.name)
		if err := s.storage.Upload(ctx, k, bytes.NewReader(f.data), f.contentType); err != nil {
			for _, w := range written {
				if delErr := s.storage.Delete(ctx, w); delErr != nil {
					s.logger.Warn("compensating blob delete failed", "key", w, "error", delErr)
				}
			}
			return nil, fmt.Errorf("store capture %s: %w", path.Base(k), err)
		}
		written = append(written, k)
	}

	s.logger.Info("capture stored", "id", id, "url", a.Metadata.URL, "bytes", len(screenshot)+len(html))
	return a, nil
}
