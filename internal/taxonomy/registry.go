package taxonomy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Registry indexes taxonomy entries by identifier.
type Registry struct {
	entries map[string]Entry
	ids     []string
}

// LoadDir loads every *.toml and *.json entry file in dir.
func LoadDir(dir string) (*Registry, error) {
	return Load(os.DirFS(dir), ".")
}

// Load reads one entry definition per *.toml or *.json file under dir in fsys.
// Files are read in lexical order. Returns an error wrapping ErrSchema for
// duplicate identifiers or malformed field schemas.
func Load(fsys fs.FS, dir string) (*Registry, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy source %s: %w", dir, err)
	}

	var entries []Entry
	sources := make(map[string]string)

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		name := path.Join(dir, f.Name())
		ext := strings.ToLower(path.Ext(name))
		if ext != ".toml" && ext != ".json" {
			continue
		}

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read taxonomy entry %s: %w", name, err)
		}

		entry, err := decodeEntry(data, ext)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSchema, name, err)
		}

		if prior, ok := sources[entry.ID]; ok {
			return nil, fmt.Errorf("%w: %s: duplicate identifier %q (first defined in %s)", ErrSchema, name, entry.ID, prior)
		}
		sources[entry.ID] = name
		entries = append(entries, entry)
	}

	return New(entries...)
}

// New builds a Registry from entries, applying the same validation as Load.
func New(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}

	for _, e := range entries {
		e = normalize(e)
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %w", ErrSchema, e.ID, err)
		}
		if _, ok := r.entries[e.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate identifier %q", ErrSchema, e.ID)
		}
		r.entries[e.ID] = e
		r.ids = append(r.ids, e.ID)
	}

	for _, e := range r.entries {
		if e.Parent == "" {
			continue
		}
		if e.Parent == e.ID {
			return nil, fmt.Errorf("%w: entry %q: cannot be its own parent", ErrSchema, e.ID)
		}
		if _, ok := r.entries[e.Parent]; !ok {
			return nil, fmt.Errorf("%w: entry %q: unknown parent %q", ErrSchema, e.ID, e.Parent)
		}
	}

	if err := r.checkCycles(); err != nil {
		return nil, err
	}

	slices.Sort(r.ids)
	return r, nil
}

// Lookup returns the entry for id or ErrNotFound.
func (r *Registry) Lookup(id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Entries returns all entries sorted by identifier.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.ids))
	for i, id := range r.ids {
		out[i] = r.entries[id]
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Catalog renders the entries as classifier context, one line per type.
func (r *Registry) Catalog() string {
	var sb strings.Builder
	for _, e := range r.Entries() {
		fmt.Fprintf(&sb, "- %s: %s", e.ID, e.Description)
		if len(e.Keywords) > 0 {
			fmt.Fprintf(&sb, " (keywords: %s)", strings.Join(e.Keywords, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *Registry) checkCycles() error {
	for _, id := range r.ids {
		seen := map[string]bool{id: true}
		for cur := r.entries[id].Parent; cur != ""; cur = r.entries[cur].Parent {
			if seen[cur] {
				return fmt.Errorf("%w: entry %q: parent cycle through %q", ErrSchema, id, cur)
			}
			seen[cur] = true
		}
	}
	return nil
}

func decodeEntry(data []byte, ext string) (Entry, error) {
	var e Entry
	switch ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return e, fmt.Errorf("parse toml: %w", err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return e, fmt.Errorf("parse json: %w", err)
		}
	}
	return e, nil
}

func normalize(e Entry) Entry {
	e.ID = strings.TrimSpace(e.ID)
	e.Parent = strings.TrimSpace(e.Parent)
	e.Position = Position(strings.ToLower(strings.TrimSpace(string(e.Position))))

	keywords := make([]string, 0, len(e.Keywords))
	for _, k := range e.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	e.Keywords = keywords

	fields := make([]Field, len(e.Fields))
	for i, f := range e.Fields {
		f.Name = strings.TrimSpace(f.Name)
		if t, ok := ParseFieldType(string(f.Type)); ok {
			f.Type = t
		}
		fields[i] = f
	}
	e.Fields = fields
	return e
}

func validateEntry(e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("id required")
	}
	switch e.Position {
	case PositionSource, PositionFirst, PositionLast:
	default:
		return fmt.Errorf("invalid position %q", e.Position)
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("at least one field required")
	}

	names := make(map[string]bool, len(e.Fields))
	for i, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d: name required", i)
		}
		if names[f.Name] {
			return fmt.Errorf("field %q: duplicate name", f.Name)
		}
		names[f.Name] = true

		if _, ok := ParseFieldType(string(f.Type)); !ok {
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Attr != "" && f.Type != FieldURL && f.Type != FieldImage {
			return fmt.Errorf("field %q: attr only applies to url and image fields", f.Name)
		}
	}
	return nil
}
