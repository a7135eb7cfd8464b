package taxonomy_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/justinbach/migration-pipeline/internal/taxonomy"
)

const heroTOML = `
id = "hero"
description = "Full-width banner with headline and call to action"
keywords = ["banner", "jumbotron"]

[[fields]]
name = "headline"
type = "text"
required = true
selector = "h1"

[[fields]]
name = "cta"
type = "url"
selector = "a.button"
`

const cardJSON = `{
  "id": "card",
  "description": "Teaser card",
  "parent": "hero",
  "fields": [
    {"name": "title", "type": "text", "required": true},
    {"name": "body", "type": "rich-text"}
  ]
}`

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"taxonomy/hero.toml": {Data: []byte(heroTOML)},
		"taxonomy/card.json": {Data: []byte(cardJSON)},
		"taxonomy/README.md": {Data: []byte("ignored")},
	}

	reg, err := taxonomy.Load(fsys, "taxonomy")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reg.Len())
	}

	entries := reg.Entries()
	if entries[0].ID != "card" || entries[1].ID != "hero" {
		t.Errorf("Entries not sorted: %s, %s", entries[0].ID, entries[1].ID)
	}

	card, err := reg.Lookup("card")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	body, ok := card.Field("body")
	if !ok {
		t.Fatal("card body field missing")
	}
	if body.Type != taxonomy.FieldRichText {
		t.Errorf("body type = %s, want rich_text", body.Type)
	}
	if card.Parent != "hero" {
		t.Errorf("parent = %q, want hero", card.Parent)
	}

	hero, _ := reg.Lookup("hero")
	if hero.Fields[0].Name != "headline" || hero.Fields[1].Name != "cta" {
		t.Error("field declaration order not preserved")
	}
}

func TestLoadSchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name: "duplicate identifier",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte(heroTOML)},
				"t/b.toml": {Data: []byte(heroTOML)},
			},
			want: "duplicate identifier",
		},
		{
			name: "unknown field type",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte("id = \"x\"\n[[fields]]\nname = \"f\"\ntype = \"video\"\n")},
			},
			want: "unknown type",
		},
		{
			name: "missing fields",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte("id = \"x\"\ndescription = \"no fields\"\n")},
			},
			want: "at least one field",
		},
		{
			name: "duplicate field name",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte("id = \"x\"\n[[fields]]\nname = \"f\"\ntype = \"text\"\n[[fields]]\nname = \"f\"\ntype = \"list\"\n")},
			},
			want: "duplicate name",
		},
		{
			name: "unknown key",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte("id = \"x\"\ncolour = \"red\"\n[[fields]]\nname = \"f\"\ntype = \"text\"\n")},
			},
			want: "parse toml",
		},
		{
			name: "unknown parent",
			files: fstest.MapFS{
				"t/a.json": {Data: []byte(cardJSON)},
			},
			want: "unknown parent",
		},
		{
			name: "invalid position",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte("id = \"x\"\nposition = \"middle\"\n[[fields]]\nname = \"f\"\ntype = \"text\"\n")},
			},
			want: "invalid position",
		},
		{
			name: "attr on text field",
			files: fstest.MapFS{
				"t/a.toml": {Data: []byte("id = \"x\"\n[[fields]]\nname = \"f\"\ntype = \"text\"\nattr = \"href\"\n")},
			},
			want: "attr only applies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := taxonomy.Load(tt.files, "t")
			if !errors.Is(err, taxonomy.ErrSchema) {
				t.Fatalf("err = %v, want ErrSchema", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestNewParentCycle(t *testing.T) {
	field := []taxonomy.Field{{Name: "f", Type: taxonomy.FieldText}}
	_, err := taxonomy.New(
		taxonomy.Entry{ID: "a", Parent: "b", Fields: field},
		taxonomy.Entry{ID: "b", Parent: "a", Fields: field},
	)
	if !errors.Is(err, taxonomy.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
}

func TestLookupNotFound(t *testing.T) {
	reg, err := taxonomy.New(taxonomy.Entry{ID: "a", Fields: []taxonomy.Field{{Name: "f", Type: "text"}}})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := reg.Lookup("missing"); !errors.Is(err, taxonomy.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentLookup(t *testing.T) {
	reg, err := taxonomy.New(taxonomy.Entry{ID: "a", Fields: []taxonomy.Field{{Name: "f", Type: "text"}}})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			if _, err := reg.Lookup("a"); err != nil {
				t.Errorf("Lookup error: %v", err)
			}
		})
	}
	wg.Wait()
}

func TestTermsAndCatalog(t *testing.T) {
	e := taxonomy.Entry{
		ID:          "call-to-action",
		Description: "Button block",
		Keywords:    []string{"CTA", " Button "},
		Fields:      []taxonomy.Field{{Name: "f", Type: "text"}},
	}

	terms := e.Terms()
	want := []string{"button", "call to action", "call-to-action", "cta"}
	if strings.Join(terms, "|") != strings.Join(want, "|") {
		t.Errorf("Terms = %v, want %v", terms, want)
	}

	reg, _ := taxonomy.New(e)
	if !strings.Contains(reg.Catalog(), "- call-to-action: Button block (keywords: CTA, Button)") {
		t.Errorf("Catalog = %q", reg.Catalog())
	}
}

func TestLoadDirSamples(t *testing.T) {
	reg, err := taxonomy.LoadDir("../../taxonomy")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	for _, id := range []string{"header", "hero", "paragraph", "footer"} {
		if _, err := reg.Lookup(id); err != nil {
			t.Errorf("Lookup(%q): %v", id, err)
		}
	}
}
