// Package taxonomy loads and indexes the target component type catalog.
// A Registry is immutable after Load and safe for concurrent reads.
package taxonomy

import (
	"slices"
	"strings"
)

// FieldType is the semantic type a field value is coerced to.
type FieldType string

// Supported semantic field types.
const (
	FieldText     FieldType = "text"
	FieldRichText FieldType = "rich_text"
	FieldURL      FieldType = "url"
	FieldImage    FieldType = "image"
	FieldList     FieldType = "list"
)

var fieldTypes = []FieldType{
	FieldText,
	FieldRichText,
	FieldURL,
	FieldImage,
	FieldList,
}

// ParseFieldType normalizes s ("rich-text" and "rich_text" are equivalent)
// and reports whether it names a supported type.
func ParseFieldType(s string) (FieldType, bool) {
	t := FieldType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	return t, slices.Contains(fieldTypes, t)
}

// Position is an explicit reordering rule applied during assembly.
type Position string

// Position values. The zero value keeps source order.
const (
	PositionSource Position = ""
	PositionFirst  Position = "first"
	PositionLast   Position = "last"
)

// Field declares one target field of a component type.
// Selector is a CSS selector, or an XPath expression when prefixed with "xpath:".
// Attr overrides the attribute read for url and image fields.
type Field struct {
	Name     string    `toml:"name" json:"name"`
	Type     FieldType `toml:"type" json:"type"`
	Required bool      `toml:"required" json:"required"`
	Selector string    `toml:"selector" json:"selector,omitempty"`
	Attr     string    `toml:"attr" json:"attr,omitempty"`
}

// Entry is one target component type definition.
type Entry struct {
	ID          string   `toml:"id" json:"id"`
	Description string   `toml:"description" json:"description"`
	Keywords    []string `toml:"keywords" json:"keywords,omitempty"`
	Parent      string   `toml:"parent" json:"parent,omitempty"`
	Position    Position `toml:"position" json:"position,omitempty"`
	Fields      []Field  `toml:"fields" json:"fields"`
}

// Field returns the named field declaration.
func (e Entry) Field(name string) (Field, bool) {
	i := slices.IndexFunc(e.Fields, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return e.Fields[i], true
}

// Terms returns the lowercased identifier and keywords used for lexical
// matching. Hyphens and underscores in the identifier also match as spaces.
func (e Entry) Terms() []string {
	terms := []string{strings.ToLower(e.ID)}
	if spaced := strings.NewReplacer("-", " ", "_", " ").Replace(terms[0]); spaced != terms[0] {
		terms = append(terms, spaced)
	}
	for _, k := range e.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			terms = append(terms, k)
		}
	}
	slices.Sort(terms)
	return slices.Compact(terms)
}
