// Package extractor pulls field values for accepted component instances out
// of the captured HTML. Extraction is pure: it never touches the network and
// identical inputs produce identical records.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
)

// ErrParse is returned when the capture HTML cannot be parsed.
var ErrParse = errors.New("parse capture html")

// Warning messages attached to records.
const (
	WarnAnchorMissing  = "anchor selector matched nothing"
	WarnScopeFallback  = "component not located; extracted from document body"
	WarnRequired       = "required field not found"
	WarnSelector       = "invalid selector"
	WarnUnsupportedURL = "unsupported or malformed url"
)

// XPathPrefix marks a field selector as an XPath expression.
const XPathPrefix = "xpath:"

// landmarks are the elements considered when locating a component by its
// text hint.
const landmarks = "header, footer, nav, main, section, article, aside, figure, form, li, div"

// stripped elements never contribute text.
const stripped = "script, style, noscript, template"

var defaultSelectors = map[taxonomy.FieldType]string{
	taxonomy.FieldText:     "h1, h2, h3, h4, h5, h6, p",
	taxonomy.FieldRichText: "",
	taxonomy.FieldURL:      "a[href]",
	taxonomy.FieldImage:    "img",
	taxonomy.FieldList:     "li",
}

// Extractor builds content records. It is safe for concurrent use.
type Extractor struct {
	policy *bluemonday.Policy
	logger *slog.Logger
}

// New creates an Extractor sanitizing rich text with the UGC policy.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		policy: bluemonday.UGCPolicy(),
		logger: logger.With("system", "extractor"),
	}
}

// Page is a parsed capture ready for repeated extraction.
type Page struct {
	doc    *goquery.Document
	base   *url.URL
	policy *bluemonday.Policy
}

// Load parses the artifact HTML once for any number of extractions.
func (x *Extractor) Load(artifact *capture.Artifact) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(artifact.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, artifact.ID, err)
	}
	doc.Find(stripped).Remove()

	return &Page{
		doc:    doc,
		base:   artifact.BaseURL(),
		policy: x.policy,
	}, nil
}

// Extract loads artifact and extracts a single record.
func (x *Extractor) Extract(inst component.Instance, entry taxonomy.Entry, artifact *capture.Artifact) (component.ContentRecord, error) {
	page, err := x.Load(artifact)
	if err != nil {
		return component.ContentRecord{}, err
	}
	return page.Extract(inst, entry), nil
}

// Extract builds the record for inst typed as entry. Missing required fields
// produce warnings; missing optional fields are omitted.
func (p *Page) Extract(inst component.Instance, entry taxonomy.Entry) component.ContentRecord {
	rec := component.ContentRecord{
		Instance: inst.Ref(),
		TypeID:   entry.ID,
		Fields:   make(map[string]any, len(entry.Fields)),
		Warnings: []component.Warning{},
	}

	scope, warnings := p.locate(inst)
	rec.Warnings = append(rec.Warnings, warnings...)

	for _, f := range entry.Fields {
		value, warn := p.field(scope, f)
		if warn != "" {
			rec.Warnings = append(rec.Warnings, component.Warning{Field: f.Name, Message: warn})
		}
		if value != nil {
			rec.Fields[f.Name] = value
			continue
		}
		if f.Required {
			rec.Warnings = append(rec.Warnings, component.Warning{Field: f.Name, Message: WarnRequired})
		}
	}

	return rec
}

// locate resolves the instance scope: the anchor selector, then the smallest
// landmark whose text contains the text hint, then the document body.
func (p *Page) locate(inst component.Instance) (*goquery.Selection, []component.Warning) {
	var warnings []component.Warning

	if anchor := strings.TrimSpace(inst.Anchor); anchor != "" {
		nodes, err := match(p.doc.Selection, anchor)
		if err == nil {
			for _, n := range nodes {
				if !detached(n) && n.Type == html.ElementNode {
					return p.doc.FindNodes(n), warnings
				}
			}
		}
		warnings = append(warnings, component.Warning{Message: fmt.Sprintf("%s: %q", WarnAnchorMissing, anchor)})
	}

	if hint := normalizeSpace(strings.ToLower(inst.TextHint)); hint != "" {
		var (
			best    *goquery.Selection
			bestLen int
		)
		p.doc.Find(landmarks).Each(func(_ int, s *goquery.Selection) {
			text := normalizeSpace(strings.ToLower(s.Text()))
			if !strings.Contains(text, hint) {
				return
			}
			if best == nil || len(text) < bestLen {
				best, bestLen = s, len(text)
			}
		})
		if best != nil {
			return best, warnings
		}
	}

	warnings = append(warnings, component.Warning{Message: WarnScopeFallback})
	return p.doc.Find("body").First(), warnings
}
