package extractor

import (
	"cmp"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
)

var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
	"tel":    true,
}

// field returns the coerced value of f within scope, or nil when absent. The
// second result is a warning message for a value that was found but unusable.
func (p *Page) field(scope *goquery.Selection, f taxonomy.Field) (any, string) {
	selector := f.Selector
	if selector == "" {
		selector = defaultSelectors[f.Type]
	}

	var matches []*html.Node
	if selector == "" {
		matches = scope.Nodes
	} else {
		found, err := match(scope, selector)
		if err != nil {
			return nil, fmt.Sprintf("%s: %v", WarnSelector, err)
		}
		matches = found
	}

	switch f.Type {
	case taxonomy.FieldText:
		for _, n := range matches {
			if text := textOf(n); text != "" {
				return text, ""
			}
		}

	case taxonomy.FieldRichText:
		for _, n := range matches {
			if n.Type != html.ElementNode {
				continue
			}
			clean := strings.TrimSpace(p.policy.Sanitize(htmlquery.OutputHTML(n, false)))
			if clean != "" {
				return clean, ""
			}
		}

	case taxonomy.FieldList:
		var items []string
		for _, n := range matches {
			if text := textOf(n); text != "" {
				items = append(items, text)
			}
		}
		if len(items) > 0 {
			return items, ""
		}

	case taxonomy.FieldURL:
		attr := cmp.Or(f.Attr, "href")
		for _, n := range matches {
			raw := attrOf(n, attr)
			if raw == "" {
				continue
			}
			u, ok := p.resolve(raw)
			if !ok {
				return nil, fmt.Sprintf("%s: %q", WarnUnsupportedURL, raw)
			}
			return u, ""
		}

	case taxonomy.FieldImage:
		attr := cmp.Or(f.Attr, "src")
		for _, n := range matches {
			raw := attrOf(n, attr)
			if raw == "" && f.Attr == "" {
				raw = attrOf(n, "data-src")
			}
			if raw == "" {
				continue
			}
			src, ok := p.resolve(raw)
			if !ok {
				return nil, fmt.Sprintf("%s: %q", WarnUnsupportedURL, raw)
			}
			return component.ImageRef{Src: src, Alt: normalizeSpace(attrOf(n, "alt"))}, ""
		}
	}

	return nil, ""
}

// match evaluates a CSS or xpath: selector against scope. CSS matches
// include scope itself. XPath attribute results come back as detached
// nodes holding the attribute value.
func match(scope *goquery.Selection, selector string) ([]*html.Node, error) {
	if expr, ok := strings.CutPrefix(selector, XPathPrefix); ok {
		var nodes []*html.Node
		for _, root := range scope.Nodes {
			found, err := htmlquery.QueryAll(root, strings.TrimSpace(expr))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, found...)
		}
		return nodes, nil
	}

	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	return scope.FilterMatcher(m).AddSelection(scope.FindMatcher(m)).Nodes, nil
}

// resolve makes raw absolute against the capture URL and enforces the
// allowed schemes.
func (p *Page) resolve(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if p.base != nil {
		u = p.base.ResolveReference(u)
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return "", false
	}
	return u.String(), true
}

// textOf returns the whitespace-normalized text of n. Attribute and text
// nodes returned by XPath queries yield their own value.
func textOf(n *html.Node) string {
	return normalizeSpace(htmlquery.InnerText(n))
}

func attrOf(n *html.Node, name string) string {
	if n.Type != html.ElementNode || detached(n) {
		return strings.TrimSpace(htmlquery.InnerText(n))
	}
	return strings.TrimSpace(htmlquery.SelectAttr(n, name))
}

// detached reports whether n is a synthetic XPath attribute node rather than
// an element of the parsed document.
func detached(n *html.Node) bool {
	return n.Parent == nil && n.Type == html.ElementNode &&
		n.FirstChild != nil && n.FirstChild == n.LastChild && n.FirstChild.Type == html.TextNode
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
