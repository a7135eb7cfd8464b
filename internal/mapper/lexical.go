package mapper

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/internal/taxonomy"
)

// Lexical scores.
const (
	exactScore      = 0.95
	labelScore      = 0.75
	labelStep       = 0.05
	contextScore    = 0.40
	contextStep     = 0.03
	maxExtraHits    = 2
	maxContextBonus = 3
)

// Candidate is a taxonomy type matched lexically against an instance.
type Candidate struct {
	TypeID string   `json:"type"`
	Score  float64  `json:"score"`
	Terms  []string `json:"terms"`
	Exact  bool     `json:"exact"`
}

// lexicon is an Aho-Corasick automaton over every taxonomy term. Terms are
// padded with spaces so hits fall on word boundaries of normalized text.
type lexicon struct {
	matcher *ahocorasick.Matcher
	terms   []string
	owners  map[string][]string
}

func newLexicon(entries []taxonomy.Entry) *lexicon {
	lx := &lexicon{
		owners: make(map[string][]string),
	}

	for _, e := range entries {
		for _, term := range e.Terms() {
			norm := normalizeText(term)
			if norm == "" {
				continue
			}
			if _, seen := lx.owners[norm]; !seen {
				lx.terms = append(lx.terms, norm)
			}
			if !slices.Contains(lx.owners[norm], e.ID) {
				lx.owners[norm] = append(lx.owners[norm], e.ID)
			}
		}
	}

	if len(lx.terms) > 0 {
		padded := make([]string, len(lx.terms))
		for i, t := range lx.terms {
			padded[i] = " " + t + " "
		}
		lx.matcher = ahocorasick.NewStringMatcher(padded)
	}
	return lx
}

// hits returns the distinct terms found in text.
func (lx *lexicon) hits(text string) []string {
	if lx.matcher == nil || text == "" {
		return nil
	}
	idx := lx.matcher.Match([]byte(" " + text + " "))
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, lx.terms[i])
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// score ranks candidate types for inst by descending score, then id.
func (lx *lexicon) score(inst component.Instance) []Candidate {
	label := normalizeText(inst.Label)
	surrounding := normalizeText(inst.Observation + " " + inst.TextHint)

	type tally struct {
		exact   bool
		label   []string
		context []string
	}
	byType := map[string]*tally{}
	get := func(id string) *tally {
		t, ok := byType[id]
		if !ok {
			t = &tally{}
			byType[id] = t
		}
		return t
	}

	for _, id := range lx.owners[label] {
		get(id).exact = true
	}
	for _, term := range lx.hits(label) {
		for _, id := range lx.owners[term] {
			t := get(id)
			t.label = append(t.label, term)
		}
	}
	for _, term := range lx.hits(surrounding) {
		for _, id := range lx.owners[term] {
			t := get(id)
			t.context = append(t.context, term)
		}
	}

	out := make([]Candidate, 0, len(byType))
	for id, t := range byType {
		var s float64
		switch {
		case t.exact:
			s = exactScore
		case len(t.label) > 0:
			s = labelScore + labelStep*float64(min(len(t.label)-1, maxExtraHits))
			s += contextStep * float64(min(len(t.context), maxContextBonus))
		default:
			s = contextScore + contextStep*float64(min(len(t.context)-1, maxContextBonus))
		}

		terms := slices.Concat(t.label, t.context)
		slices.Sort(terms)
		out = append(out, Candidate{
			TypeID: id,
			Score:  round(s),
			Terms:  slices.Compact(terms),
			Exact:  t.exact,
		})
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.TypeID, b.TypeID)
	})
	return out
}

// normalizeText lowercases s and collapses every run of non-alphanumerics
// to a single space.
func normalizeText(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func round(f float64) float64 {
	const scale = 1e6
	return float64(int64(f*scale+0.5)) / scale
}
