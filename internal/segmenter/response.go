package segmenter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/component"
	"github.com/justinbach/migration-pipeline/pkg/formatting"
)

type regionReply struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type componentReply struct {
	Label          string       `json:"label"`
	Type           string       `json:"type"`
	Description    string       `json:"description"`
	Region         *regionReply `json:"region"`
	Anchor         string       `json:"anchor"`
	TextHint       string       `json:"text_hint"`
	ContentSummary string       `json:"content_summary"`
	VisualNotes    string       `json:"visual_notes"`
}

type segmentReply struct {
	PageSummary string           `json:"page_summary"`
	Components  []componentReply `json:"components"`
}

// parse validates a reply and converts it into ordered instances. Any
// invalid component rejects the whole reply.
func parse(runID uuid.UUID, content string) ([]component.Instance, error) {
	components, err := decode(content)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: no components", ErrMalformedResponse)
	}

	instances := make([]component.Instance, 0, len(components))
	for i, c := range components {
		label := normalizeLabel(c.Label)
		if label == "" {
			label = normalizeLabel(c.Type)
		}
		if label == "" {
			return nil, fmt.Errorf("%w: component %d has no label", ErrMalformedResponse, i)
		}
		if c.Region == nil {
			return nil, fmt.Errorf("%w: component %d (%s) has no region", ErrMalformedResponse, i, label)
		}

		region := component.Region{X: c.Region.X, Y: c.Region.Y, Width: c.Region.Width, Height: c.Region.Height}
		if region.Empty() {
			return nil, fmt.Errorf("%w: component %d (%s) has non-positive size %dx%d",
				ErrMalformedResponse, i, label, region.Width, region.Height)
		}

		instances = append(instances, component.Instance{
			Region:      region,
			Label:       label,
			Observation: observation(c),
			Anchor:      strings.TrimSpace(c.Anchor),
			TextHint:    strings.TrimSpace(c.TextHint),
		})
	}

	sortByPosition(instances)
	for i := range instances {
		instances[i].Ordinal = i + 1
		instances[i].ID = InstanceID(runID, i+1)
	}

	return instances, nil
}

// decode accepts either the documented object form or a bare component array.
func decode(content string) ([]componentReply, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	if reply, err := formatting.Parse[segmentReply](content); err == nil && reply.Components != nil {
		return reply.Components, nil
	}

	list, err := formatting.Parse[[]componentReply](content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return list, nil
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func observation(c componentReply) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Description, c.ContentSummary, c.VisualNotes} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "; ")
}
