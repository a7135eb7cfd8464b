package prompts

const segmentSpec = `Respond with a JSON object matching this exact structure:

{
  "page_summary": "<one sentence>",
  "components": [
    {
      "label": "<semantic label>",
      "description": "<what it shows>",
      "region": {"x": 0, "y": 0, "width": 0, "height": 0},
      "anchor": "<css selector or empty>",
      "text_hint": "<visible text or empty>",
      "content_summary": "<headlines, images, CTAs>",
      "visual_notes": "<layout, colors, icons>"
    }
  ]
}

Field constraints:
- components: at least one entry, ordered top to bottom then left to right.
- label: required, lowercase, hyphen-separated.
- region: integer pixel coordinates within the screenshot; width and height must be positive.
- anchor: must be a selector that exists in the supplied HTML, or an empty string.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Do not invent components that are not visible in the screenshot`

const mapSpec = `Respond with a JSON object matching this exact structure:

{
  "type": "<taxonomy type id or none>",
  "confidence": 0.0,
  "rationale": "<explanation>"
}

Field constraints:
- type: one of the candidate taxonomy ids exactly as listed, or "none".
- confidence: number between 0 and 1.
- rationale: one or two sentences citing the evidence used.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Never answer with a type that is not in the candidate list`

var specs = map[Stage]string{
	StageSegment: segmentSpec,
	StageMap:     mapSpec,
}

// Spec returns the output contract for a stage.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}
