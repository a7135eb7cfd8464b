package prompts

const segmentInstructions = `You are analyzing a screenshot of a captured webpage to identify every visually distinct UI component.

Work from the top of the page to the bottom. For each component, record:
- a short semantic label (e.g., "header", "hero-banner", "feature-card", "cta-button", "footer")
- a brief description of what the component displays or does
- its bounding box in screenshot pixels
- a CSS selector from the supplied HTML that most likely encloses the component, when one is apparent
- a short verbatim text snippet visible inside the component, when it contains text
- key content elements and notable visual styling

Report repeated patterns (cards in a grid, list items) as one component per visible instance.
Include navigation, footers and floating or sticky elements. Marketing pages often contain 10-20 components.`

const mapInstructions = `You are mapping one detected webpage component onto a fixed content-management taxonomy.

You are given the component's detected label, its description, a text excerpt and the list of candidate taxonomy types with their descriptions and keywords.
Choose the single taxonomy type that best represents the component's role and content. If no type fits, answer "none".
Your confidence must reflect how unambiguous the match is: near 1.0 for a clear match, below 0.5 when several types fit equally well or the evidence is thin.`

var instructions = map[Stage]string{
	StageSegment: segmentInstructions,
	StageMap:     mapInstructions,
}

// Instructions returns the built-in instructions for a stage.
func Instructions(stage Stage) (string, error) {
	text, ok := instructions[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}
