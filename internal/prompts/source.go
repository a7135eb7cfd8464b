package prompts

import (
	"context"
	"fmt"
)

// Source resolves the instructions in effect for a stage.
type Source interface {
	Instructions(ctx context.Context, stage Stage) (string, error)
}

type defaults struct{}

// Defaults returns a Source serving the built-in instructions.
func Defaults() Source {
	return defaults{}
}

func (defaults) Instructions(_ context.Context, stage Stage) (string, error) {
	return Instructions(stage)
}

// Compose builds the system prompt for a stage: the effective instructions
// followed by the fixed output contract.
func Compose(ctx context.Context, src Source, stage Stage) (string, error) {
	if src == nil {
		src = Defaults()
	}

	text, err := src.Instructions(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("resolve %s instructions: %w", stage, err)
	}

	spec, err := Spec(stage)
	if err != nil {
		return "", err
	}

	return text + "\n\n" + spec, nil
}
