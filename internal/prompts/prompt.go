// Package prompts holds the instructions sent to the classification
// capability and stores named per-stage overrides. The output contract for
// each stage is fixed; only the instructions can be overridden.
package prompts

import "github.com/google/uuid"

// Prompt is a named instruction override for a stage. At most one prompt
// per stage is active.
type Prompt struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Stage        Stage     `json:"stage"`
	Instructions string    `json:"instructions"`
	Description  *string   `json:"description"`
	Active       bool      `json:"active"`
}

// Command carries the fields for creating or replacing an override.
type Command struct {
	Name         string  `json:"name"`
	Stage        Stage   `json:"stage"`
	Instructions string  `json:"instructions"`
	Description  *string `json:"description"`
}

// Validate reports missing required fields.
func (c Command) Validate() error {
	if c.Name == "" {
		return ErrIncomplete
	}
	if _, err := ParseStage(string(c.Stage)); err != nil {
		return err
	}
	if c.Instructions == "" {
		return ErrIncomplete
	}
	return nil
}
