package prompts

import (
	"encoding/json"
	"slices"
)

// Stage identifies the pipeline call site a prompt drives.
type Stage string

// Stages that invoke the classification capability.
const (
	StageSegment Stage = "segment"
	StageMap     Stage = "map"
)

var stages = []Stage{
	StageSegment,
	StageMap,
}

// Stages returns the list of prompt-driven stages.
func Stages() []Stage {
	return stages
}

// UnmarshalJSON rejects unknown stage values.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStage validates a string as a known stage.
func ParseStage(s string) (Stage, error) {
	v := Stage(s)
	if !slices.Contains(stages, v) {
		return "", ErrInvalidStage
	}
	return v, nil
}
