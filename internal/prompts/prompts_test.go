package prompts_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/justinbach/migration-pipeline/internal/prompts"
)

func ptr[T any](v T) *T { return &v }

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", prompts.ErrNotFound, http.StatusNotFound},
		{"duplicate", prompts.ErrDuplicate, http.StatusConflict},
		{"invalid stage", prompts.ErrInvalidStage, http.StatusBadRequest},
		{"incomplete", prompts.ErrIncomplete, http.StatusBadRequest},
		{"unknown error", errors.New("something else"), http.StatusInternalServerError},
		{"wrapped not found", fmt.Errorf("find failed: %w", prompts.ErrNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prompts.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestStageUnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    prompts.Stage
		wantErr bool
	}{
		{`"segment"`, prompts.StageSegment, false},
		{`"map"`, prompts.StageMap, false},
		{`"classify"`, "", true},
		{`42`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var s prompts.Stage
			err := json.Unmarshal([]byte(tt.input), &s)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s) = %q, want error", tt.input, s)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.input, err)
			}
			if s != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, s, tt.want)
			}
		})
	}
}

func TestBuiltInPrompts(t *testing.T) {
	for _, stage := range prompts.Stages() {
		t.Run(string(stage), func(t *testing.T) {
			text, err := prompts.Instructions(stage)
			if err != nil || text == "" {
				t.Fatalf("Instructions(%s) = %q, %v", stage, text, err)
			}
			spec, err := prompts.Spec(stage)
			if err != nil || !strings.Contains(spec, "valid JSON") {
				t.Fatalf("Spec(%s) = %q, %v", stage, spec, err)
			}
		})
	}

	if _, err := prompts.Instructions("enhance"); !errors.Is(err, prompts.ErrInvalidStage) {
		t.Errorf("Instructions(enhance) err = %v", err)
	}
}

type overrideSource map[prompts.Stage]string

func (o overrideSource) Instructions(_ context.Context, stage prompts.Stage) (string, error) {
	if text, ok := o[stage]; ok {
		return text, nil
	}
	return prompts.Instructions(stage)
}

func TestCompose(t *testing.T) {
	t.Run("defaults when source is nil", func(t *testing.T) {
		got, err := prompts.Compose(context.Background(), nil, prompts.StageSegment)
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		text, _ := prompts.Instructions(prompts.StageSegment)
		spec, _ := prompts.Spec(prompts.StageSegment)
		if got != text+"\n\n"+spec {
			t.Error("composed prompt does not join instructions and spec")
		}
	})

	t.Run("override replaces instructions only", func(t *testing.T) {
		src := overrideSource{prompts.StageMap: "Pick a type."}
		got, err := prompts.Compose(context.Background(), src, prompts.StageMap)
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		if !strings.HasPrefix(got, "Pick a type.\n\n") {
			t.Errorf("prompt = %q", got[:40])
		}
		if !strings.Contains(got, `"confidence"`) {
			t.Error("output contract missing")
		}
	})

	t.Run("invalid stage", func(t *testing.T) {
		_, err := prompts.Compose(context.Background(), prompts.Defaults(), "finalize")
		if !errors.Is(err, prompts.ErrInvalidStage) {
			t.Errorf("err = %v, want ErrInvalidStage", err)
		}
	})
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name string
		cmd  prompts.Command
		want error
	}{
		{"valid", prompts.Command{Name: "terse", Stage: prompts.StageMap, Instructions: "x"}, nil},
		{"missing name", prompts.Command{Stage: prompts.StageMap, Instructions: "x"}, prompts.ErrIncomplete},
		{"missing instructions", prompts.Command{Name: "terse", Stage: prompts.StageMap}, prompts.ErrIncomplete},
		{"bad stage", prompts.Command{Name: "terse", Stage: "other", Instructions: "x"}, prompts.ErrInvalidStage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cmd.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFiltersFromQuery(t *testing.T) {
	f := prompts.FiltersFromQuery(url.Values{
		"stage":  {"segment"},
		"name":   {"terse"},
		"active": {"true"},
	})

	if f.Stage == nil || *f.Stage != prompts.StageSegment {
		t.Errorf("Stage = %v", f.Stage)
	}
	if f.Name == nil || *f.Name != "terse" {
		t.Errorf("Name = %v", f.Name)
	}
	if f.Active == nil || !*f.Active {
		t.Errorf("Active = %v", f.Active)
	}

	empty := prompts.FiltersFromQuery(url.Values{"stage": {"bogus"}, "active": {"maybe"}})
	if empty.Stage != nil || empty.Active != nil {
		t.Errorf("invalid values should be ignored: %+v", empty)
	}
}
