package main

import (
	"errors"
	"testing"

	"github.com/justinbach/migration-pipeline/internal/pipeline"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name  string
		items []pipeline.BatchItem
		err   error
		want  int
	}{
		{"all terminal", []pipeline.BatchItem{
			{CaptureID: "a", Result: &pipeline.Result{Status: pipeline.StatusPass}},
			{CaptureID: "b", Result: &pipeline.Result{Status: pipeline.StatusReview}},
			{CaptureID: "c", Result: &pipeline.Result{Status: pipeline.StatusFail}},
		}, nil, 0},
		{"aborted run", []pipeline.BatchItem{
			{CaptureID: "a", Result: &pipeline.Result{Status: pipeline.StatusAborted}},
		}, nil, 1},
		{"item error", []pipeline.BatchItem{{CaptureID: "a", Error: "capture not found"}}, nil, 1},
		{"interrupted", nil, errors.New("context canceled"), 1},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.items, tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}
