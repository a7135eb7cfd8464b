package prompts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/justinbach/migration-pipeline/internal/prompts"
	"github.com/justinbach/migration-pipeline/pkg/pagination"
)

type mockSystem struct {
	listFn         func(ctx context.Context, page pagination.PageRequest, filters prompts.Filters) (*pagination.PageResult[prompts.Prompt], error)
	findFn         func(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error)
	instructionsFn func(ctx context.Context, stage prompts.Stage) (string, error)
	createFn       func(ctx context.Context, cmd prompts.Command) (*prompts.Prompt, error)
	updateFn       func(ctx context.Context, id uuid.UUID, cmd prompts.Command) (*prompts.Prompt, error)
	deleteFn       func(ctx context.Context, id uuid.UUID) error
	activateFn     func(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error)
	deactivateFn   func(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error)
}

func (m *mockSystem) Handler() *prompts.Handler { return newTestHandler(m) }

func (m *mockSystem) List(ctx context.Context, page pagination.PageRequest, filters prompts.Filters) (*pagination.PageResult[prompts.Prompt], error) {
	return m.listFn(ctx, page, filters)
}

func (m *mockSystem) Find(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error) {
	return m.findFn(ctx, id)
}

func (m *mockSystem) Instructions(ctx context.Context, stage prompts.Stage) (string, error) {
	return m.instructionsFn(ctx, stage)
}

func (m *mockSystem) Create(ctx context.Context, cmd prompts.Command) (*prompts.Prompt, error) {
	return m.createFn(ctx, cmd)
}

func (m *mockSystem) Update(ctx context.Context, id uuid.UUID, cmd prompts.Command) (*prompts.Prompt, error) {
	return m.updateFn(ctx, id, cmd)
}

func (m *mockSystem) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

func (m *mockSystem) Activate(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error) {
	return m.activateFn(ctx, id)
}

func (m *mockSystem) Deactivate(ctx context.Context, id uuid.UUID) (*prompts.Prompt, error) {
	return m.deactivateFn(ctx, id)
}

func newTestHandler(sys prompts.System) *prompts.Handler {
	return prompts.NewHandler(
		sys,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		pagination.Config{DefaultPageSize: 20, MaxPageSize: 100},
	)
}

func setupMux(h *prompts.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		pattern := route.Method + " " + group.Prefix + route.Pattern
		mux.HandleFunc(pattern, route.Handler)
	}
	return mux
}

func samplePrompt() prompts.Prompt {
	return prompts.Prompt{
		ID:           uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Name:         "strict-map",
		Stage:        prompts.StageMap,
		Instructions: "Prefer the most specific type.",
		Description:  ptr("Biases toward leaf types"),
	}
}

func TestHandlerList(t *testing.T) {
	p := samplePrompt()
	var captured prompts.Filters
	sys := &mockSystem{
		listFn: func(_ context.Context, _ pagination.PageRequest, f prompts.Filters) (*pagination.PageResult[prompts.Prompt], error) {
			captured = f
			result := pagination.NewPageResult([]prompts.Prompt{p}, 1, 1, 20)
			return &result, nil
		},
	}

	rec := httptest.NewRecorder()
	setupMux(newTestHandler(sys)).ServeHTTP(rec, httptest.NewRequest("GET", "/prompts?stage=map", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var result pagination.PageResult[prompts.Prompt]
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Total != 1 || result.Data[0].ID != p.ID {
		t.Errorf("result = %+v", result)
	}
	if captured.Stage == nil || *captured.Stage != prompts.StageMap {
		t.Errorf("stage filter = %v", captured.Stage)
	}
}

func TestHandlerFind(t *testing.T) {
	p := samplePrompt()
	sys := &mockSystem{
		findFn: func(_ context.Context, id uuid.UUID) (*prompts.Prompt, error) {
			if id == p.ID {
				return &p, nil
			}
			return nil, prompts.ErrNotFound
		},
	}
	mux := setupMux(newTestHandler(sys))

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/prompts/" + p.ID.String(), http.StatusOK},
		{"missing", "/prompts/" + uuid.NewString(), http.StatusNotFound},
		{"malformed id", "/prompts/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandlerStageContent(t *testing.T) {
	sys := &mockSystem{
		instructionsFn: func(_ context.Context, stage prompts.Stage) (string, error) {
			return "override for " + string(stage), nil
		},
	}
	mux := setupMux(newTestHandler(sys))

	t.Run("instructions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/prompts/stages/segment/instructions", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got prompts.StageContent
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Stage != prompts.StageSegment || got.Content != "override for segment" {
			t.Errorf("content = %+v", got)
		}
	})

	t.Run("spec", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/prompts/stages/map/spec", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("unknown stage", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/prompts/stages/enhance/spec", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandlerCreate(t *testing.T) {
	var captured prompts.Command
	sys := &mockSystem{
		createFn: func(_ context.Context, cmd prompts.Command) (*prompts.Prompt, error) {
			captured = cmd
			p := samplePrompt()
			return &p, nil
		},
	}
	mux := setupMux(newTestHandler(sys))

	t.Run("created", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"name":         "strict-map",
			"stage":        "map",
			"instructions": "Prefer the most specific type.",
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/prompts", bytes.NewReader(body)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if captured.Stage != prompts.StageMap {
			t.Errorf("stage = %q", captured.Stage)
		}
	})

	t.Run("invalid stage rejected at decode", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/prompts", bytes.NewBufferString(`{"name":"x","stage":"enhance"}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandlerActivateAndDelete(t *testing.T) {
	p := samplePrompt()
	sys := &mockSystem{
		activateFn: func(_ context.Context, id uuid.UUID) (*prompts.Prompt, error) {
			active := p
			active.Active = true
			return &active, nil
		},
		deleteFn: func(_ context.Context, id uuid.UUID) error {
			return prompts.ErrNotFound
		},
	}
	mux := setupMux(newTestHandler(sys))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/prompts/"+p.ID.String()+"/activate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d", rec.Code)
	}
	var got prompts.Prompt
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil || !got.Active {
		t.Errorf("activate body = %+v, %v", got, err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("DELETE", "/prompts/"+p.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete status = %d, want 404", rec.Code)
	}
}
