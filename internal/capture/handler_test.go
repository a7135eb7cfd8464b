package capture_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/justinbach/migration-pipeline/internal/capture"
	"github.com/justinbach/migration-pipeline/pkg/storage"
)

func setupMux(t *testing.T, maxUpload int64) *http.ServeMux {
	t.Helper()
	sys, err := storage.New(&storage.Config{Backend: storage.BackendLocal, Root: t.TempDir()}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	h := capture.NewHandler(capture.NewStoreSource(sys, discardLogger()), discardLogger(), maxUpload)

	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+group.Prefix+route.Pattern, route.Handler)
	}
	return mux
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandlerUpload(t *testing.T) {
	mux := setupMux(t, 10<<20)

	body, ct := multipartBody(t,
		map[string]string{"id": "landing", "metadata": sampleMetadata},
		map[string][]byte{"screenshot": pngBytes(t, 4, 4), "html": []byte("<h1>Landing</h1>")},
	)
	req := httptest.NewRequest("POST", "/captures", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var got capture.Artifact
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "landing" || got.Metadata.URL != "https://example.com/pricing" {
		t.Errorf("artifact = %+v", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/captures/landing", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("find status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/captures", nil))
	var ids []string
	if err := json.NewDecoder(rec.Body).Decode(&ids); err != nil || len(ids) != 1 {
		t.Errorf("list = %v, %v", ids, err)
	}
}

func TestHandlerUploadRejects(t *testing.T) {
	tests := []struct {
		name  string
		limit int64
		files map[string][]byte
		want  int
	}{
		{
			name:  "missing html",
			limit: 10 << 20,
			files: map[string][]byte{"screenshot": {0x89, 'P', 'N', 'G'}},
			want:  http.StatusBadRequest,
		},
		{
			name:  "screenshot not an image",
			limit: 10 << 20,
			files: map[string][]byte{"screenshot": []byte("text"), "html": []byte("<p/>")},
			want:  http.StatusBadRequest,
		},
		{
			name:  "too large",
			limit: 16,
			files: map[string][]byte{"screenshot": bytes.Repeat([]byte("x"), 1024), "html": []byte("<p/>")},
			want:  http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(t, tt.limit)
			body, ct := multipartBody(t, nil, tt.files)
			req := httptest.NewRequest("POST", "/captures", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("unknown capture", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setupMux(t, 1<<20).ServeHTTP(rec, httptest.NewRequest("GET", "/captures/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
