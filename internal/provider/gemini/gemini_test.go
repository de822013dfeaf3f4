package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/resumeforge/resume-ai/internal/domain"
)

func testConfig() domain.ModelConfig {
	return domain.ModelConfig{
		Provider:    domain.ProviderGemini,
		ModelName:   "gemini-2.0-flash-001",
		Temperature: 0.7,
		MaxTokens:   1000,
		APIKey:      "test-key",
	}
}

func newTestAdapter(serverURL string) *Adapter {
	a := New()
	a.baseURL = serverURL
	a.cfg = testConfig()
	a.ready = true
	return a
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "hello"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2, "totalTokenCount": 7}
		}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	resp, err := a.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "hello" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello")
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", resp.Usage.TotalTokens)
	}
	if resp.Metadata["finishReason"] != "STOP" {
		t.Errorf("finishReason = %v, want STOP", resp.Metadata["finishReason"])
	}
}

func TestComplete_NotInitialized(t *testing.T) {
	a := New()

	_, err := a.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestComplete_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	_, err := a.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestComplete_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, domain.ErrInvalidRequest},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthentication},
		{"forbidden", http.StatusForbidden, domain.ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			a := newTestAdapter(server.URL)

			_, err := a.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
			if !errors.Is(err, tt.want) {
				t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestInit_MissingKey(t *testing.T) {
	a := New()

	cfg := testConfig()
	cfg.APIKey = ""

	err := a.Init(context.Background(), cfg)
	if !errors.Is(err, domain.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestInit_Probe(t *testing.T) {
	var probed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed = true
		if r.Method != http.MethodGet {
			t.Errorf("probe method = %s, want GET", r.Method)
		}
		w.Write([]byte(`{"name": "models/gemini-2.0-flash-001"}`))
	}))
	defer server.Close()

	a := New()
	a.baseURL = server.URL

	if err := a.Init(context.Background(), testConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !probed {
		t.Error("expected Init to probe the model endpoint")
	}
	if !a.ready {
		t.Error("expected adapter to be ready after Init")
	}
}

func TestCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hel\"}]}}]}\n\n"))
		w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}]}\n\n"))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	chunks, errs := a.CompleteStream(context.Background(), domain.CompletionRequest{Prompt: "hi"})

	var got strings.Builder
	var done bool
	for chunk := range chunks {
		if chunk.Done {
			done = true
			continue
		}
		got.WriteString(chunk.Text)
	}

	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if got.String() != "hello" {
		t.Errorf("streamed text = %q, want %q", got.String(), "hello")
	}
	if !done {
		t.Error("expected a final Done chunk")
	}
}

func TestCompleteStream_Cancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	a := newTestAdapter(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, _ := a.CompleteStream(ctx, domain.CompletionRequest{Prompt: "hi"})

	<-chunks
	cancel()

	for range chunks {
	}
}
