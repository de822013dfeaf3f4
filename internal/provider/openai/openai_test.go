package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/resumeforge/resume-ai/internal/domain"
)

func testConfig() domain.ModelConfig {
	return domain.ModelConfig{
		Provider:  domain.ProviderOpenAI,
		ModelName: "o3-mini",
		MaxTokens: 1000,
		APIKey:    "test-key",
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
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		// Reasoning models reject temperature, so it must never be sent.
		if _, ok := req["temperature"]; ok {
			t.Error("request should not carry a temperature field")
		}
		if req["max_completion_tokens"] != float64(1000) {
			t.Errorf("max_completion_tokens = %v, want 1000", req["max_completion_tokens"])
		}

		w.Write([]byte(`{
			"model": "o3-mini",
			"choices": [{"message": {"role": "assistant", "content": "result"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 8, "completion_tokens": 4, "total_tokens": 12}
		}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	resp, err := a.Complete(context.Background(), domain.CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "result" {
		t.Errorf("Text = %q, want %q", resp.Text, "result")
	}
	if resp.Usage.CompletionTokens != 4 {
		t.Errorf("CompletionTokens = %d, want 4", resp.Usage.CompletionTokens)
	}
	if resp.Metadata["provider"] != "openai" {
		t.Errorf("provider = %v, want openai", resp.Metadata["provider"])
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	_, err := a.Complete(context.Background(), domain.CompletionRequest{Prompt: "q"})
	if !errors.Is(err, domain.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestInit_ProbesModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/o3-mini" {
			t.Errorf("probe path = %s, want /models/o3-mini", r.URL.Path)
		}
		w.Write([]byte(`{"id": "o3-mini", "object": "model"}`))
	}))
	defer server.Close()

	a := New()
	a.baseURL = server.URL

	if err := a.Init(context.Background(), testConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInit_BadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	a := New()
	a.baseURL = server.URL

	err := a.Init(context.Background(), testConfig())
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
	if a.ready {
		t.Error("adapter must not be ready after failed Init")
	}
}

func TestCompleteStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"str\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"eam\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	a := newTestAdapter(server.URL)

	chunks, errs := a.CompleteStream(context.Background(), domain.CompletionRequest{Prompt: "q"})

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
	if got.String() != "stream" {
		t.Errorf("streamed text = %q, want %q", got.String(), "stream")
	}
	if !done {
		t.Error("expected a final Done chunk")
	}
}
