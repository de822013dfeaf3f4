package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/resumeforge/resume-ai/internal/cache"
	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/provider"
	"github.com/resumeforge/resume-ai/internal/ratelimit"
	"github.com/resumeforge/resume-ai/internal/settings"
	"github.com/resumeforge/resume-ai/internal/usage"
)

type mockAdapter struct {
	name       string
	completeFn func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error)
	streamFn   func(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error)
}

func (m *mockAdapter) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockAdapter) Init(ctx context.Context, cfg domain.ModelConfig) error { return nil }

func (m *mockAdapter) ValidateConfig(ctx context.Context, cfg domain.ModelConfig) error { return nil }

func (m *mockAdapter) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return m.completeFn(ctx, req)
}

func (m *mockAdapter) CompleteStream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error) {
	return m.streamFn(ctx, req)
}

type mockSource struct {
	adapter provider.Adapter
	modelID string
	err     error
}

func (m *mockSource) GetAdapter(ctx context.Context, modelID string) (provider.Adapter, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.adapter, m.modelID, nil
}

func newTestService(adapter provider.Adapter) (*Service, kvstore.Store) {
	store := kvstore.NewInMemoryStore()
	source := &mockSource{adapter: adapter, modelID: "gemini-2-flash"}
	svc := NewService(source, settings.NewService(store), store, cache.NewInMemoryCache(), usage.NewInMemoryRecorder(), ratelimit.NewFixedWindow(store))
	return svc, store
}

func textResponse(text string) *domain.CompletionResponse {
	return &domain.CompletionResponse{
		Text:     text,
		Usage:    domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		Metadata: map[string]any{"provider": "mock", "model": "gemini-2.0-flash-001"},
	}
}

func TestComplete_CachesIdenticalRequests(t *testing.T) {
	calls := 0
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			calls++
			return textResponse("answer"), nil
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	req := domain.CompletionRequest{Prompt: "same prompt"}

	for i := 0; i < 3; i++ {
		resp, err := svc.Complete(ctx, "user-1", "", req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Text != "answer" {
			t.Errorf("Text = %q, want answer", resp.Text)
		}
	}

	if calls != 1 {
		t.Errorf("adapter calls = %d, want 1", calls)
	}
}

func TestComplete_IncrementsUsageOncePerFreshCall(t *testing.T) {
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			return textResponse("answer"), nil
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	svc.Complete(ctx, "user-1", "", domain.CompletionRequest{Prompt: "first"})
	svc.Complete(ctx, "user-1", "", domain.CompletionRequest{Prompt: "first"})
	svc.Complete(ctx, "user-1", "", domain.CompletionRequest{Prompt: "second"})

	got := svc.settings.GetUserSettings(ctx, "user-1")
	if got.Usage.AIRequests != 2 {
		t.Errorf("AIRequests = %d, want 2 (cache hit must not count)", got.Usage.AIRequests)
	}
}

func TestComplete_ErrorNotCached(t *testing.T) {
	calls := 0
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			calls++
			if calls == 1 {
				return nil, domain.ErrServer
			}
			return textResponse("recovered"), nil
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	req := domain.CompletionRequest{Prompt: "flaky"}

	if _, err := svc.Complete(ctx, "user-1", "", req); !errors.Is(err, domain.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}

	resp, err := svc.Complete(ctx, "user-1", "", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("Text = %q, want recovered", resp.Text)
	}

	got := svc.settings.GetUserSettings(ctx, "user-1")
	if got.Usage.AIRequests != 1 {
		t.Errorf("AIRequests = %d, want 1 (failed call must not count)", got.Usage.AIRequests)
	}
}

func TestCompleteStream_UsageCountedAfterTerminalChunk(t *testing.T) {
	adapter := &mockAdapter{
		streamFn: func(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error) {
			chunks := make(chan domain.StreamChunk, 3)
			errs := make(chan error, 1)
			chunks <- domain.StreamChunk{Text: "a"}
			chunks <- domain.StreamChunk{Text: "b"}
			chunks <- domain.StreamChunk{Done: true}
			close(chunks)
			close(errs)
			return chunks, errs
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	chunks, errs, err := svc.CompleteStream(ctx, "user-1", "", domain.CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var text string
	for chunk := range chunks {
		text += chunk.Text
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if text != "ab" {
		t.Errorf("streamed text = %q, want ab", text)
	}

	got := svc.settings.GetUserSettings(ctx, "user-1")
	if got.Usage.AIRequests != 1 {
		t.Errorf("AIRequests = %d, want 1", got.Usage.AIRequests)
	}
}

func TestCompleteStream_AbortedStreamNotCounted(t *testing.T) {
	adapter := &mockAdapter{
		streamFn: func(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error) {
			chunks := make(chan domain.StreamChunk, 1)
			errs := make(chan error, 1)
			chunks <- domain.StreamChunk{Text: "partial"}
			close(chunks)
			errs <- domain.ErrServer
			close(errs)
			return chunks, errs
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	chunks, errs, err := svc.CompleteStream(ctx, "user-1", "", domain.CompletionRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range chunks {
	}
	if err := <-errs; !errors.Is(err, domain.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}

	got := svc.settings.GetUserSettings(ctx, "user-1")
	if got.Usage.AIRequests != 0 {
		t.Errorf("AIRequests = %d, want 0 (broken stream must not count)", got.Usage.AIRequests)
	}
}

func TestCompleteStream_Unsupported(t *testing.T) {
	// Wrapping in a struct that embeds only the base interface hides
	// the mock's CompleteStream method.
	adapter := struct{ provider.Adapter }{Adapter: &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			return textResponse("x"), nil
		},
	}}

	svc, _ := newTestService(adapter)

	_, _, err := svc.CompleteStream(context.Background(), "user-1", "", domain.CompletionRequest{Prompt: "q"})
	if !errors.Is(err, domain.ErrStreamUnsupported) {
		t.Errorf("expected ErrStreamUnsupported, got %v", err)
	}
}

func TestComplete_AdapterResolutionError(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	source := &mockSource{err: fmt.Errorf("%w: bogus", domain.ErrModelNotFound)}
	svc := NewService(source, settings.NewService(store), store, cache.NewInMemoryCache(), usage.NewInMemoryRecorder(), ratelimit.NewFixedWindow(store))

	_, err := svc.Complete(context.Background(), "user-1", "bogus", domain.CompletionRequest{Prompt: "q"})
	if !errors.Is(err, domain.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}
