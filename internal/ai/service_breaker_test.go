package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/resumeforge/resume-ai/internal/budget"
	"github.com/resumeforge/resume-ai/internal/cache"
	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/ratelimit"
	"github.com/resumeforge/resume-ai/internal/settings"
	"github.com/resumeforge/resume-ai/internal/usage"
)

func TestComplete_BreakerOpensAfterServerErrors(t *testing.T) {
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			return nil, domain.ErrServer
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req := domain.CompletionRequest{Prompt: fmt.Sprintf("prompt %d", i)}
		if _, err := svc.Complete(ctx, "user-1", "", req); !errors.Is(err, domain.ErrServer) {
			t.Fatalf("call %d: error = %v, want ErrServer", i, err)
		}
	}

	_, err := svc.Complete(ctx, "user-1", "", domain.CompletionRequest{Prompt: "after open"})
	if !errors.Is(err, domain.ErrCircuitBreakerOpen) {
		t.Errorf("error = %v, want ErrCircuitBreakerOpen", err)
	}
}

func TestComplete_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			return nil, domain.ErrInvalidRequest
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		req := domain.CompletionRequest{Prompt: fmt.Sprintf("prompt %d", i)}
		if _, err := svc.Complete(ctx, "user-1", "", req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("call %d: error = %v, want ErrInvalidRequest", i, err)
		}
	}
}

func TestComplete_SuccessResetsBreakerFailures(t *testing.T) {
	fail := true
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			if fail {
				return nil, domain.ErrServer
			}
			return textResponse("recovered"), nil
		},
	}
	svc, _ := newTestService(adapter)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		svc.Complete(ctx, "user-1", "", domain.CompletionRequest{Prompt: fmt.Sprintf("fail %d", i)})
	}

	fail = false
	if _, err := svc.Complete(ctx, "user-1", "", domain.CompletionRequest{Prompt: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fail = true
	for i := 0; i < 4; i++ {
		req := domain.CompletionRequest{Prompt: fmt.Sprintf("fail again %d", i)}
		if _, err := svc.Complete(ctx, "user-1", "", req); !errors.Is(err, domain.ErrServer) {
			t.Fatalf("call %d: error = %v, want ErrServer", i, err)
		}
	}
}

func TestComplete_SpendAlertDispatched(t *testing.T) {
	adapter := &mockAdapter{
		completeFn: func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
			return textResponse("answer"), nil
		},
	}

	store := kvstore.NewInMemoryStore()
	recorder := usage.NewInMemoryRecorder()
	recorder.Record(context.Background(), usage.Record{
		UserID:    "user-1",
		RequestID: "earlier",
		CostUSD:   0.90,
		CreatedAt: time.Now(),
	})

	source := &mockSource{adapter: adapter, modelID: "gemini-2-flash"}
	svc := NewService(source, settings.NewService(store), store, cache.NewInMemoryCache(), recorder, ratelimit.NewFixedWindow(store))

	monitor := budget.NewMonitor(recorder, budget.DefaultThresholds(), nil)
	var alerted *budget.Alert
	monitor.OnAlert(func(a budget.Alert) {
		alerted = &a
	})
	svc.SetSpendMonitor(monitor)

	if _, err := svc.Complete(context.Background(), "user-1", "", domain.CompletionRequest{Prompt: "spend check"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if alerted == nil {
		t.Fatal("expected a spend alert")
	}
	if alerted.Level != budget.AlertLevelCritical && alerted.Level != budget.AlertLevelWarning {
		t.Errorf("alert level = %v, want warning or critical", alerted.Level)
	}
}
