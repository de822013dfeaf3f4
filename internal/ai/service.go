// Package ai orchestrates completions across the vendor adapters. It
// layers an in-process completion cache, a shared-store result cache for
// the high-level operations, usage accounting, and per-action budgets on
// top of the provider factory.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/resumeforge/resume-ai/internal/budget"
	"github.com/resumeforge/resume-ai/internal/cache"
	"github.com/resumeforge/resume-ai/internal/circuitbreaker"
	"github.com/resumeforge/resume-ai/internal/cost"
	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/metrics"
	"github.com/resumeforge/resume-ai/internal/provider"
	"github.com/resumeforge/resume-ai/internal/ratelimit"
	"github.com/resumeforge/resume-ai/internal/settings"
	"github.com/resumeforge/resume-ai/internal/telemetry"
	"github.com/resumeforge/resume-ai/internal/usage"
)

const (
	completionCacheTTL = time.Hour
	analysisCacheTTL   = time.Hour
	jobParseCacheTTL   = 24 * time.Hour
)

// AdapterSource resolves logical model ids to initialized adapters.
// Satisfied by *provider.Factory.
type AdapterSource interface {
	GetAdapter(ctx context.Context, modelID string) (provider.Adapter, string, error)
}

type Service struct {
	factory   AdapterSource
	settings  *settings.Service
	store     kvstore.Store
	responses cache.Cache
	recorder  usage.Recorder
	budget    *ratelimit.FixedWindow
	costs     *cost.Calculator
	breakers  *circuitbreaker.Manager
	monitor   *budget.Monitor
	now       func() time.Time
}

func NewService(factory AdapterSource, settingsSvc *settings.Service, store kvstore.Store, responses cache.Cache, recorder usage.Recorder, budget *ratelimit.FixedWindow) *Service {
	return &Service{
		factory:   factory,
		settings:  settingsSvc,
		store:     store,
		responses: responses,
		recorder:  recorder,
		budget:    budget,
		costs:     cost.NewCalculator(),
		breakers:  circuitbreaker.NewManager(circuitbreaker.DefaultConfig()),
		now:       time.Now,
	}
}

// SetBreakers replaces the default in-memory breaker manager, typically
// with a Redis-backed one so vendor health is shared across instances.
func (s *Service) SetBreakers(m *circuitbreaker.Manager) {
	s.breakers = m
}

// SetSpendMonitor enables per-user spend threshold alerts after each
// recorded completion.
func (s *Service) SetSpendMonitor(m *budget.Monitor) {
	s.monitor = m
}

// Complete resolves the model, serves identical requests from the
// completion cache, and otherwise calls the vendor. The user's usage
// counter is incremented once per fresh successful completion; cache
// hits cost nothing.
func (s *Service) Complete(ctx context.Context, userID, modelID string, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	adapter, resolvedID, err := s.factory.GetAdapter(ctx, modelID)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "ai.complete")
	defer span.End()
	telemetry.AddRequestAttributes(span, userID, adapter.Name(), resolvedID)

	key := cache.GenerateCacheKey(resolvedID, req)
	if resp, ok := s.responses.Get(ctx, key); ok {
		metrics.RecordCacheHit("completion")
		telemetry.AddCacheAttribute(span, true)
		return resp, nil
	}
	metrics.RecordCacheMiss("completion")
	telemetry.AddCacheAttribute(span, false)

	breaker := s.breakers.Get(adapter.Name())
	if err := breaker.Allow(ctx); err != nil {
		metrics.RecordProviderError(adapter.Name(), "circuit_open")
		return nil, err
	}

	start := s.now()
	resp, err := adapter.Complete(ctx, req)
	elapsed := s.now().Sub(start)

	if err != nil {
		if domain.IsRetryable(err) {
			breaker.RecordFailure(ctx)
		}
		metrics.RecordProviderError(adapter.Name(), errorType(err))
		metrics.RecordRequest("completion", adapter.Name(), resolvedID, "error", elapsed.Seconds())
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}
	breaker.RecordSuccess(ctx)

	metrics.RecordRequest("completion", adapter.Name(), resolvedID, "success", elapsed.Seconds())
	metrics.RecordTokens(adapter.Name(), resolvedID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	telemetry.AddTokenAttributes(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if err := s.responses.Set(ctx, key, resp, completionCacheTTL); err != nil {
		slog.Warn("completion cache write failed", "error", err)
	}

	if userID != "" {
		s.settings.UpdateUsage(ctx, userID, 1)
		s.recordUsage(ctx, userID, adapter.Name(), resolvedID, "completion", resp.Usage, elapsed, false)
	}

	return resp, nil
}

// CompleteStream streams chunks from the vendor. Usage is counted only
// after the terminal chunk arrives, so canceled streams do not consume
// quota. Streamed responses are never cached.
func (s *Service) CompleteStream(ctx context.Context, userID, modelID string, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error, error) {
	adapter, resolvedID, err := s.factory.GetAdapter(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}

	streamer, ok := adapter.(provider.StreamingAdapter)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrStreamUnsupported, adapter.Name())
	}

	breaker := s.breakers.Get(adapter.Name())
	if err := breaker.Allow(ctx); err != nil {
		metrics.RecordProviderError(adapter.Name(), "circuit_open")
		return nil, nil, err
	}

	start := s.now()
	inChunks, inErrs := streamer.CompleteStream(ctx, req)

	outChunks := make(chan domain.StreamChunk)
	outErrs := make(chan error, 1)

	metrics.ActiveStreams.Inc()
	go func() {
		defer close(outChunks)
		defer close(outErrs)
		defer metrics.ActiveStreams.Dec()

		var completed bool
		for chunk := range inChunks {
			if chunk.Done {
				completed = true
			}
			select {
			case outChunks <- chunk:
			case <-ctx.Done():
				return
			}
		}

		if err := <-inErrs; err != nil {
			if domain.IsRetryable(err) {
				breaker.RecordFailure(ctx)
			}
			metrics.RecordProviderError(adapter.Name(), errorType(err))
			outErrs <- err
			return
		}

		if completed {
			breaker.RecordSuccess(ctx)
		}
		if completed && userID != "" {
			s.settings.UpdateUsage(ctx, userID, 1)
			s.recordUsage(ctx, userID, adapter.Name(), resolvedID, "stream", domain.TokenUsage{}, s.now().Sub(start), false)
		}
	}()

	return outChunks, outErrs, nil
}

// recordUsage writes a usage history row. Failures are logged and
// swallowed; history must never fail an AI call.
func (s *Service) recordUsage(ctx context.Context, userID, providerName, model, operation string, tokens domain.TokenUsage, elapsed time.Duration, cached bool) {
	if s.recorder == nil {
		return
	}

	vendorModel := model
	if cfg, ok := provider.Registry[model]; ok {
		vendorModel = cfg.ModelName
	}

	record := usage.Record{
		UserID:           userID,
		RequestID:        uuid.NewString(),
		Provider:         providerName,
		Model:            model,
		Operation:        operation,
		PromptTokens:     tokens.PromptTokens,
		CompletionTokens: tokens.CompletionTokens,
		CostUSD:          s.costs.Calculate(vendorModel, tokens),
		LatencyMs:        elapsed.Milliseconds(),
		Cached:           cached,
		CreatedAt:        s.now().UTC(),
	}

	telemetry.AddCostAttribute(trace.SpanFromContext(ctx), record.CostUSD)

	if err := s.recorder.Record(ctx, record); err != nil {
		slog.Warn("usage record failed", "user_id", userID, "error", err)
	}

	if s.monitor != nil {
		tier := s.settings.GetUserSettings(ctx, userID).Usage.Tier
		if _, err := s.monitor.Check(ctx, userID, tier); err != nil {
			slog.Warn("spend check failed", "user_id", userID, "error", err)
		}
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrOverloaded):
		return "overloaded"
	case errors.Is(err, domain.ErrAuthentication):
		return "authentication"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, domain.ErrServer):
		return "server"
	default:
		return "unknown"
	}
}
