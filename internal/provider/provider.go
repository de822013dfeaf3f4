// Package provider resolves logical model ids to configured vendor
// adapters. Each adapter wraps one LLM vendor API behind the common
// completion contract; the factory caches one initialized adapter per
// logical model name.
package provider

import (
	"context"

	"github.com/resumeforge/resume-ai/internal/domain"
)

// Adapter is the common contract over one vendor's completion API.
// Implementations hold no local cache; retries on transient failures
// happen inside the adapter with bounded exponential backoff.
type Adapter interface {
	Name() string
	Init(ctx context.Context, cfg domain.ModelConfig) error
	Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error)
	ValidateConfig(ctx context.Context, cfg domain.ModelConfig) error
}

// StreamingAdapter is implemented by adapters that support streaming
// completions. The chunk channel ends with a Done marker chunk; canceling
// ctx releases the underlying connection.
type StreamingAdapter interface {
	Adapter
	CompleteStream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error)
}

// DefaultModelID is used when neither the caller nor the user settings
// name a model.
const DefaultModelID = "gemini-2-flash"

// Registry maps logical model ids to their default configurations. API
// keys are filled in by the factory at resolution time.
var Registry = map[string]domain.ModelConfig{
	"gemini-2-flash": {
		Provider:    domain.ProviderGemini,
		ModelName:   "gemini-2.0-flash-001",
		Temperature: 0.7,
		MaxTokens:   1000,
	},
	"deepseek-r1": {
		Provider:    domain.ProviderDeepseek,
		ModelName:   "deepseek-r1",
		Temperature: 0.7,
		MaxTokens:   1000,
	},
	"openai-o3-mini": {
		Provider:    domain.ProviderOpenAI,
		ModelName:   "o3-mini",
		Temperature: 0.7,
		MaxTokens:   1000,
	},
}

// ModelTiers gates pro-only models. Models absent from this map are
// available to every tier.
var ModelTiers = map[string]domain.Tier{
	"gemini-2-flash": domain.TierFree,
	"deepseek-r1":    domain.TierPro,
	"openai-o3-mini": domain.TierPro,
}

// Available reports whether the tier may use the model.
func Available(modelID string, tier domain.Tier) bool {
	required, ok := ModelTiers[modelID]
	if !ok {
		return true
	}
	return required == domain.TierFree || tier == domain.TierPro
}
