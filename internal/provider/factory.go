package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/provider/deepseek"
	"github.com/resumeforge/resume-ai/internal/provider/gemini"
	"github.com/resumeforge/resume-ai/internal/provider/openai"
)

// Factory lazily initializes and caches one adapter per logical model
// name. Two model ids on the same vendor get independent adapter
// instances. The factory tracks an active model for calls that omit an
// explicit id.
type Factory struct {
	mu       sync.Mutex
	apiKeys  map[domain.ProviderID]string
	adapters map[string]Adapter
	active   string

	// newAdapter builds an uninitialized adapter for a vendor. Tests
	// swap it to avoid the vendor init probe.
	newAdapter func(id domain.ProviderID) Adapter
}

func NewFactory(apiKeys map[domain.ProviderID]string) *Factory {
	return &Factory{
		apiKeys:    apiKeys,
		adapters:   make(map[string]Adapter),
		newAdapter: vendorAdapter,
	}
}

func vendorAdapter(id domain.ProviderID) Adapter {
	switch id {
	case domain.ProviderGemini:
		return gemini.New()
	case domain.ProviderDeepseek:
		return deepseek.New()
	case domain.ProviderOpenAI:
		return openai.New()
	default:
		return nil
	}
}

// GetAdapter resolves a logical model id to an initialized adapter. An
// empty id returns the active adapter when one exists, the default model
// otherwise. Returns domain.ErrModelNotFound for ids absent from the
// registry and domain.ErrMissingAPIKey before any vendor call when the
// provider has no configured key.
func (f *Factory) GetAdapter(ctx context.Context, modelID string) (Adapter, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if modelID == "" {
		if f.active != "" {
			return f.adapters[f.active], f.active, nil
		}
		modelID = DefaultModelID
	}

	if adapter, ok := f.adapters[modelID]; ok {
		f.active = modelID
		return adapter, modelID, nil
	}

	adapter, err := f.initialize(ctx, modelID)
	if err != nil {
		return nil, "", err
	}

	f.adapters[modelID] = adapter
	f.active = modelID
	return adapter, modelID, nil
}

// SetDefault eagerly initializes the model's adapter and marks it active.
func (f *Factory) SetDefault(ctx context.Context, modelID string) error {
	_, _, err := f.GetAdapter(ctx, modelID)
	return err
}

// ActiveModel returns the logical id of the active adapter, or empty.
func (f *Factory) ActiveModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Clear drops all cached adapters and the active pointer. Process-wide
// reset for tests, not steady-state request handling.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters = make(map[string]Adapter)
	f.active = ""
}

func (f *Factory) initialize(ctx context.Context, modelID string) (Adapter, error) {
	cfg, ok := Registry[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, modelID)
	}

	cfg.APIKey = f.apiKeys[cfg.Provider]
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingAPIKey, cfg.Provider)
	}

	adapter := f.newAdapter(cfg.Provider)
	if adapter == nil {
		return nil, fmt.Errorf("%w: unknown provider %s", domain.ErrModelNotFound, cfg.Provider)
	}

	if err := adapter.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", modelID, err)
	}

	return adapter, nil
}
