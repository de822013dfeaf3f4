// Package gemini adapts the Google Generative Language API to the common
// completion contract.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/httputil"
	"github.com/resumeforge/resume-ai/internal/retry"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Adapter struct {
	cfg     domain.ModelConfig
	baseURL string
	client  *http.Client
	ready   bool
}

func New() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  httputil.NewClient(),
	}
}

func (a *Adapter) Name() string {
	return string(domain.ProviderGemini)
}

// Init stores the configuration after a lightweight probe: fetching the
// model's metadata verifies both the key and the model name without
// spending tokens.
func (a *Adapter) Init(ctx context.Context, cfg domain.ModelConfig) error {
	if cfg.APIKey == "" {
		return domain.ErrMissingAPIKey
	}

	if err := a.probe(ctx, cfg); err != nil {
		return fmt.Errorf("gemini initialization: %w", err)
	}

	a.cfg = cfg
	a.ready = true
	return nil
}

func (a *Adapter) ValidateConfig(ctx context.Context, cfg domain.ModelConfig) error {
	if cfg.APIKey == "" {
		return domain.ErrMissingAPIKey
	}
	return a.probe(ctx, cfg)
}

func (a *Adapter) probe(ctx context.Context, cfg domain.ModelConfig) error {
	u := fmt.Sprintf("%s/models/%s?key=%s", a.baseURL, cfg.ModelName, url.QueryEscape(cfg.APIKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mapStatus(resp)
	}

	return nil
}

func (a *Adapter) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if !a.ready {
		return nil, domain.ErrNotInitialized
	}

	return retry.Do(ctx, func() (*domain.CompletionResponse, error) {
		return a.complete(ctx, req)
	})
}

func (a *Adapter) complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	body, err := json.Marshal(toGeminiRequest(a.cfg, req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.cfg.ModelName, url.QueryEscape(a.cfg.APIKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatus(resp)
	}

	var geminiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	text := geminiResp.text()
	if text == "" {
		return nil, domain.ErrEmptyResponse
	}

	return &domain.CompletionResponse{
		Text: text,
		Usage: domain.TokenUsage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		},
		Metadata: map[string]any{
			"provider":     a.Name(),
			"model":        a.cfg.ModelName,
			"finishReason": geminiResp.finishReason(),
		},
	}, nil
}

// CompleteStream yields text chunks as the vendor produces them and ends
// with a Done marker. Canceling ctx closes the response body; a new call
// is required to retry.
func (a *Adapter) CompleteStream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamChunk, <-chan error) {
	chunks := make(chan domain.StreamChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if !a.ready {
			errs <- domain.ErrNotInitialized
			return
		}

		body, err := json.Marshal(toGeminiRequest(a.cfg, req))
		if err != nil {
			errs <- fmt.Errorf("marshal request: %w", err)
			return
		}

		u := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", a.baseURL, a.cfg.ModelName, url.QueryEscape(a.cfg.APIKey))

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("create request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := a.client.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("do request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- mapStatus(resp)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var event generateResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}

			if text := event.text(); text != "" {
				select {
				case chunks <- domain.StreamChunk{Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("scan error: %w", err)
			return
		}

		select {
		case chunks <- domain.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunks, errs
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64  `json:"temperature"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
	TopK            int      `json:"topK,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (r generateResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (r generateResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

func toGeminiRequest(cfg domain.ModelConfig, req domain.CompletionRequest) generateRequest {
	temperature := cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := cfg.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.Prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
			TopK:            40,
			TopP:            0.95,
			StopSequences:   req.StopSequences,
		},
	}
}

func mapStatus(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var base error
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		base = domain.ErrInvalidRequest
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		base = domain.ErrAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		base = domain.ErrRateLimited
	case resp.StatusCode == http.StatusServiceUnavailable:
		base = domain.ErrOverloaded
	case resp.StatusCode >= 500:
		base = domain.ErrServer
	default:
		base = domain.ErrInvalidRequest
	}

	return fmt.Errorf("%w: gemini status=%d body=%s", base, resp.StatusCode, string(bodyBytes))
}
