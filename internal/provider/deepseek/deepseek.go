// Package deepseek adapts the DeepSeek chat completions API.
package deepseek

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/httputil"
	"github.com/resumeforge/resume-ai/internal/retry"
)

const defaultBaseURL = "https://api.deepseek.com"

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
	return string(domain.ProviderDeepseek)
}

func (a *Adapter) Init(ctx context.Context, cfg domain.ModelConfig) error {
	if cfg.APIKey == "" {
		return domain.ErrMissingAPIKey
	}

	if err := a.probe(ctx, cfg); err != nil {
		return fmt.Errorf("deepseek initialization: %w", err)
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

// probe lists the account's models. It costs no tokens and fails fast on
// a bad key.
func (a *Adapter) probe(ctx context.Context, cfg domain.ModelConfig) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

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
	resp, err := a.post(ctx, toChatRequest(a.cfg, req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatus(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return nil, domain.ErrEmptyResponse
	}

	return &domain.CompletionResponse{
		Text: chatResp.Choices[0].Message.Content,
		Usage: domain.TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Metadata: map[string]any{
			"provider":     a.Name(),
			"model":        chatResp.Model,
			"finishReason": chatResp.Choices[0].FinishReason,
		},
	}, nil
}

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

		resp, err := a.post(ctx, toChatRequest(a.cfg, req, true))
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- mapStatus(resp)
			return
		}

		if err := scanStream(ctx, resp.Body, chunks); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

func (a *Adapter) post(ctx context.Context, chatReq chatRequest) (*http.Response, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServer, err)
	}
	return resp, nil
}

// scanStream reads SSE lines until the [DONE] marker, forwarding delta
// text. Reasoning content emitted by R1 models before the answer is
// skipped.
func scanStream(ctx context.Context, body io.Reader, chunks chan<- domain.StreamChunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}

		if len(event.Choices) == 0 {
			continue
		}

		if text := event.Choices[0].Delta.Content; text != "" {
			select {
			case chunks <- domain.StreamChunk{Text: text}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}

	select {
	case chunks <- domain.StreamChunk{Done: true}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func toChatRequest(cfg domain.ModelConfig, req domain.CompletionRequest, stream bool) chatRequest {
	temperature := cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := cfg.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return chatRequest{
		Model:       cfg.ModelName,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stop:        req.StopSequences,
		Stream:      stream,
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

	return fmt.Errorf("%w: deepseek status=%d body=%s", base, resp.StatusCode, string(bodyBytes))
}
