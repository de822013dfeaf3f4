// Package api exposes the AI operations and settings over HTTP. Every AI
// route runs the same gauntlet: validate the body, authenticate, check
// the tier quota, check the per-route rate limit, then hand off to the
// orchestration service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resumeforge/resume-ai/internal/ai"
	"github.com/resumeforge/resume-ai/internal/auth"
	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/metrics"
	"github.com/resumeforge/resume-ai/internal/provider"
	"github.com/resumeforge/resume-ai/internal/ratelimit"
	"github.com/resumeforge/resume-ai/internal/settings"
)

type HandlerConfig struct {
	Verifier    auth.TokenVerifier
	Settings    *settings.Service
	AI          *ai.Service
	RateLimiter ratelimit.Limiter
	Checkers    []HealthChecker
}

type Handler struct {
	verifier auth.TokenVerifier
	settings *settings.Service
	ai       *ai.Service
	limiter  ratelimit.Limiter
	mux      *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		verifier: cfg.Verifier,
		settings: cfg.Settings,
		ai:       cfg.AI,
		limiter:  cfg.RateLimiter,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/ai/analyze", h.handleAnalyze)
	h.mux.HandleFunc("POST /api/ai/parse-job", h.handleParseJob)
	h.mux.HandleFunc("POST /api/ai/tailor", h.handleTailor)
	h.mux.HandleFunc("GET /api/settings", h.handleGetSettings)
	h.mux.HandleFunc("PATCH /api/settings", h.handleUpdateSettings)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", handleHealthReadyWithCheckers(cfg.Checkers, 5*time.Second))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type analyzeRequest struct {
	Content        string `json:"content"`
	Section        string `json:"section"`
	JobDescription string `json:"jobDescription,omitempty"`
	ModelName      string `json:"modelName,omitempty"`
	Mode           string `json:"mode,omitempty"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := newRequestID(r)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", nil)
		return
	}
	if req.Mode == "" {
		req.Mode = ai.ModeAnalyze
	}
	if details := validateAnalyze(req); details != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", details)
		return
	}

	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	userSettings, ok := h.gate(w, r, userID, "analyze", ratelimit.ResumeAnalyze)
	if !ok {
		return
	}

	modelName := req.ModelName
	if modelName == "" {
		modelName = userSettings.AI.DefaultModel
	}
	if !provider.Available(modelName, userSettings.Usage.Tier) {
		writeError(w, http.StatusForbidden, "MODEL_NOT_AVAILABLE", "Model not available in current tier", map[string]any{
			"requiredTier": domain.TierPro,
		})
		return
	}

	result, err := h.ai.AnalyzeSection(ctx, ai.AnalyzeInput{
		UserID:         userID,
		Content:        req.Content,
		Section:        req.Section,
		JobDescription: req.JobDescription,
		ModelName:      modelName,
		Mode:           req.Mode,
	})
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	slog.Info("analysis completed",
		"request_id", requestID,
		"user_id", userID,
		"section", req.Section,
		"mode", req.Mode,
		"cached", result.Metadata.Cached,
		"latency_ms", result.Metadata.ProcessingTime,
	)

	writeCacheableJSON(w, requestID, result.Metadata.Cached, result)
}

type parseJobRequest struct {
	Content    string `json:"content"`
	TargetRole string `json:"targetRole,omitempty"`
}

func (h *Handler) handleParseJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := newRequestID(r)

	var req parseJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", nil)
		return
	}
	if len(req.Content) < 100 || len(req.Content) > 10000 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", map[string]any{
			"content": "must be between 100 and 10000 characters",
		})
		return
	}

	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if _, ok := h.gate(w, r, userID, "job_parse", ratelimit.JobParse); !ok {
		return
	}

	analysis, cached, err := h.ai.ParseJob(ctx, ai.ParseJobInput{
		UserID:     userID,
		Content:    req.Content,
		TargetRole: req.TargetRole,
	})
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	slog.Info("job parsed",
		"request_id", requestID,
		"user_id", userID,
		"content_length", len(req.Content),
		"cached", cached,
	)

	writeCacheableJSON(w, requestID, cached, analysis)
}

type tailorRequest struct {
	ResumeContent string             `json:"resumeContent"`
	JobAnalysis   domain.JobAnalysis `json:"jobAnalysis"`
}

func (h *Handler) handleTailor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := newRequestID(r)

	var req tailorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", nil)
		return
	}
	if strings.TrimSpace(req.ResumeContent) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", map[string]any{
			"resumeContent": "must not be empty",
		})
		return
	}

	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if _, ok := h.gate(w, r, userID, "tailor", ratelimit.Default); !ok {
		return
	}

	result, err := h.ai.TailorResume(ctx, userID, req.ResumeContent, req.JobAnalysis)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	slog.Info("resume tailored",
		"request_id", requestID,
		"user_id", userID,
		"match_score", result.MatchScore,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	json.NewEncoder(w).Encode(result)
}

// authenticate extracts and verifies the bearer token. On failure it
// writes the error response and reports !ok.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "AUTH_MISSING_TOKEN", "Unauthorized", nil)
		return "", false
	}

	userID, err := h.verifier.Verify(r.Context(), strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "Invalid token", nil)
		return "", false
	}

	return userID, true
}

// gate enforces the tier quota and the per-route sliding window. Both
// checks write the 429 response themselves on rejection.
func (h *Handler) gate(w http.ResponseWriter, r *http.Request, userID, route string, limit ratelimit.Limit) (domain.UserSettings, bool) {
	ctx := r.Context()

	userSettings := h.settings.GetUserSettings(ctx, userID)
	quota := domain.TierLimits[userSettings.Usage.Tier]
	if userSettings.Usage.AIRequests >= quota {
		metrics.RecordUsageLimitHit(string(userSettings.Usage.Tier))
		writeError(w, http.StatusTooManyRequests, "USAGE_LIMIT_EXCEEDED", "Usage limit exceeded", map[string]any{
			"tier":  userSettings.Usage.Tier,
			"limit": quota,
		})
		return domain.UserSettings{}, false
	}

	result, err := h.limiter.Check(ctx, route+":"+userID, limit)
	if err != nil {
		slog.Error("rate limiter unavailable", "route", route, "user_id", userID, "error", err)
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", result.Reset.Format(time.RFC3339))

	if !result.Allowed {
		metrics.RecordRateLimitHit(route)
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded", map[string]any{
			"retryAfter": int(result.RetryAfter.Seconds()),
		})
		return domain.UserSettings{}, false
	}

	return userSettings, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded", map[string]any{
			"retryAfter": 60,
		})
	case errors.Is(err, domain.ErrUsageLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "USAGE_LIMIT_EXCEEDED", "Usage limit exceeded", nil)
	case errors.Is(err, domain.ErrCircuitBreakerOpen):
		writeError(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "AI provider temporarily unavailable", nil)
	case errors.Is(err, domain.ErrModelNotFound), errors.Is(err, domain.ErrMissingAPIKey):
		writeError(w, http.StatusForbidden, "MODEL_NOT_AVAILABLE", "Model not available", nil)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request format", nil)
	default:
		slog.Error("request failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Analysis failed", nil)
	}
}

func validateAnalyze(req analyzeRequest) map[string]any {
	details := make(map[string]any)
	if len(req.Content) < 50 {
		details["content"] = "must be at least 50 characters"
	}
	if req.Section == "" {
		details["section"] = "is required"
	}
	if req.Mode != ai.ModeAnalyze && req.Mode != ai.ModeImprove {
		details["mode"] = "must be analyze or improve"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func newRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeCacheableJSON marks AI responses privately cacheable for an hour
// so clients can avoid re-fetching identical analyses.
func writeCacheableJSON(w http.ResponseWriter, requestID string, cacheHit bool, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Request-ID", requestID)
	if cacheHit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	json.NewEncoder(w).Encode(v)
}
