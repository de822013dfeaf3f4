package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/metrics"
	"github.com/resumeforge/resume-ai/internal/ratelimit"
)

// ErrBadOutput reports that the model returned output that does not
// match the expected result shape. Malformed output is never cached.
var ErrBadOutput = errors.New("model returned malformed output")

const (
	ModeAnalyze = "analyze"
	ModeImprove = "improve"
)

type AnalyzeInput struct {
	UserID         string
	Content        string
	Section        string
	JobDescription string
	ModelName      string
	Mode           string
}

// AnalyzeSection scores one resume section, optionally against a job
// description. Results are cached in the shared store per user, section,
// and content fingerprint; the fingerprint covers mode and job
// description so the two modes never collide.
func (s *Service) AnalyzeSection(ctx context.Context, in AnalyzeInput) (*domain.AnalyzeResult, error) {
	start := s.now()

	fingerprint := strings.Join([]string{in.Mode, in.Content, in.JobDescription}, "\x00")
	key := kvstore.AnalysisKey(in.UserID, in.Section, fingerprint)

	var cached domain.AnalyzeResult
	found, err := s.store.GetJSON(ctx, key, &cached)
	if err != nil {
		slog.Warn("analysis cache read failed", "user_id", in.UserID, "error", err)
	}
	if found && validateAnalyzeResult(&cached) == nil {
		metrics.RecordCacheHit("analyze")
		cached.Metadata.Cached = true
		cached.Metadata.ProcessingTime = s.now().Sub(start).Milliseconds()
		return &cached, nil
	}
	metrics.RecordCacheMiss("analyze")

	var prompt string
	var temperature float64
	switch in.Mode {
	case ModeImprove:
		prompt = improvementPrompt(in.Section, in.Content, in.JobDescription)
		temperature = 0.7
	default:
		prompt = analysisPrompt(in.Section, in.Content, in.JobDescription)
		temperature = 0.3
	}

	resp, err := s.Complete(ctx, in.UserID, in.ModelName, domain.CompletionRequest{
		Prompt:      prompt,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	var result domain.AnalyzeResult
	if err := decodeOutput(resp.Text, &result); err != nil {
		return nil, err
	}
	if err := validateAnalyzeResult(&result); err != nil {
		return nil, err
	}

	result.Metadata = domain.AnalyzeMetadata{
		ModelUsed:      modelFromMetadata(resp),
		ProcessingTime: s.now().Sub(start).Milliseconds(),
	}

	if err := s.store.SetJSON(ctx, key, result, analysisCacheTTL); err != nil {
		slog.Warn("analysis cache write failed", "user_id", in.UserID, "error", err)
	}

	return &result, nil
}

type ParseJobInput struct {
	UserID     string
	Content    string
	TargetRole string
	ModelName  string
}

// ParseJob extracts a structured job analysis from a description. A
// parse consumes one point of the user's daily analysis budget; cache
// hits are free and reported through the second return. Parsed jobs are
// reused across a day since postings rarely change.
func (s *Service) ParseJob(ctx context.Context, in ParseJobInput) (*domain.JobAnalysis, bool, error) {
	key := kvstore.JobParseKey(in.UserID, in.Content+"\x00"+in.TargetRole)

	var cached domain.JobAnalysis
	found, err := s.store.GetJSON(ctx, key, &cached)
	if err != nil {
		slog.Warn("job parse cache read failed", "user_id", in.UserID, "error", err)
	}
	if found && validateJobAnalysis(&cached) == nil {
		metrics.RecordCacheHit("parse_job")
		return &cached, true, nil
	}
	metrics.RecordCacheMiss("parse_job")

	if err := s.budget.Allow(ctx, in.UserID, ratelimit.ActionAnalysis); err != nil {
		return nil, false, err
	}

	temperature := 0.1
	maxTokens := 1000
	resp, err := s.Complete(ctx, in.UserID, in.ModelName, domain.CompletionRequest{
		Prompt:      jobParsePrompt(in.Content, in.TargetRole),
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, false, err
	}

	var analysis domain.JobAnalysis
	if err := decodeOutput(resp.Text, &analysis); err != nil {
		return nil, false, err
	}
	if err := validateJobAnalysis(&analysis); err != nil {
		return nil, false, err
	}

	if err := s.store.SetJSON(ctx, key, analysis, jobParseCacheTTL); err != nil {
		slog.Warn("job parse cache write failed", "user_id", in.UserID, "error", err)
	}

	return &analysis, false, nil
}

// ATSScore rates a resume's compatibility with applicant tracking
// systems, optionally against a target job description.
func (s *Service) ATSScore(ctx context.Context, userID, resumeContent, jobDescription string) (*domain.ATSScore, error) {
	temperature := 0.3
	resp, err := s.Complete(ctx, userID, "", domain.CompletionRequest{
		Prompt:      atsScorePrompt(resumeContent, jobDescription),
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	var score domain.ATSScore
	if err := decodeOutput(resp.Text, &score); err != nil {
		return nil, err
	}

	for _, v := range []int{score.Overall, score.Format, score.Content, score.Keywords} {
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("%w: score %d out of range", ErrBadOutput, v)
		}
	}

	return &score, nil
}

// Suggestions produces strengths, weaknesses, and improvement ideas for
// a full resume.
func (s *Service) Suggestions(ctx context.Context, userID, resumeContent, jobDescription string) (*domain.Suggestions, error) {
	temperature := 0.7
	resp, err := s.Complete(ctx, userID, "", domain.CompletionRequest{
		Prompt:      suggestionsPrompt(resumeContent, jobDescription),
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	var suggestions domain.Suggestions
	if err := decodeOutput(resp.Text, &suggestions); err != nil {
		return nil, err
	}

	return &suggestions, nil
}

// TailorResume rewrites resume content toward a parsed job analysis. A
// tailor consumes one point of the user's daily tailor budget.
func (s *Service) TailorResume(ctx context.Context, userID, resumeContent string, jobAnalysis domain.JobAnalysis) (*domain.TailorResult, error) {
	if err := s.budget.Allow(ctx, userID, ratelimit.ActionTailor); err != nil {
		return nil, err
	}

	analysisJSON, err := json.Marshal(jobAnalysis)
	if err != nil {
		return nil, fmt.Errorf("marshal job analysis: %w", err)
	}

	temperature := 0.7
	resp, err := s.Complete(ctx, userID, "", domain.CompletionRequest{
		Prompt:      tailorPrompt(resumeContent, string(analysisJSON)),
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	var result domain.TailorResult
	if err := decodeOutput(resp.Text, &result); err != nil {
		return nil, err
	}

	if result.EnhancedContent == "" {
		return nil, fmt.Errorf("%w: empty enhanced content", ErrBadOutput)
	}
	if result.MatchScore < 0 || result.MatchScore > 100 {
		return nil, fmt.Errorf("%w: match score %d out of range", ErrBadOutput, result.MatchScore)
	}

	return &result, nil
}

// decodeOutput parses JSON from model text, tolerating markdown fences
// and prose around the object.
func decodeOutput(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("%w: no JSON object in output", ErrBadOutput)
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOutput, err)
	}

	return nil
}

func validateAnalyzeResult(r *domain.AnalyzeResult) error {
	if r.Analysis.Score < 0 || r.Analysis.Score > 100 {
		return fmt.Errorf("%w: analysis score %d out of range", ErrBadOutput, r.Analysis.Score)
	}
	for _, v := range []int{r.ATSCompatibility.Overall, r.ATSCompatibility.Format, r.ATSCompatibility.Content, r.ATSCompatibility.Keywords} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: ats score %d out of range", ErrBadOutput, v)
		}
	}
	if len(r.Analysis.Feedback) == 0 && len(r.Analysis.Suggestions) == 0 {
		return fmt.Errorf("%w: analysis carries no feedback", ErrBadOutput)
	}
	return nil
}

func validateJobAnalysis(a *domain.JobAnalysis) error {
	if a.Experience.Years < 0 {
		return fmt.Errorf("%w: negative experience years", ErrBadOutput)
	}
	if len(a.RequiredSkills) == 0 && len(a.Responsibilities) == 0 {
		return fmt.Errorf("%w: job analysis extracted nothing", ErrBadOutput)
	}
	return nil
}

func modelFromMetadata(resp *domain.CompletionResponse) string {
	if resp.Metadata == nil {
		return ""
	}
	if model, ok := resp.Metadata["model"].(string); ok {
		return model
	}
	return ""
}
