package domain

import "time"

// ProviderID identifies an LLM vendor.
type ProviderID string

const (
	ProviderGemini   ProviderID = "gemini"
	ProviderDeepseek ProviderID = "deepseek"
	ProviderOpenAI   ProviderID = "openai"
)

// ModelConfig is the immutable configuration for one logical model.
// One instance exists per distinct (provider, model name) pair.
type ModelConfig struct {
	Provider    ProviderID
	ModelName   string
	Temperature float64
	MaxTokens   int
	APIKey      string
}

type CompletionRequest struct {
	Prompt        string   `json:"prompt"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
	Stream        bool     `json:"stream,omitempty"`
}

type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type CompletionResponse struct {
	Text     string         `json:"text"`
	Usage    TokenUsage     `json:"usage"`
	Metadata map[string]any `json:"metadata"`
}

// StreamChunk is one element of a streaming completion. The final chunk
// carries Done=true and no text; a stream always ends with it unless the
// consumer cancels first.
type StreamChunk struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Tier is a user's service level. It determines the AI request quota and
// which models are available.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// TierLimits maps each tier to its AI request quota per billing period.
var TierLimits = map[Tier]int{
	TierFree: 25,
	TierPro:  250,
}

type UserProfile struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Timezone string `json:"timezone,omitempty"`
}

type AIPreferences struct {
	DefaultModel string  `json:"defaultModel"`
	Temperature  float64 `json:"temperature"`
}

type Usage struct {
	Tier        Tier      `json:"tier"`
	AIRequests  int       `json:"aiRequests"`
	LastRequest time.Time `json:"lastRequest,omitempty"`
}

type UserSettings struct {
	UserID    string        `json:"userId"`
	Profile   UserProfile   `json:"profile"`
	AI        AIPreferences `json:"ai"`
	Usage     Usage         `json:"usage"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// SectionAnalysis is the result of analyzing one resume section.
type SectionAnalysis struct {
	Score       int      `json:"score"`
	Feedback    []string `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}

type ATSCompatibility struct {
	Overall      int      `json:"overall"`
	Format       int      `json:"format"`
	Content      int      `json:"content"`
	Keywords     int      `json:"keywords"`
	Improvements []string `json:"improvements"`
}

type AnalyzeMetadata struct {
	ModelUsed      string `json:"modelUsed"`
	ProcessingTime int64  `json:"processingTime"`
	Cached         bool   `json:"cached"`
}

type AnalyzeResult struct {
	Analysis         SectionAnalysis  `json:"analysis"`
	ATSCompatibility ATSCompatibility `json:"atsCompatibility"`
	Metadata         AnalyzeMetadata  `json:"metadata"`
}

// JobAnalysis is the structured extraction of a job description.
type JobAnalysis struct {
	RequiredSkills  []string `json:"requiredSkills"`
	PreferredSkills []string `json:"preferredSkills"`
	Experience      struct {
		Years int    `json:"years"`
		Level string `json:"level"`
	} `json:"experience"`
	Education             []string `json:"education"`
	Responsibilities      []string `json:"responsibilities"`
	TechnicalRequirements struct {
		Tools         []string `json:"tools"`
		Platforms     []string `json:"platforms"`
		Methodologies []string `json:"methodologies"`
	} `json:"technicalRequirements"`
	SoftSkills []string `json:"softSkills"`
	Benefits   []string `json:"benefits"`
	Metadata   struct {
		SeniorityLevel string   `json:"seniorityLevel"`
		EmploymentType string   `json:"employmentType"`
		WorkplaceType  string   `json:"workplaceType"`
		Locations      []string `json:"locations"`
	} `json:"metadata"`
}

type ATSScore struct {
	Overall  int `json:"overall"`
	Format   int `json:"format"`
	Content  int `json:"content"`
	Keywords int `json:"keywords"`
}

type Suggestions struct {
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Improvements []string `json:"improvements"`
}

type TailorResult struct {
	EnhancedContent string   `json:"enhancedContent"`
	MatchScore      int      `json:"matchScore"`
	Suggestions     []string `json:"suggestions"`
	MatchedKeywords []string `json:"matchedKeywords"`
}
