package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	RedisURL    string
	DatabaseURL string

	GeminiAPIKey   string
	DeepseekAPIKey string
	OpenAIAPIKey   string
	DefaultModel   string

	JWTSecret string
	JWTIssuer string

	// When set, vendor API keys are fetched from AWS Secrets Manager
	// and the *_API_KEY variables act as fallbacks.
	AWSRegion        string
	VendorKeysSecret string

	// Optional integrations. Each stays disabled when its value is empty.
	OTLPEndpoint        string
	AlertsTopicARN      string
	UsageExportQueueURL string
	CacheEncryptionKey  string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:             getEnv("ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RedisURL:         getEnv("REDIS_URL", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		DeepseekAPIKey:   getEnv("DEEPSEEK_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "resume-ai"),
		AWSRegion:        getEnv("AWS_REGION", ""),
		VendorKeysSecret: getEnv("VENDOR_KEYS_SECRET", ""),

		OTLPEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		AlertsTopicARN:      getEnv("ALERTS_TOPIC_ARN", ""),
		UsageExportQueueURL: getEnv("USAGE_EXPORT_QUEUE_URL", ""),
		CacheEncryptionKey:  getEnv("CACHE_ENCRYPTION_KEY", ""),

		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
