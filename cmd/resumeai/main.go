package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resumeforge/resume-ai/internal/ai"
	"github.com/resumeforge/resume-ai/internal/api"
	"github.com/resumeforge/resume-ai/internal/auth"
	"github.com/resumeforge/resume-ai/internal/budget"
	"github.com/resumeforge/resume-ai/internal/cache"
	"github.com/resumeforge/resume-ai/internal/circuitbreaker"
	"github.com/resumeforge/resume-ai/internal/config"
	"github.com/resumeforge/resume-ai/internal/crypto"
	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/notifications"
	"github.com/resumeforge/resume-ai/internal/provider"
	"github.com/resumeforge/resume-ai/internal/queue"
	"github.com/resumeforge/resume-ai/internal/ratelimit"
	"github.com/resumeforge/resume-ai/internal/secrets"
	"github.com/resumeforge/resume-ai/internal/settings"
	"github.com/resumeforge/resume-ai/internal/telemetry"
	"github.com/resumeforge/resume-ai/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting resume AI service", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTLPEndpoint != "" {
		shutdownTracing, err := telemetry.Init(ctx, "resume-ai", cfg.OTLPEndpoint)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer shutdownTracing(context.Background())
			slog.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint)
		}
	}

	var store kvstore.Store
	var checkers []api.HealthChecker
	if cfg.RedisURL != "" {
		redisStore, err := kvstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore

		checker, err := api.NewRedisHealthChecker(cfg.RedisURL)
		if err == nil {
			checkers = append(checkers, checker)
		}
		slog.Info("using redis store", "url", cfg.RedisURL)
	} else {
		store = kvstore.NewInMemoryStore()
		slog.Info("using in-memory store")
	}

	var responseCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			slog.Warn("failed to connect to redis for cache, using in-memory", "error", err)
			responseCache = cache.NewInMemoryCache()
		} else {
			defer redisCache.Close()
			if cfg.CacheEncryptionKey != "" {
				enc, err := crypto.NewEncryptor(cfg.CacheEncryptionKey)
				if err != nil {
					slog.Error("invalid cache encryption key", "error", err)
					os.Exit(1)
				}
				redisCache = redisCache.WithEncryptor(enc)
				slog.Info("cache encryption enabled")
			}
			responseCache = redisCache
			slog.Info("using redis cache")
		}
	} else {
		responseCache = cache.NewInMemoryCache()
		slog.Info("using in-memory cache")
	}

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis for rate limiting", "error", err)
			os.Exit(1)
		}
		limiter = redisLimiter
		slog.Info("using redis rate limiter")
	} else {
		limiter = ratelimit.NewInMemoryLimiter()
		slog.Info("using in-memory rate limiter")
	}

	var recorder usage.Recorder
	if cfg.DatabaseURL != "" {
		pgRecorder, err := usage.NewPostgresRecorder(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pgRecorder.Close()
		recorder = pgRecorder
		checkers = append(checkers, api.NewPostgresHealthChecker(pgRecorder.DB()))
		slog.Info("recording usage to postgres")
	} else {
		recorder = usage.NewInMemoryRecorder()
		slog.Info("recording usage in memory")
	}

	if cfg.UsageExportQueueURL != "" {
		exporter, err := queue.NewSQSExporter(ctx, cfg.AWSRegion, cfg.UsageExportQueueURL)
		if err != nil {
			slog.Warn("usage export disabled", "error", err)
		} else {
			recorder = queue.NewExportingRecorder(recorder, exporter)
			slog.Info("exporting usage to sqs", "queue", cfg.UsageExportQueueURL)
		}
	}

	apiKeys := loadVendorKeys(ctx, cfg)
	if len(apiKeys) == 0 {
		slog.Error("no provider API keys configured")
		os.Exit(1)
	}

	factory := provider.NewFactory(apiKeys)
	if cfg.DefaultModel != "" {
		if err := factory.SetDefault(ctx, cfg.DefaultModel); err != nil {
			slog.Error("failed to initialize default model", "model", cfg.DefaultModel, "error", err)
			os.Exit(1)
		}
		slog.Info("default model ready", "model", cfg.DefaultModel)
	}

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	settingsSvc := settings.NewService(store)
	aiSvc := ai.NewService(factory, settingsSvc, store, responseCache, recorder, ratelimit.NewFixedWindow(store))

	if cfg.RedisURL != "" {
		aiSvc.SetBreakers(circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), circuitbreaker.WithRedis(cfg.RedisURL)))
	}

	aiSvc.SetSpendMonitor(newSpendMonitor(ctx, cfg, recorder))

	handler := api.NewHandler(api.HandlerConfig{
		Verifier:    auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Settings:    settingsSvc,
		AI:          aiSvc,
		RateLimiter: limiter,
		Checkers:    checkers,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// newSpendMonitor builds the monthly spend monitor. Alerts always go to
// the log; they also go to SNS when an alerts topic is configured.
func newSpendMonitor(ctx context.Context, cfg *config.Config, recorder usage.Recorder) *budget.Monitor {
	var dedup budget.AlertDeduplicator
	if cfg.RedisURL != "" {
		redisDedup, err := budget.NewRedisDeduplicator(cfg.RedisURL, time.Hour)
		if err != nil {
			slog.Warn("redis alert dedup unavailable, using in-memory", "error", err)
		} else {
			dedup = redisDedup
		}
	}

	monitor := budget.NewMonitor(recorder, budget.DefaultThresholds(), dedup)
	monitor.OnAlert(budget.LogAlertHandler)

	if cfg.AlertsTopicARN != "" {
		notifier, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.AlertsTopicARN)
		if err != nil {
			slog.Warn("sns alerts disabled", "error", err)
		} else {
			monitor.OnAlert(snsAlertHandler(notifier))
			slog.Info("spend alerts publishing to sns", "topic", cfg.AlertsTopicARN)
		}
	}

	return monitor
}

func snsAlertHandler(notifier notifications.Notifier) budget.AlertHandler {
	types := map[budget.AlertLevel]notifications.NotificationType{
		budget.AlertLevelWarning:  notifications.NotificationSpendWarning,
		budget.AlertLevelCritical: notifications.NotificationSpendCritical,
		budget.AlertLevelExceeded: notifications.NotificationSpendExceeded,
	}

	return func(alert budget.Alert) {
		notification := notifications.Notification{
			Type:    types[alert.Level],
			UserID:  alert.UserID,
			Message: fmt.Sprintf("monthly AI spend at %.0f%% of budget", alert.Percentage),
			Data: map[string]any{
				"budget_usd":  alert.Budget,
				"current_usd": alert.CurrentUse,
			},
		}
		if err := notifier.Send(context.Background(), notification); err != nil {
			slog.Warn("spend alert publish failed", "user_id", alert.UserID, "error", err)
		}
	}
}

// loadVendorKeys merges Secrets Manager keys over the env fallbacks when
// VENDOR_KEYS_SECRET is configured, otherwise uses the env vars alone.
func loadVendorKeys(ctx context.Context, cfg *config.Config) map[domain.ProviderID]string {
	fallback := map[domain.ProviderID]string{
		domain.ProviderGemini:   cfg.GeminiAPIKey,
		domain.ProviderDeepseek: cfg.DeepseekAPIKey,
		domain.ProviderOpenAI:   cfg.OpenAIAPIKey,
	}
	for id, key := range fallback {
		if key == "" {
			delete(fallback, id)
		}
	}

	if cfg.VendorKeysSecret == "" {
		return fallback
	}

	awsStore, err := secrets.NewAWSStore(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Warn("secrets manager unavailable, using env keys", "error", err)
		return fallback
	}

	keys, err := secrets.VendorKeys(ctx, awsStore, cfg.VendorKeysSecret, fallback)
	if err != nil {
		slog.Warn("vendor keys secret unreadable, using env keys", "error", err)
		return fallback
	}

	slog.Info("vendor keys loaded from secrets manager", "secret", cfg.VendorKeysSecret)
	return keys
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
