// Package settings manages per-user configuration: profile, AI
// preferences, and usage counters. Reads are served through a short-lived
// in-process cache layered over the shared store; the read path falls
// back to tier defaults rather than failing.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/provider"
)

const readCacheTTL = 5 * time.Minute

// Update is a partial settings change. Nil fields are left untouched.
type Update struct {
	Profile *domain.UserProfile
	AI      *domain.AIPreferences
	Tier    *domain.Tier
}

type cachedSettings struct {
	settings  domain.UserSettings
	expiresAt time.Time
}

type Service struct {
	store kvstore.Store

	mu    sync.Mutex
	cache map[string]*cachedSettings
	now   func() time.Time
}

func NewService(store kvstore.Store) *Service {
	return &Service{
		store: store,
		cache: make(map[string]*cachedSettings),
		now:   time.Now,
	}
}

// GetUserSettings returns the user's settings, lazily creating free-tier
// defaults on first access. It never fails with "not found"; on store
// errors it returns fresh defaults so the caller can proceed.
func (s *Service) GetUserSettings(ctx context.Context, userID string) domain.UserSettings {
	if cached, ok := s.getCached(userID); ok {
		return cached
	}

	var settings domain.UserSettings
	found, err := s.store.GetJSON(ctx, kvstore.SettingsKey(userID), &settings)
	if err != nil {
		slog.Warn("settings read failed, using defaults", "user_id", userID, "error", err)
		return s.defaults(userID)
	}
	if !found {
		settings = s.defaults(userID)
		if err := s.store.SetJSON(ctx, kvstore.SettingsKey(userID), settings, 0); err != nil {
			slog.Warn("settings write failed", "user_id", userID, "error", err)
		}
	}

	if err := validate(settings); err != nil {
		slog.Warn("stored settings invalid, using defaults", "user_id", userID, "error", err)
		return s.defaults(userID)
	}

	s.setCached(userID, settings)
	return settings
}

// UpdateSettings merges the partial update, validates the merged result,
// persists it, and refreshes the read cache. On validation failure the
// prior entry stays in place.
func (s *Service) UpdateSettings(ctx context.Context, userID string, update Update) (domain.UserSettings, error) {
	current := s.GetUserSettings(ctx, userID)

	if update.Profile != nil {
		current.Profile = *update.Profile
	}
	if update.AI != nil {
		current.AI = *update.AI
	}
	if update.Tier != nil {
		current.Usage.Tier = *update.Tier
	}
	current.UpdatedAt = s.now().UTC()

	if err := validate(current); err != nil {
		return domain.UserSettings{}, err
	}

	if err := s.store.SetJSON(ctx, kvstore.SettingsKey(userID), current, 0); err != nil {
		return domain.UserSettings{}, fmt.Errorf("persist settings: %w", err)
	}

	s.setCached(userID, current)
	return current, nil
}

// UpdateUsage increments the AI request counter and stamps the last
// request time. Best-effort: a lost increment is preferable to failing
// the AI call that triggered it.
func (s *Service) UpdateUsage(ctx context.Context, userID string, delta int) {
	current := s.GetUserSettings(ctx, userID)
	current.Usage.AIRequests += delta
	current.Usage.LastRequest = s.now().UTC()
	current.UpdatedAt = current.Usage.LastRequest

	if err := s.store.SetJSON(ctx, kvstore.SettingsKey(userID), current, 0); err != nil {
		slog.Warn("usage update failed", "user_id", userID, "error", err)
		return
	}

	s.setCached(userID, current)
}

func (s *Service) getCached(userID string) (domain.UserSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.cache[userID]
	if !ok {
		return domain.UserSettings{}, false
	}
	if s.now().After(cached.expiresAt) {
		delete(s.cache, userID)
		return domain.UserSettings{}, false
	}
	return cached.settings, true
}

func (s *Service) setCached(userID string, settings domain.UserSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[userID] = &cachedSettings{
		settings:  settings,
		expiresAt: s.now().Add(readCacheTTL),
	}
}

// InvalidateCache drops the in-process entry for a user, forcing the next
// read through to the shared store.
func (s *Service) InvalidateCache(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, userID)
}

func (s *Service) defaults(userID string) domain.UserSettings {
	now := s.now().UTC()
	return domain.UserSettings{
		UserID:  userID,
		Profile: domain.UserProfile{},
		AI: domain.AIPreferences{
			DefaultModel: provider.DefaultModelID,
			Temperature:  0.7,
		},
		Usage: domain.Usage{
			Tier:       domain.TierFree,
			AIRequests: 0,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validate(s domain.UserSettings) error {
	if s.UserID == "" {
		return fmt.Errorf("%w: missing user id", domain.ErrValidation)
	}
	if _, ok := domain.TierLimits[s.Usage.Tier]; !ok {
		return fmt.Errorf("%w: unknown tier %q", domain.ErrValidation, s.Usage.Tier)
	}
	if s.AI.Temperature < 0 || s.AI.Temperature > 1 {
		return fmt.Errorf("%w: temperature %v out of range [0,1]", domain.ErrValidation, s.AI.Temperature)
	}
	if s.AI.DefaultModel != "" {
		if _, ok := provider.Registry[s.AI.DefaultModel]; !ok {
			return fmt.Errorf("%w: unknown model %q", domain.ErrValidation, s.AI.DefaultModel)
		}
	}
	if s.Usage.AIRequests < 0 {
		return fmt.Errorf("%w: negative request count", domain.ErrValidation)
	}
	return nil
}
