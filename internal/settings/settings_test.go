package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
	"github.com/resumeforge/resume-ai/internal/provider"
)

func TestGetUserSettings_CreatesDefaults(t *testing.T) {
	svc := NewService(kvstore.NewInMemoryStore())

	got := svc.GetUserSettings(context.Background(), "user-1")

	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.UserID)
	}
	if got.Usage.Tier != domain.TierFree {
		t.Errorf("Tier = %q, want %q", got.Usage.Tier, domain.TierFree)
	}
	if got.AI.DefaultModel != provider.DefaultModelID {
		t.Errorf("DefaultModel = %q, want %q", got.AI.DefaultModel, provider.DefaultModelID)
	}
	if got.AI.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", got.AI.Temperature)
	}
}

func TestGetUserSettings_PersistsDefaults(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	svc.GetUserSettings(ctx, "user-1")

	var stored domain.UserSettings
	found, err := store.GetJSON(ctx, kvstore.SettingsKey("user-1"), &stored)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !found {
		t.Fatal("defaults should be written to the store on first access")
	}
	if stored.UserID != "user-1" {
		t.Errorf("stored UserID = %q, want user-1", stored.UserID)
	}
}

func TestUpdateSettings_MergesPartialUpdate(t *testing.T) {
	svc := NewService(kvstore.NewInMemoryStore())
	ctx := context.Background()

	profile := domain.UserProfile{Name: "Ada", Email: "ada@example.com"}
	got, err := svc.UpdateSettings(ctx, "user-1", Update{Profile: &profile})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	if got.Profile.Name != "Ada" {
		t.Errorf("Profile.Name = %q, want Ada", got.Profile.Name)
	}
	if got.AI.DefaultModel != provider.DefaultModelID {
		t.Error("untouched AI preferences should keep their defaults")
	}
	if got.Usage.Tier != domain.TierFree {
		t.Error("untouched tier should stay free")
	}
}

func TestUpdateSettings_TierChange(t *testing.T) {
	svc := NewService(kvstore.NewInMemoryStore())
	ctx := context.Background()

	pro := domain.TierPro
	got, err := svc.UpdateSettings(ctx, "user-1", Update{Tier: &pro})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got.Usage.Tier != domain.TierPro {
		t.Errorf("Tier = %q, want %q", got.Usage.Tier, domain.TierPro)
	}
}

func TestUpdateSettings_RejectsInvalid(t *testing.T) {
	svc := NewService(kvstore.NewInMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name   string
		update Update
	}{
		{"temperature too high", Update{AI: &domain.AIPreferences{DefaultModel: provider.DefaultModelID, Temperature: 3.5}}},
		{"negative temperature", Update{AI: &domain.AIPreferences{DefaultModel: provider.DefaultModelID, Temperature: -0.1}}},
		{"unknown model", Update{AI: &domain.AIPreferences{DefaultModel: "gpt-99", Temperature: 0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateSettings(ctx, "user-1", tt.update)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}

	got := svc.GetUserSettings(ctx, "user-1")
	if got.AI.Temperature != 0.7 {
		t.Errorf("failed update should leave settings untouched, Temperature = %v", got.AI.Temperature)
	}
}

func TestUpdateUsage_IncrementsCounter(t *testing.T) {
	svc := NewService(kvstore.NewInMemoryStore())
	ctx := context.Background()

	svc.UpdateUsage(ctx, "user-1", 1)
	svc.UpdateUsage(ctx, "user-1", 1)

	got := svc.GetUserSettings(ctx, "user-1")
	if got.Usage.AIRequests != 2 {
		t.Errorf("AIRequests = %d, want 2", got.Usage.AIRequests)
	}
	if got.Usage.LastRequest.IsZero() {
		t.Error("LastRequest should be stamped")
	}
}

func TestReadCache_ServesUntilExpiry(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	svc := NewService(store)
	current := time.Now()
	svc.now = func() time.Time { return current }

	ctx := context.Background()
	svc.GetUserSettings(ctx, "user-1")

	// Write behind the cache's back.
	var raw domain.UserSettings
	store.GetJSON(ctx, kvstore.SettingsKey("user-1"), &raw)
	raw.Profile.Name = "changed"
	store.SetJSON(ctx, kvstore.SettingsKey("user-1"), raw, 0)

	if got := svc.GetUserSettings(ctx, "user-1"); got.Profile.Name == "changed" {
		t.Error("read inside the cache TTL should not see the store write")
	}

	current = current.Add(readCacheTTL + time.Second)

	if got := svc.GetUserSettings(ctx, "user-1"); got.Profile.Name != "changed" {
		t.Error("read after the cache TTL should see the store write")
	}
}

func TestInvalidateCache(t *testing.T) {
	store := kvstore.NewInMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	svc.GetUserSettings(ctx, "user-1")

	var raw domain.UserSettings
	store.GetJSON(ctx, kvstore.SettingsKey("user-1"), &raw)
	raw.Profile.Name = "changed"
	store.SetJSON(ctx, kvstore.SettingsKey("user-1"), raw, 0)

	svc.InvalidateCache("user-1")

	if got := svc.GetUserSettings(ctx, "user-1"); got.Profile.Name != "changed" {
		t.Error("read after invalidation should hit the store")
	}
}
