package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/kvstore"
)

// Action is a named AI operation with its own daily point budget. This is
// the simpler of the two limiter forms: a fixed 24-hour window and a plain
// error instead of a structured result.
type Action string

const (
	ActionAnalysis Action = "ai_analysis"
	ActionTailor   Action = "ai_tailor"
)

const actionWindow = 24 * time.Hour

var actionBudgets = map[Action]int64{
	ActionAnalysis: 10,
	ActionTailor:   20,
}

// FixedWindow enforces per-action daily budgets on top of the shared
// counter store.
type FixedWindow struct {
	store kvstore.Store
}

func NewFixedWindow(store kvstore.Store) *FixedWindow {
	return &FixedWindow{store: store}
}

// Allow consumes one point from the user's daily budget for the action.
// It returns domain.ErrRateLimited once the budget is exhausted, and also
// when the counter store is unreachable (fail closed).
func (f *FixedWindow) Allow(ctx context.Context, userID string, action Action) error {
	budget, ok := actionBudgets[action]
	if !ok {
		return fmt.Errorf("unknown rate limit action %q", action)
	}

	key := fmt.Sprintf("rate_limit:%s:%s", action, userID)

	count, err := f.store.IncrBy(ctx, key, 1, actionWindow)
	if err != nil {
		return fmt.Errorf("%w: counter store unavailable: %v", domain.ErrRateLimited, err)
	}

	if count > budget {
		return domain.ErrRateLimited
	}

	return nil
}
