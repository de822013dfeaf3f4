// Package budget watches per-user AI spend against tier ceilings and
// raises threshold alerts. It reads the usage records written by the
// orchestration layer; it never blocks a request.
package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/usage"
)

type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelExceeded AlertLevel = "exceeded"
)

type Alert struct {
	UserID     string
	Level      AlertLevel
	Budget     float64
	CurrentUse float64
	Percentage float64
	Timestamp  time.Time
}

type AlertHandler func(alert Alert)

// TierBudgets is the monthly USD spend ceiling per tier.
var TierBudgets = map[domain.Tier]float64{
	domain.TierFree: 1.0,
	domain.TierPro:  10.0,
}

type Thresholds struct {
	Warning  float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:  0.8,
		Critical: 0.95,
	}
}

type Monitor struct {
	mu            sync.RWMutex
	recorder      usage.Recorder
	alertHandlers []AlertHandler
	thresholds    Thresholds
	dedup         AlertDeduplicator
	now           func() time.Time
}

func NewMonitor(recorder usage.Recorder, thresholds Thresholds, dedup AlertDeduplicator) *Monitor {
	if dedup == nil {
		dedup = NewInMemoryDeduplicator()
	}
	return &Monitor{
		recorder:      recorder,
		thresholds:    thresholds,
		alertHandlers: make([]AlertHandler, 0),
		dedup:         dedup,
		now:           time.Now,
	}
}

func (m *Monitor) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertHandlers = append(m.alertHandlers, handler)
}

// Check computes the user's month-to-date spend and dispatches an alert
// when a threshold is newly crossed. Returns nil when under the warning
// threshold or when the alert was already sent.
func (m *Monitor) Check(ctx context.Context, userID string, tier domain.Tier) (*Alert, error) {
	ceiling, ok := TierBudgets[tier]
	if !ok || ceiling <= 0 {
		return nil, nil
	}

	currentCost, err := m.monthToDate(ctx, userID)
	if err != nil {
		return nil, err
	}

	percentage := currentCost / ceiling

	var level AlertLevel
	switch {
	case percentage >= 1.0:
		level = AlertLevelExceeded
	case percentage >= m.thresholds.Critical:
		level = AlertLevelCritical
	case percentage >= m.thresholds.Warning:
		level = AlertLevelWarning
	default:
		m.dedup.ClearAlert(ctx, userID)
		return nil, nil
	}

	if !m.dedup.ShouldAlert(ctx, userID, level) {
		return nil, nil
	}

	alert := &Alert{
		UserID:     userID,
		Level:      level,
		Budget:     ceiling,
		CurrentUse: currentCost,
		Percentage: percentage * 100,
		Timestamp:  m.now(),
	}

	m.mu.RLock()
	handlers := make([]AlertHandler, len(m.alertHandlers))
	copy(handlers, m.alertHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		handler(*alert)
	}

	return alert, nil
}

func (m *Monitor) monthToDate(ctx context.Context, userID string) (float64, error) {
	now := m.now().UTC()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	records, err := m.recorder.UserRecords(ctx, userID, startOfMonth)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, r := range records {
		total += r.CostUSD
	}
	return total, nil
}

func LogAlertHandler(alert Alert) {
	slog.Warn("spend alert",
		"user_id", alert.UserID,
		"level", alert.Level,
		"budget", alert.Budget,
		"current_use", alert.CurrentUse,
		"percentage", alert.Percentage,
	)
}
