package budget

import (
	"context"
	"testing"
	"time"

	"github.com/resumeforge/resume-ai/internal/domain"
	"github.com/resumeforge/resume-ai/internal/usage"
)

type stubRecorder struct {
	costs map[string]float64
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{costs: make(map[string]float64)}
}

func (r *stubRecorder) Record(ctx context.Context, record usage.Record) error {
	r.costs[record.UserID] += record.CostUSD
	return nil
}

func (r *stubRecorder) UserRecords(ctx context.Context, userID string, since time.Time) ([]usage.Record, error) {
	return []usage.Record{{UserID: userID, CostUSD: r.costs[userID], CreatedAt: time.Now()}}, nil
}

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()

	if th.Warning != 0.8 {
		t.Errorf("Warning threshold = %v, want 0.8", th.Warning)
	}
	if th.Critical != 0.95 {
		t.Errorf("Critical threshold = %v, want 0.95", th.Critical)
	}
}

func TestMonitor_Check_UnderBudget(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 0.50 // 50% of the free ceiling

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	alert, err := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if alert != nil {
		t.Error("Check() should return nil alert when under warning threshold")
	}
}

func TestMonitor_Check_WarningLevel(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 0.85

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	alert, err := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Check() should return alert at warning level")
	}
	if alert.Level != AlertLevelWarning {
		t.Errorf("alert.Level = %v, want %v", alert.Level, AlertLevelWarning)
	}
	if alert.UserID != "user-1" {
		t.Errorf("alert.UserID = %v, want user-1", alert.UserID)
	}
}

func TestMonitor_Check_CriticalLevel(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 0.96

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	alert, err := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Check() should return alert at critical level")
	}
	if alert.Level != AlertLevelCritical {
		t.Errorf("alert.Level = %v, want %v", alert.Level, AlertLevelCritical)
	}
}

func TestMonitor_Check_ExceededLevel(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 1.10

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	alert, err := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Check() should return alert when exceeded")
	}
	if alert.Level != AlertLevelExceeded {
		t.Errorf("alert.Level = %v, want %v", alert.Level, AlertLevelExceeded)
	}
	if alert.Budget != TierBudgets[domain.TierFree] {
		t.Errorf("alert.Budget = %v, want %v", alert.Budget, TierBudgets[domain.TierFree])
	}
}

func TestMonitor_Check_ProTierCeiling(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 1.10 // past the free ceiling, 11% of pro

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	alert, err := monitor.Check(context.Background(), "user-1", domain.TierPro)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if alert != nil {
		t.Error("pro tier should not alert at this spend")
	}
}

func TestMonitor_Check_NoRepeatAlerts(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 0.85

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	alert1, _ := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if alert1 == nil {
		t.Fatal("First check should return alert")
	}

	alert2, _ := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if alert2 != nil {
		t.Error("Second check at same level should not return alert")
	}
}

func TestMonitor_Check_EscalatesLevels(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 0.85

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	if alert, _ := monitor.Check(context.Background(), "user-1", domain.TierFree); alert == nil {
		t.Fatal("expected warning alert")
	}

	recorder.costs["user-1"] = 1.10
	alert, _ := monitor.Check(context.Background(), "user-1", domain.TierFree)
	if alert == nil {
		t.Fatal("expected exceeded alert after spend grew")
	}
	if alert.Level != AlertLevelExceeded {
		t.Errorf("alert.Level = %v, want %v", alert.Level, AlertLevelExceeded)
	}
}

func TestMonitor_OnAlert(t *testing.T) {
	recorder := newStubRecorder()
	recorder.costs["user-1"] = 0.85

	monitor := NewMonitor(recorder, DefaultThresholds(), nil)

	var receivedAlert *Alert
	monitor.OnAlert(func(a Alert) {
		receivedAlert = &a
	})

	monitor.Check(context.Background(), "user-1", domain.TierFree)

	if receivedAlert == nil {
		t.Fatal("Alert handler should have been called")
	}
	if receivedAlert.UserID != "user-1" {
		t.Errorf("receivedAlert.UserID = %v, want user-1", receivedAlert.UserID)
	}
}

func TestLogAlertHandler(t *testing.T) {
	// Just verify it doesn't panic.
	LogAlertHandler(Alert{
		UserID:     "user-1",
		Level:      AlertLevelWarning,
		Budget:     1.0,
		CurrentUse: 0.85,
		Percentage: 85.0,
		Timestamp:  time.Now(),
	})
}
