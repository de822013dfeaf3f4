// Package usage records per-request usage history. Recording is
// best-effort: callers log failures and continue.
package usage

import (
	"context"
	"sync"
	"time"
)

type Record struct {
	UserID           string
	RequestID        string
	Provider         string
	Model            string
	Operation        string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	LatencyMs        int64
	Cached           bool
	CreatedAt        time.Time
}

type Recorder interface {
	Record(ctx context.Context, record Record) error
	UserRecords(ctx context.Context, userID string, since time.Time) ([]Record, error)
}

// InMemoryRecorder keeps records in memory. Used in tests and when no
// database is configured.
type InMemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

func (r *InMemoryRecorder) Record(ctx context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *InMemoryRecorder) UserRecords(ctx context.Context, userID string, since time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, record := range r.records {
		if record.UserID == userID && !record.CreatedAt.Before(since) {
			out = append(out, record)
		}
	}
	return out, nil
}
