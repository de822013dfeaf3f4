// Package queue exports usage records to SQS for downstream billing and
// analytics consumers. Export is best-effort and asynchronous to the
// request path.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/resumeforge/resume-ai/internal/usage"
)

type exportMessage struct {
	UserID           string    `json:"user_id"`
	RequestID        string    `json:"request_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Operation        string    `json:"operation"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMs        int64     `json:"latency_ms"`
	Cached           bool      `json:"cached"`
	CreatedAt        time.Time `json:"created_at"`
}

type Exporter interface {
	Enqueue(ctx context.Context, record usage.Record) error
}

type SQSExporter struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSExporter(ctx context.Context, region, queueURL string) (*SQSExporter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSExporter{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

func NewSQSExporterWithConfig(cfg aws.Config, queueURL string) *SQSExporter {
	return &SQSExporter{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (e *SQSExporter) Enqueue(ctx context.Context, record usage.Record) error {
	body, err := json.Marshal(exportMessage(record))
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"UserID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.UserID),
			},
			"RequestID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.RequestID),
			},
		},
	}

	_, err = e.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// ExportingRecorder tees every record to an exporter after handing it to
// the wrapped recorder. Export failures are logged and swallowed.
type ExportingRecorder struct {
	inner    usage.Recorder
	exporter Exporter
}

func NewExportingRecorder(inner usage.Recorder, exporter Exporter) *ExportingRecorder {
	return &ExportingRecorder{inner: inner, exporter: exporter}
}

func (r *ExportingRecorder) Record(ctx context.Context, record usage.Record) error {
	if err := r.inner.Record(ctx, record); err != nil {
		return err
	}

	if err := r.exporter.Enqueue(ctx, record); err != nil {
		slog.Warn("usage export failed", "request_id", record.RequestID, "error", err)
	}

	return nil
}

func (r *ExportingRecorder) UserRecords(ctx context.Context, userID string, since time.Time) ([]usage.Record, error) {
	return r.inner.UserRecords(ctx, userID, since)
}

// InMemoryExporter collects enqueued records for tests.
type InMemoryExporter struct {
	mu      sync.Mutex
	records []usage.Record
}

func NewInMemoryExporter() *InMemoryExporter {
	return &InMemoryExporter{}
}

func (e *InMemoryExporter) Enqueue(ctx context.Context, record usage.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	return nil
}

func (e *InMemoryExporter) Exported() []usage.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]usage.Record, len(e.records))
	copy(result, e.records)
	return result
}
