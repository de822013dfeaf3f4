package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(databaseURL string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRecorder{db: db}, nil
}

func NewPostgresRecorderWithDB(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// DB exposes the underlying pool for health checks.
func (r *PostgresRecorder) DB() *sql.DB {
	return r.db
}

func (r *PostgresRecorder) Record(ctx context.Context, record Record) error {
	query := `
		INSERT INTO usage_records (user_id, request_id, provider, model, operation, prompt_tokens, completion_tokens, cost_usd, latency_ms, cached, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.UserID,
		record.RequestID,
		record.Provider,
		record.Model,
		record.Operation,
		record.PromptTokens,
		record.CompletionTokens,
		record.CostUSD,
		record.LatencyMs,
		record.Cached,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}

	return nil
}

func (r *PostgresRecorder) UserRecords(ctx context.Context, userID string, since time.Time) ([]Record, error) {
	query := `
		SELECT user_id, request_id, provider, model, operation, prompt_tokens, completion_tokens, cost_usd, latency_ms, cached, created_at
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		err := rows.Scan(
			&record.UserID,
			&record.RequestID,
			&record.Provider,
			&record.Model,
			&record.Operation,
			&record.PromptTokens,
			&record.CompletionTokens,
			&record.CostUSD,
			&record.LatencyMs,
			&record.Cached,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
