package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telescope-hq/telescope/internal/domain"
)

// InsertPerformance stores one performance event.
func (s *PostgresStore) InsertPerformance(ctx context.Context, dsn, url string, metrics map[string]float64, at time.Time) error {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO performance_events (dsn, url, metrics, created_at)
		VALUES ($1, $2, $3, $4)
	`, dsn, url, payload, at)
	if err != nil {
		return fmt.Errorf("inserting performance event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPerformance(ctx context.Context, dsn string, limit int) ([]domain.PerformanceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dsn, url, metrics, created_at
		FROM performance_events
		WHERE dsn = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, dsn, limit)
	if err != nil {
		return nil, fmt.Errorf("querying performance events: %w", err)
	}
	defer rows.Close()

	records := []domain.PerformanceRecord{}
	for rows.Next() {
		var r domain.PerformanceRecord
		var metrics []byte
		if err := rows.Scan(&r.ID, &r.DSN, &r.URL, &metrics, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning performance event: %w", err)
		}
		if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshaling metrics: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// PurgePerformanceBefore deletes performance events older than the cutoff.
// Used by the retention job.
func (s *PostgresStore) PurgePerformanceBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM performance_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging performance events: %w", err)
	}
	return tag.RowsAffected(), nil
}
