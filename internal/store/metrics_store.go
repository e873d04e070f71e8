package store

import (
	"context"
	"fmt"
)

// IngestMetrics holds aggregated platform statistics for the dashboard.
type IngestMetrics struct {
	TotalGroups      int     `json:"total_groups"`
	OpenGroups       int     `json:"open_groups"`
	ResolvedGroups   int     `json:"resolved_groups"`
	TotalOccurrences int64   `json:"total_occurrences"`
	AvgGroupCount    float64 `json:"avg_group_count"`
	AlertsTriggered  int     `json:"alerts_triggered"`
	PerformanceCount int     `json:"performance_count"`
	SourceMapCount   int     `json:"sourcemap_count"`
}

// GetIngestMetrics returns aggregated statistics from the database.
func (s *PostgresStore) GetIngestMetrics(ctx context.Context) (*IngestMetrics, error) {
	var m IngestMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'open') AS open,
			COUNT(*) FILTER (WHERE status = 'resolved') AS resolved,
			COALESCE(SUM(count), 0) AS occurrences,
			COALESCE(AVG(count), 0) AS avg_count
		FROM error_groups
	`).Scan(&m.TotalGroups, &m.OpenGroups, &m.ResolvedGroups, &m.TotalOccurrences, &m.AvgGroupCount)
	if err != nil {
		return nil, fmt.Errorf("querying group metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alert_history`).Scan(&m.AlertsTriggered)
	if err != nil {
		return nil, fmt.Errorf("querying alert metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM performance_events`).Scan(&m.PerformanceCount)
	if err != nil {
		return nil, fmt.Errorf("querying performance metrics: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sourcemap_artifacts`).Scan(&m.SourceMapCount)
	if err != nil {
		return nil, fmt.Errorf("querying sourcemap metrics: %w", err)
	}

	return &m, nil
}
