package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/telescope-hq/telescope/internal/domain"
)

func (s *PostgresStore) CreateAlertRule(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO alert_rules (id, dsn, name, type, threshold, time_window_minutes,
		                         recipients, cooldown_minutes, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, rule.ID, rule.DSN, rule.Name, rule.Type, rule.Threshold, rule.TimeWindowMin,
		rule.Recipients, rule.CooldownMinutes, rule.Enabled,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting alert rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	var r domain.AlertRule
	err := s.pool.QueryRow(ctx, `
		SELECT id, dsn, name, type, threshold, time_window_minutes,
		       recipients, cooldown_minutes, enabled, created_at, updated_at
		FROM alert_rules WHERE id = $1
	`, id).Scan(
		&r.ID, &r.DSN, &r.Name, &r.Type, &r.Threshold, &r.TimeWindowMin,
		&r.Recipients, &r.CooldownMinutes, &r.Enabled, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying alert rule: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListAlertRules(ctx context.Context, dsn string) ([]domain.AlertRule, error) {
	query := `
		SELECT id, dsn, name, type, threshold, time_window_minutes,
		       recipients, cooldown_minutes, enabled, created_at, updated_at
		FROM alert_rules`
	args := []interface{}{}
	if dsn != "" {
		query += " WHERE dsn = $1"
		args = append(args, dsn)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alert rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.AlertRule{}
	for rows.Next() {
		var r domain.AlertRule
		err := rows.Scan(
			&r.ID, &r.DSN, &r.Name, &r.Type, &r.Threshold, &r.TimeWindowMin,
			&r.Recipients, &r.CooldownMinutes, &r.Enabled, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning alert rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// EnabledRulesForDSN returns the rules the engine evaluates for one project.
func (s *PostgresStore) EnabledRulesForDSN(ctx context.Context, dsn string) ([]domain.AlertRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dsn, name, type, threshold, time_window_minutes,
		       recipients, cooldown_minutes, enabled, created_at, updated_at
		FROM alert_rules WHERE dsn = $1 AND enabled = true
	`, dsn)
	if err != nil {
		return nil, fmt.Errorf("querying enabled rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.AlertRule{}
	for rows.Next() {
		var r domain.AlertRule
		err := rows.Scan(
			&r.ID, &r.DSN, &r.Name, &r.Type, &r.Threshold, &r.TimeWindowMin,
			&r.Recipients, &r.CooldownMinutes, &r.Enabled, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning alert rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (s *PostgresStore) UpdateAlertRule(ctx context.Context, id string, req domain.UpdateRuleRequest) (*domain.AlertRule, error) {
	rule, err := s.GetAlertRule(ctx, id)
	if err != nil || rule == nil {
		return rule, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.TimeWindowMin != nil {
		rule.TimeWindowMin = *req.TimeWindowMin
	}
	if req.Recipients != nil {
		rule.Recipients = *req.Recipients
	}
	if req.CooldownMinutes != nil {
		rule.CooldownMinutes = *req.CooldownMinutes
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	err = s.pool.QueryRow(ctx, `
		UPDATE alert_rules
		SET name = $1, threshold = $2, time_window_minutes = $3, recipients = $4,
		    cooldown_minutes = $5, enabled = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`, rule.Name, rule.Threshold, rule.TimeWindowMin, rule.Recipients,
		rule.CooldownMinutes, rule.Enabled, id,
	).Scan(&rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updating alert rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) DeleteAlertRule(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting alert rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertAlertHistory appends one trigger record. Append-only by contract.
func (s *PostgresStore) InsertAlertHistory(ctx context.Context, h *domain.AlertHistory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history (id, rule_id, dsn, fingerprint, message, triggered_at, email_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.RuleID, h.DSN, h.Fingerprint, h.Message, h.TriggeredAt, h.EmailSent)
	if err != nil {
		return fmt.Errorf("inserting alert history: %w", err)
	}
	return nil
}

// MarkAlertHistoryEmailFailed records that notification dispatch failed for
// a history row. The row itself is never removed.
func (s *PostgresStore) MarkAlertHistoryEmailFailed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE alert_history SET email_sent = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking alert history email failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAlertHistory(ctx context.Context, dsn string, limit int) ([]domain.AlertHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT h.id, h.rule_id, COALESCE(r.name, ''), h.dsn, h.fingerprint,
		       h.message, h.triggered_at, h.email_sent
		FROM alert_history h
		LEFT JOIN alert_rules r ON r.id = h.rule_id`
	args := []interface{}{}
	argIdx := 1
	if dsn != "" {
		query += fmt.Sprintf(" WHERE h.dsn = $%d", argIdx)
		args = append(args, dsn)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY h.triggered_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alert history: %w", err)
	}
	defer rows.Close()

	history := []domain.AlertHistory{}
	for rows.Next() {
		var h domain.AlertHistory
		err := rows.Scan(&h.ID, &h.RuleID, &h.RuleName, &h.DSN, &h.Fingerprint,
			&h.Message, &h.TriggeredAt, &h.EmailSent)
		if err != nil {
			return nil, fmt.Errorf("scanning alert history: %w", err)
		}
		history = append(history, h)
	}
	return history, nil
}

// PurgeAlertHistoryBefore deletes history rows older than the cutoff.
func (s *PostgresStore) PurgeAlertHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alert_history WHERE triggered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging alert history: %w", err)
	}
	return tag.RowsAffected(), nil
}
