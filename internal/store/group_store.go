package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/telescope-hq/telescope/internal/domain"
)

// GroupUpsert holds the data for one error occurrence being aggregated.
type GroupUpsert struct {
	DSN               string
	Fingerprint       string
	ErrorType         string
	NormalizedMessage string
	Message           string
	Stack             string
	Frames            []domain.StackFrame
	URL               string
	Release           string
	Breadcrumbs       []domain.Breadcrumb
	ReplayID          string
	SeenAt            time.Time
}

// UpsertResult reports the state of the group after one occurrence.
type UpsertResult struct {
	GroupID string
	Count   int64
	IsNew   bool
}

// UpsertErrorGroup inserts a new group for an unseen (dsn, fingerprint) or
// atomically increments the existing one. The increment happens inside the
// ON CONFLICT clause so two concurrent ingestions of the same fingerprint
// can never lose an update. xmax = 0 distinguishes a fresh insert from a
// conflict-update on the same statement.
func (s *PostgresStore) UpsertErrorGroup(ctx context.Context, u GroupUpsert) (*UpsertResult, error) {
	frames, err := json.Marshal(u.Frames)
	if err != nil {
		return nil, fmt.Errorf("marshaling frames: %w", err)
	}
	crumbs, err := json.Marshal(u.Breadcrumbs)
	if err != nil {
		return nil, fmt.Errorf("marshaling breadcrumbs: %w", err)
	}

	var res UpsertResult
	err = s.pool.QueryRow(ctx, `
		INSERT INTO error_groups (
			dsn, fingerprint, error_type, normalized_message, sample_message,
			sample_stack, sample_frames, url, release, breadcrumbs, replay_id,
			count, first_seen, last_seen, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $12, 'open')
		ON CONFLICT (dsn, fingerprint) DO UPDATE SET
			count       = error_groups.count + 1,
			last_seen   = EXCLUDED.last_seen,
			breadcrumbs = EXCLUDED.breadcrumbs,
			replay_id   = EXCLUDED.replay_id
		RETURNING id, count, (xmax = 0) AS inserted
	`, u.DSN, u.Fingerprint, u.ErrorType, u.NormalizedMessage, u.Message,
		u.Stack, frames, u.URL, u.Release, crumbs, u.ReplayID, u.SeenAt,
	).Scan(&res.GroupID, &res.Count, &res.IsNew)
	if err != nil {
		return nil, fmt.Errorf("upserting error group: %w", err)
	}
	return &res, nil
}

func (s *PostgresStore) GetErrorGroup(ctx context.Context, id string) (*domain.ErrorGroup, error) {
	g, err := s.scanGroup(s.pool.QueryRow(ctx, `
		SELECT id, dsn, fingerprint, error_type, normalized_message, sample_message,
		       sample_stack, sample_frames, url, release, breadcrumbs, replay_id,
		       count, first_seen, last_seen, status
		FROM error_groups WHERE id = $1
	`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying error group: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) ListErrorGroups(ctx context.Context, dsn, status string, limit int) ([]domain.ErrorGroup, error) {
	query := `
		SELECT id, dsn, fingerprint, error_type, normalized_message, sample_message,
		       sample_stack, sample_frames, url, release, breadcrumbs, replay_id,
		       count, first_seen, last_seen, status
		FROM error_groups`
	args := []interface{}{}
	argIdx := 1

	var where []string
	if dsn != "" {
		where = append(where, fmt.Sprintf("dsn = $%d", argIdx))
		args = append(args, dsn)
		argIdx++
	}
	if status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, status)
		argIdx++
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}

	query += " ORDER BY last_seen DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying error groups: %w", err)
	}
	defer rows.Close()

	groups := []domain.ErrorGroup{}
	for rows.Next() {
		g, err := s.scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning error group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// UpdateErrorGroupStatus mutates only the status column. Returns the
// updated group, or nil if the id is unknown.
func (s *PostgresStore) UpdateErrorGroupStatus(ctx context.Context, id, status string) (*domain.ErrorGroup, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE error_groups SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return nil, fmt.Errorf("updating error group status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.GetErrorGroup(ctx, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanGroup(row rowScanner) (*domain.ErrorGroup, error) {
	var g domain.ErrorGroup
	var frames []byte
	err := row.Scan(
		&g.ID, &g.DSN, &g.Fingerprint, &g.ErrorType, &g.NormalizedMessage,
		&g.SampleMessage, &g.SampleStack, &frames, &g.URL, &g.Release,
		&g.Breadcrumbs, &g.ReplayID, &g.Count, &g.FirstSeen, &g.LastSeen, &g.Status,
	)
	if err != nil {
		return nil, err
	}
	if len(frames) > 0 {
		if err := json.Unmarshal(frames, &g.SampleFrames); err != nil {
			return nil, fmt.Errorf("unmarshaling sample frames: %w", err)
		}
	}
	return &g, nil
}
