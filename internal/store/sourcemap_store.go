package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/telescope-hq/telescope/internal/domain"
)

// InsertSourceMap stores an uploaded artifact. Re-uploading the same
// (dsn, version, filename) replaces the content; artifacts are otherwise
// immutable.
func (s *PostgresStore) InsertSourceMap(ctx context.Context, a *domain.SourceMapArtifact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sourcemap_artifacts (id, dsn, version, filename, content, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dsn, version, filename) DO UPDATE SET
			content = EXCLUDED.content,
			size_bytes = EXCLUDED.size_bytes
		RETURNING created_at
	`, a.ID, a.DSN, a.Version, a.Filename, a.Content, a.SizeBytes).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting sourcemap artifact: %w", err)
	}
	return nil
}

// FindSourceMap looks up an artifact by (dsn, version, filename). When no
// exact version match exists it falls back to the newest artifact with the
// same filename across versions.
func (s *PostgresStore) FindSourceMap(ctx context.Context, dsn, version, filename string) (*domain.SourceMapArtifact, error) {
	a, err := s.scanArtifact(s.pool.QueryRow(ctx, `
		SELECT id, dsn, version, filename, content, size_bytes, created_at
		FROM sourcemap_artifacts
		WHERE dsn = $1 AND version = $2 AND filename = $3
	`, dsn, version, filename))
	if err == nil {
		return a, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("querying sourcemap artifact: %w", err)
	}

	a, err = s.scanArtifact(s.pool.QueryRow(ctx, `
		SELECT id, dsn, version, filename, content, size_bytes, created_at
		FROM sourcemap_artifacts
		WHERE dsn = $1 AND filename = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, dsn, filename))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying sourcemap artifact fallback: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListSourceMaps(ctx context.Context, dsn string) ([]domain.SourceMapArtifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dsn, version, filename, size_bytes, created_at
		FROM sourcemap_artifacts
		WHERE dsn = $1
		ORDER BY created_at DESC
	`, dsn)
	if err != nil {
		return nil, fmt.Errorf("querying sourcemap artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []domain.SourceMapArtifact{}
	for rows.Next() {
		var a domain.SourceMapArtifact
		err := rows.Scan(&a.ID, &a.DSN, &a.Version, &a.Filename, &a.SizeBytes, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning sourcemap artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func (s *PostgresStore) scanArtifact(row rowScanner) (*domain.SourceMapArtifact, error) {
	var a domain.SourceMapArtifact
	err := row.Scan(&a.ID, &a.DSN, &a.Version, &a.Filename, &a.Content, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
