// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// PostgresStore reads and finalizes voice records.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and fails fast if the database is unreachable.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run repeatedly.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const selectVoice = `
	SELECT id, user_id, provider_voice_id, status, preview_url, error_message,
	       created_at, updated_at, completed_at, event_pending
	FROM voices WHERE id = $1`

// Get loads one record.
func (s *PostgresStore) Get(ctx context.Context, id string) (*VoiceRecord, error) {
	var r VoiceRecord
	var status string
	err := s.pool.QueryRow(ctx, selectVoice, id).Scan(
		&r.ID, &r.UserID, &r.ProviderVoiceID, &status, &r.PreviewURL, &r.ErrorMessage,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt, &r.EventPending,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get voice %s: %w", id, err)
	}
	r.Status = Status(status)
	return &r, nil
}

// Create inserts a new record.
func (s *PostgresStore) Create(ctx context.Context, r *VoiceRecord) error {
	status := r.Status
	if status == "" {
		status = StatusPending
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO voices (id, user_id, provider_voice_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		r.ID, r.UserID, r.ProviderVoiceID, string(status), created)
	if err != nil {
		return fmt.Errorf("create voice %s: %w", r.ID, err)
	}
	return nil
}

const finalizeVoice = `
	UPDATE voices SET
	    status = $2,
	    preview_url = CASE WHEN $3 = '' THEN preview_url ELSE $3 END,
	    error_message = CASE WHEN $4 = '' THEN error_message ELSE $4 END,
	    updated_at = $5,
	    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN $5 ELSE completed_at END,
	    event_pending = $2 IN ('completed', 'failed')
	WHERE id = $1`

// ApplyUpdates commits every update in one transaction using a single batch.
func (s *PostgresStore) ApplyUpdates(ctx context.Context, updates []VoiceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		at := u.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		batch.Queue(finalizeVoice, u.ID, string(u.Status), u.PreviewURL, u.ErrorMessage, at)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for _, u := range updates {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("update voice %s: %w", u.ID, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
		return nil
	})
}

// MarkPublished clears the pending-event marker set by ApplyUpdates.
func (s *PostgresStore) MarkPublished(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE voices SET event_pending = false WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark voice %s published: %w", id, err)
	}
	return nil
}
