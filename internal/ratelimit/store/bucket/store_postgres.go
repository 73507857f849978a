package bucket

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"formdesk/internal/ratelimit/models"
)

// PostgresBucketStore keeps one row per accepted request so every replica
// shares the same window. Calls for the same key serialize on a
// transaction-scoped advisory lock.
type PostgresBucketStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresBucketStore {
	return &PostgresBucketStore{db: db, now: time.Now}
}

func (s *PostgresBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (result *models.Result, err error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return nil, fmt.Errorf("lock rate limit key: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM rate_limit_events WHERE bucket_key = $1 AND occurred_at <= $2`,
		key, now.Add(-window),
	); err != nil {
		return nil, fmt.Errorf("expire rate limit events: %w", err)
	}

	var (
		count  int
		oldest sql.NullTime
	)
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(occurred_at) FROM rate_limit_events WHERE bucket_key = $1`,
		key,
	).Scan(&count, &oldest); err != nil {
		return nil, fmt.Errorf("count rate limit events: %w", err)
	}

	if count >= limit {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit rate limit tx: %w", err)
		}
		return models.Denied(limit, oldest.Time, now, window), nil
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO rate_limit_events (bucket_key, occurred_at) VALUES ($1, $2)`,
		key, now,
	); err != nil {
		return nil, fmt.Errorf("record rate limit event: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rate limit tx: %w", err)
	}

	return models.Allowed(limit, count+1, oldest.Time, now, window), nil
}
