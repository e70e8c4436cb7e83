package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

// Compile-time interface assertions.
var (
	_ AttemptRecorder = (*PostgresAttemptRepo)(nil)
	_ AttemptRecorder = NoopAttemptRecorder{}
)

const createAttemptsTable = `
CREATE TABLE IF NOT EXISTS oauth_auth_attempts (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT        NOT NULL,
	platform    TEXT        NOT NULL,
	state       TEXT        NOT NULL,
	error       TEXT        NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS oauth_auth_attempts_session_idx ON oauth_auth_attempts (session_id);
`

// PostgresAttemptRepo implements AttemptRecorder on a pgx pool.
type PostgresAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAttemptRepo(pool *pgxpool.Pool) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{pool: pool}
}

// Migrate creates the ledger table when missing.
func (r *PostgresAttemptRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createAttemptsTable); err != nil {
		return fmt.Errorf("migrate attempts: %w", err)
	}
	return nil
}

func (r *PostgresAttemptRepo) Record(ctx context.Context, attempt oauth.Attempt) error {
	recordedAt := attempt.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_auth_attempts (session_id, platform, state, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, attempt.SessionID, string(attempt.Platform), string(attempt.State), attempt.Error, recordedAt)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// NoopAttemptRecorder discards attempts when no ledger database is configured.
type NoopAttemptRecorder struct{}

func (NoopAttemptRecorder) Record(context.Context, oauth.Attempt) error {
	return nil
}
