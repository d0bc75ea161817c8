package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EnsureSchema creates the tables and indexes the service needs. It is
// idempotent and runs at every boot.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
  id                TEXT PRIMARY KEY,
  email             TEXT NOT NULL UNIQUE,
  password_hash     TEXT NOT NULL,
  display_name      TEXT NOT NULL DEFAULT '',
  is_active         BOOLEAN NOT NULL DEFAULT TRUE,
  is_admin          BOOLEAN NOT NULL DEFAULT FALSE,
  total_generations BIGINT NOT NULL DEFAULT 0,
  created_at        TIMESTAMPTZ NOT NULL,
  last_login_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tts_jobs (
  id           TEXT PRIMARY KEY,
  owner_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  status       TEXT NOT NULL,
  progress     DOUBLE PRECISION NOT NULL DEFAULT 0,
  message      TEXT NOT NULL DEFAULT '',
  params       JSONB NOT NULL,
  result_ref   TEXT NOT NULL DEFAULT '',
  error        TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tts_jobs_owner ON tts_jobs (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tts_jobs_status ON tts_jobs (status, created_at, id);
CREATE INDEX IF NOT EXISTS idx_tts_jobs_created ON tts_jobs (created_at);
`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
