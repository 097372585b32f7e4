package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the DDL for the job tables. Applied idempotently on startup;
// production deployments run the same statements through their migration
// tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS videos (
    id            UUID PRIMARY KEY,
    user_id       TEXT NOT NULL,
    template_id   TEXT NOT NULL,
    image_path    TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    video_url     TEXT,
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_videos_user_created
    ON videos (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS video_generations (
    video_id      UUID PRIMARY KEY REFERENCES videos (id) ON DELETE CASCADE,
    status        TEXT NOT NULL DEFAULT 'pending',
    progress      INT NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the job tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
