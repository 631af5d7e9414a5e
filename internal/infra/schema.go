package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is executed on every boot. All statements are idempotent so the
// process can start against an empty or an already-initialized database.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS async_tasks (
    id           TEXT PRIMARY KEY,
    type         TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    progress     INT NOT NULL DEFAULT 0,
    message      TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    result       JSONB,
    resource_id  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_async_tasks_resource ON async_tasks (resource_id, created_at DESC);

CREATE TABLE IF NOT EXISTS ai_service_configs (
    id            BIGSERIAL PRIMARY KEY,
    service_type  TEXT NOT NULL DEFAULT 'text',
    provider      TEXT NOT NULL DEFAULT '',
    name          TEXT NOT NULL DEFAULT '',
    base_url      TEXT NOT NULL DEFAULT '',
    api_key       TEXT NOT NULL DEFAULT '',
    model         JSONB NOT NULL DEFAULT '[]',
    default_model TEXT,
    endpoint      TEXT NOT NULL DEFAULT '',
    query_endpoint TEXT NOT NULL DEFAULT '',
    priority      INT NOT NULL DEFAULT 0,
    is_default    BOOLEAN NOT NULL DEFAULT FALSE,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS image_generations (
    id           BIGSERIAL PRIMARY KEY,
    task_id      TEXT NOT NULL DEFAULT '',
    provider     TEXT NOT NULL DEFAULT '',
    prompt       TEXT NOT NULL DEFAULT '',
    model        TEXT,
    size         TEXT,
    quality      TEXT,
    status       TEXT NOT NULL DEFAULT 'pending',
    image_url    TEXT,
    local_path   TEXT,
    error_msg    TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS video_generations (
    id           BIGSERIAL PRIMARY KEY,
    task_id      TEXT NOT NULL DEFAULT '',
    provider     TEXT NOT NULL DEFAULT '',
    prompt       TEXT NOT NULL DEFAULT '',
    model        TEXT,
    duration     INT,
    aspect_ratio TEXT,
    status       TEXT NOT NULL DEFAULT 'pending',
    remote_task_id TEXT,
    video_url    TEXT,
    local_path   TEXT,
    error_msg    TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS video_merges (
    id           BIGSERIAL PRIMARY KEY,
    task_id      TEXT NOT NULL DEFAULT '',
    title        TEXT,
    status       TEXT NOT NULL DEFAULT 'pending',
    clips        JSONB NOT NULL DEFAULT '[]',
    merged_url   TEXT,
    duration     INT,
    error_msg    TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);
`

// EnsureSchema creates the tables this service owns if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
