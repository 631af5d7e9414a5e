package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shortreel/internal/domain"
)

// ImageGenerationRepositoryPG implements domain.ImageGenerationRepository.
type ImageGenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageGenerationRepository creates an image generation repository backed by PostgreSQL.
func NewImageGenerationRepository(pool *pgxpool.Pool) *ImageGenerationRepositoryPG {
	return &ImageGenerationRepositoryPG{pool: pool}
}

// Create inserts a new generation record.
func (r *ImageGenerationRepositoryPG) Create(ctx context.Context, gen *domain.ImageGeneration) error {
	query := `
INSERT INTO image_generations (task_id, provider, prompt, model, size, quality, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at;
`
	return r.pool.QueryRow(ctx, query,
		gen.TaskID,
		gen.Provider,
		gen.Prompt,
		nullableString(gen.Model),
		nullableString(gen.Size),
		nullableString(gen.Quality),
		gen.Status,
	).Scan(&gen.ID, &gen.CreatedAt, &gen.UpdatedAt)
}

// GetByID fetches a generation record.
func (r *ImageGenerationRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.ImageGeneration, error) {
	query := `
SELECT id, task_id, provider, prompt, COALESCE(model, ''), COALESCE(size, ''), COALESCE(quality, ''),
       status, COALESCE(image_url, ''), COALESCE(local_path, ''), COALESCE(error_msg, ''),
       created_at, updated_at, completed_at
FROM image_generations
WHERE id = $1;
`
	var gen domain.ImageGeneration
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&gen.ID,
		&gen.TaskID,
		&gen.Provider,
		&gen.Prompt,
		&gen.Model,
		&gen.Size,
		&gen.Quality,
		&gen.Status,
		&gen.ImageURL,
		&gen.LocalPath,
		&gen.ErrorMsg,
		&gen.CreatedAt,
		&gen.UpdatedAt,
		&gen.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &gen, nil
}

// MarkProcessing moves the record out of pending.
func (r *ImageGenerationRepositoryPG) MarkProcessing(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE image_generations SET status = 'processing', updated_at = now() WHERE id = $1;`, id)
	return err
}

// MarkCompleted records the remote URL and the durable local copy.
func (r *ImageGenerationRepositoryPG) MarkCompleted(ctx context.Context, id int64, imageURL, localPath string) error {
	query := `
UPDATE image_generations
SET status = 'completed', image_url = $2, local_path = $3, completed_at = now(), updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, imageURL, nullableString(localPath))
	return err
}

// MarkFailed records the failure message verbatim for display.
func (r *ImageGenerationRepositoryPG) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
UPDATE image_generations
SET status = 'failed', error_msg = $2, updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, errMsg)
	return err
}

// VideoGenerationRepositoryPG implements domain.VideoGenerationRepository.
type VideoGenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoGenerationRepository creates a video generation repository backed by PostgreSQL.
func NewVideoGenerationRepository(pool *pgxpool.Pool) *VideoGenerationRepositoryPG {
	return &VideoGenerationRepositoryPG{pool: pool}
}

// Create inserts a new generation record.
func (r *VideoGenerationRepositoryPG) Create(ctx context.Context, gen *domain.VideoGeneration) error {
	query := `
INSERT INTO video_generations (task_id, provider, prompt, model, duration, aspect_ratio, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at;
`
	return r.pool.QueryRow(ctx, query,
		gen.TaskID,
		gen.Provider,
		gen.Prompt,
		nullableString(gen.Model),
		gen.Duration,
		nullableString(gen.AspectRatio),
		gen.Status,
	).Scan(&gen.ID, &gen.CreatedAt, &gen.UpdatedAt)
}

// GetByID fetches a generation record.
func (r *VideoGenerationRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.VideoGeneration, error) {
	query := `
SELECT id, task_id, provider, prompt, COALESCE(model, ''), COALESCE(duration, 0), COALESCE(aspect_ratio, ''),
       status, COALESCE(remote_task_id, ''), COALESCE(video_url, ''), COALESCE(local_path, ''),
       COALESCE(error_msg, ''), created_at, updated_at, completed_at
FROM video_generations
WHERE id = $1;
`
	var gen domain.VideoGeneration
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&gen.ID,
		&gen.TaskID,
		&gen.Provider,
		&gen.Prompt,
		&gen.Model,
		&gen.Duration,
		&gen.AspectRatio,
		&gen.Status,
		&gen.RemoteTaskID,
		&gen.VideoURL,
		&gen.LocalPath,
		&gen.ErrorMsg,
		&gen.CreatedAt,
		&gen.UpdatedAt,
		&gen.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &gen, nil
}

// MarkProcessing moves the record out of pending and stores the provider-side
// task id once a submission has been accepted.
func (r *VideoGenerationRepositoryPG) MarkProcessing(ctx context.Context, id int64, remoteTaskID string) error {
	query := `
UPDATE video_generations
SET status = 'processing', remote_task_id = COALESCE(NULLIF($2, ''), remote_task_id), updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, remoteTaskID)
	return err
}

// MarkCompleted records the remote URL and the durable local copy.
func (r *VideoGenerationRepositoryPG) MarkCompleted(ctx context.Context, id int64, videoURL, localPath string) error {
	query := `
UPDATE video_generations
SET status = 'completed', video_url = $2, local_path = $3, completed_at = now(), updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, videoURL, nullableString(localPath))
	return err
}

// MarkFailed records the failure message verbatim for display.
func (r *VideoGenerationRepositoryPG) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
UPDATE video_generations
SET status = 'failed', error_msg = $2, updated_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, errMsg)
	return err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
