package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shortreel/internal/domain"
)

// VideoMergeRepositoryPG implements domain.VideoMergeRepository. The clip
// list is written once at creation and never mutated afterwards.
type VideoMergeRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoMergeRepository creates a merge repository backed by PostgreSQL.
func NewVideoMergeRepository(pool *pgxpool.Pool) *VideoMergeRepositoryPG {
	return &VideoMergeRepositoryPG{pool: pool}
}

// Create inserts a new merge job with its immutable clip list.
func (r *VideoMergeRepositoryPG) Create(ctx context.Context, merge *domain.VideoMerge) error {
	clips, err := json.Marshal(merge.Clips)
	if err != nil {
		return fmt.Errorf("encode clips: %w", err)
	}
	query := `
INSERT INTO video_merges (task_id, title, status, clips)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at;
`
	return r.pool.QueryRow(ctx, query,
		merge.TaskID,
		nullableString(merge.Title),
		merge.Status,
		clips,
	).Scan(&merge.ID, &merge.CreatedAt)
}

// GetByID fetches a merge job.
func (r *VideoMergeRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.VideoMerge, error) {
	query := `
SELECT id, task_id, COALESCE(title, ''), status, clips, COALESCE(merged_url, ''),
       COALESCE(duration, 0), COALESCE(error_msg, ''), created_at, completed_at
FROM video_merges
WHERE id = $1;
`
	var merge domain.VideoMerge
	var clips []byte
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&merge.ID,
		&merge.TaskID,
		&merge.Title,
		&merge.Status,
		&clips,
		&merge.MergedURL,
		&merge.Duration,
		&merge.ErrorMsg,
		&merge.CreatedAt,
		&merge.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(clips, &merge.Clips); err != nil {
		return nil, fmt.Errorf("decode clips: %w", err)
	}
	return &merge, nil
}

// MarkProcessing moves the job out of pending.
func (r *VideoMergeRepositoryPG) MarkProcessing(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE video_merges SET status = 'processing' WHERE id = $1;`, id)
	return err
}

// MarkCompleted records the merged output and the summed duration.
func (r *VideoMergeRepositoryPG) MarkCompleted(ctx context.Context, id int64, mergedURL string, duration int) error {
	query := `
UPDATE video_merges
SET status = 'completed', merged_url = $2, duration = $3, error_msg = NULL, completed_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, mergedURL, duration)
	return err
}

// MarkFailed records the failure message.
func (r *VideoMergeRepositoryPG) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
UPDATE video_merges
SET status = 'failed', error_msg = $2, completed_at = now()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, errMsg)
	return err
}
