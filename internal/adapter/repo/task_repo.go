package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shortreel/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository. Status transitions only
// move forward: every UPDATE is guarded so terminal rows are never touched,
// and completed_at is written exactly once by the first terminal transition.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new task repository backed by PostgreSQL.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

// Create inserts a new ledger entry.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) error {
	query := `
INSERT INTO async_tasks (id, type, status, progress, message, resource_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;
`
	return r.pool.QueryRow(ctx, query,
		task.ID,
		task.Type,
		task.Status,
		task.Progress,
		task.Message,
		task.ResourceID,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
}

// GetByID fetches a ledger entry by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := taskSelect + ` WHERE id = $1;`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListByResource returns the ledger entries attached to a resource, newest first.
func (r *TaskRepositoryPG) ListByResource(ctx context.Context, resourceID string) ([]domain.Task, error) {
	query := taskSelect + ` WHERE resource_id = $1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateStatus moves a non-terminal task to the given status. Terminal target
// statuses also stamp completed_at. Returns false when the row was already
// terminal and the write was ignored.
func (r *TaskRepositoryPG) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, progress int, message string) (bool, error) {
	query := `
UPDATE async_tasks
SET status = $2,
    progress = $3,
    message = $4,
    updated_at = now(),
    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, id, status, progress, message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetResult stores the result payload and completes the task.
func (r *TaskRepositoryPG) SetResult(ctx context.Context, id string, result []byte) (bool, error) {
	query := `
UPDATE async_tasks
SET status = 'completed',
    progress = 100,
    result = $2,
    updated_at = now(),
    completed_at = now()
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, id, nullableBytes(result))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetError records a failure message and fails the task. Progress is frozen.
func (r *TaskRepositoryPG) SetError(ctx context.Context, id string, errMsg string) (bool, error) {
	query := `
UPDATE async_tasks
SET status = 'failed',
    error = $2,
    updated_at = now(),
    completed_at = now()
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const taskSelect = `
SELECT id, type, status, progress, message, error, result, resource_id, created_at, updated_at, completed_at
FROM async_tasks`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	if err := row.Scan(
		&task.ID,
		&task.Type,
		&task.Status,
		&task.Progress,
		&task.Message,
		&task.Error,
		&task.Result,
		&task.ResourceID,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &task, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
