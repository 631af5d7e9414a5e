// Package tasks tracks long-running work in a persistent ledger and runs it
// on a bounded executor. The ledger is the single surface a polling client
// observes; adapters never report state anywhere else.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shortreel/internal/domain"
)

// Ledger creates and advances task records. Writes against tasks already in
// a terminal state are ignored and logged, never applied.
type Ledger struct {
	repo   domain.TaskRepository
	logger zerolog.Logger
}

func NewLedger(repo domain.TaskRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// Create opens a new pending ledger entry for the given kind and resource.
func (l *Ledger) Create(ctx context.Context, kind domain.TaskKind, resourceID string) (*domain.Task, error) {
	task := &domain.Task{
		ID:         uuid.NewString(),
		Type:       kind,
		Status:     domain.TaskStatusPending,
		ResourceID: resourceID,
	}
	if err := l.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	l.logger.Info().Str("task_id", task.ID).Str("type", string(kind)).Str("resource_id", resourceID).Msg("task created")
	return task, nil
}

// Get returns one ledger entry.
func (l *Ledger) Get(ctx context.Context, id string) (*domain.Task, error) {
	return l.repo.GetByID(ctx, id)
}

// ListByResource returns the entries attached to a resource, newest first.
func (l *Ledger) ListByResource(ctx context.Context, resourceID string) ([]domain.Task, error) {
	return l.repo.ListByResource(ctx, resourceID)
}

// SetStatus advances a task. Attempts to move a terminal task are dropped.
func (l *Ledger) SetStatus(ctx context.Context, id string, status domain.TaskStatus, progress int, message string) {
	applied, err := l.repo.UpdateStatus(ctx, id, status, progress, message)
	if err != nil {
		l.logger.Error().Err(err).Str("task_id", id).Str("status", string(status)).Msg("task status update failed")
		return
	}
	if !applied {
		l.logger.Warn().Str("task_id", id).Str("status", string(status)).Msg("ignored status write to terminal task")
	}
}

// SetResult marks the task completed with a JSON result payload.
func (l *Ledger) SetResult(ctx context.Context, id string, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		l.logger.Error().Err(err).Str("task_id", id).Msg("task result marshal failed")
		return
	}
	applied, err := l.repo.SetResult(ctx, id, payload)
	if err != nil {
		l.logger.Error().Err(err).Str("task_id", id).Msg("task result update failed")
		return
	}
	if !applied {
		l.logger.Warn().Str("task_id", id).Msg("ignored result write to terminal task")
		return
	}
	l.logger.Info().Str("task_id", id).Msg("task completed")
}

// SetError marks the task failed.
func (l *Ledger) SetError(ctx context.Context, id string, errMsg string) {
	applied, err := l.repo.SetError(ctx, id, errMsg)
	if err != nil {
		l.logger.Error().Err(err).Str("task_id", id).Msg("task error update failed")
		return
	}
	if !applied {
		l.logger.Warn().Str("task_id", id).Msg("ignored error write to terminal task")
		return
	}
	l.logger.Info().Str("task_id", id).Str("error", errMsg).Msg("task failed")
}
