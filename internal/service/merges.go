package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"shortreel/internal/assemble"
	"shortreel/internal/domain"
	"shortreel/internal/media"
	"shortreel/internal/tasks"
)

// MergeRequest carries one assembly request through the service.
type MergeRequest struct {
	Title      string             `json:"title"`
	Clips      []domain.MergeClip `json:"clips"`
	ResourceID string             `json:"resource_id"`
}

// MergeService assembles clips into one video asynchronously against the
// ledger. The clip list is immutable once accepted.
type MergeService struct {
	merges    domain.VideoMergeRepository
	ledger    *tasks.Ledger
	executor  *tasks.Executor
	merger    *assemble.Merger
	localizer *media.Localizer
	logger    zerolog.Logger
}

func NewMergeService(
	merges domain.VideoMergeRepository,
	ledger *tasks.Ledger,
	executor *tasks.Executor,
	merger *assemble.Merger,
	localizer *media.Localizer,
	logger zerolog.Logger,
) *MergeService {
	return &MergeService{
		merges:    merges,
		ledger:    ledger,
		executor:  executor,
		merger:    merger,
		localizer: localizer,
		logger:    logger,
	}
}

// Create opens the ledger entry and the merge row, schedules the assembly,
// and returns immediately.
func (s *MergeService) Create(ctx context.Context, req MergeRequest) (*domain.VideoMerge, error) {
	task, err := s.ledger.Create(ctx, domain.TaskKindVideoMerge, req.ResourceID)
	if err != nil {
		return nil, err
	}

	merge := &domain.VideoMerge{
		TaskID: task.ID,
		Title:  req.Title,
		Status: domain.GenerationPending,
		Clips:  req.Clips,
	}
	if err := s.merges.Create(ctx, merge); err != nil {
		s.ledger.SetError(ctx, task.ID, "failed to persist merge record")
		return nil, err
	}

	s.executor.Submit("video_merge", func(jobCtx context.Context) {
		s.run(jobCtx, task.ID, merge.ID, req.Clips)
	})
	return merge, nil
}

// Get returns one merge record.
func (s *MergeService) Get(ctx context.Context, id int64) (*domain.VideoMerge, error) {
	return s.merges.GetByID(ctx, id)
}

func (s *MergeService) run(ctx context.Context, taskID string, mergeID int64, clips []domain.MergeClip) {
	if err := s.merges.MarkProcessing(ctx, mergeID); err != nil {
		s.logger.Error().Err(err).Int64("merge_id", mergeID).Msg("merge mark processing failed")
	}
	s.ledger.SetStatus(ctx, taskID, domain.TaskStatusProcessing, 10, "assembling video")

	out, err := s.merger.Merge(ctx, clips)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrNoValidSegments) {
			msg = "no valid video segments"
		}
		if repoErr := s.merges.MarkFailed(ctx, mergeID, msg); repoErr != nil {
			s.logger.Error().Err(repoErr).Int64("merge_id", mergeID).Msg("merge mark failed failed")
		}
		s.ledger.SetError(ctx, taskID, msg)
		s.logger.Error().Err(err).Int64("merge_id", mergeID).Msg("video merge failed")
		return
	}

	// A fallback keeps the original first-clip reference; a real concat
	// result is storage-relative and served under the static base.
	mergedURL := out.MergedPath
	if !out.Fallback {
		mergedURL = s.localizer.PublicURL(out.MergedPath)
	}

	if err := s.merges.MarkCompleted(ctx, mergeID, mergedURL, out.Duration); err != nil {
		s.logger.Error().Err(err).Int64("merge_id", mergeID).Msg("merge mark completed failed")
	}
	s.ledger.SetResult(ctx, taskID, map[string]any{
		"merge_id":  mergeID,
		"video_url": mergedURL,
		"duration":  out.Duration,
	})
	if out.Fallback {
		s.logger.Info().Int64("merge_id", mergeID).Msg("video merge completed with first-clip fallback")
		return
	}
	s.logger.Info().Int64("merge_id", mergeID).Str("merged_url", mergedURL).Msg("video merge completed")
}
