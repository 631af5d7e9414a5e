package service

import (
	"context"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
	"shortreel/internal/media"
	"shortreel/internal/providers"
	"shortreel/internal/providers/video"
	"shortreel/internal/tasks"
)

// VideoRequest carries one video generation request through the service.
type VideoRequest struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model"`
	Provider        string   `json:"provider"`
	ImageURL        string   `json:"image_url"`
	FirstFrameURL   string   `json:"first_frame_url"`
	LastFrameURL    string   `json:"last_frame_url"`
	ReferenceImages []string `json:"reference_images"`
	Duration        int      `json:"duration"`
	AspectRatio     string   `json:"aspect_ratio"`
	Resolution      string   `json:"resolution"`
	Seed            *int64   `json:"seed"`
	CameraFixed     *bool    `json:"camera_fixed"`
	Watermark       *bool    `json:"watermark"`
	ResourceID      string   `json:"resource_id"`
}

// VideoService runs video generations asynchronously against the ledger,
// including the submit/poll tail for providers that answer with a task id.
type VideoService struct {
	gens      domain.VideoGenerationRepository
	ledger    *tasks.Ledger
	executor  *tasks.Executor
	resolver  *providers.Resolver
	adapter   *video.Adapter
	localizer *media.Localizer
	logger    zerolog.Logger
}

func NewVideoService(
	gens domain.VideoGenerationRepository,
	ledger *tasks.Ledger,
	executor *tasks.Executor,
	resolver *providers.Resolver,
	adapter *video.Adapter,
	localizer *media.Localizer,
	logger zerolog.Logger,
) *VideoService {
	return &VideoService{
		gens:      gens,
		ledger:    ledger,
		executor:  executor,
		resolver:  resolver,
		adapter:   adapter,
		localizer: localizer,
		logger:    logger,
	}
}

// CreateAndGenerate opens the ledger entry and the generation row, schedules
// the provider call, and returns immediately.
func (s *VideoService) CreateAndGenerate(ctx context.Context, req VideoRequest) (*domain.VideoGeneration, error) {
	task, err := s.ledger.Create(ctx, domain.TaskKindVideoGeneration, req.ResourceID)
	if err != nil {
		return nil, err
	}

	gen := &domain.VideoGeneration{
		TaskID:      task.ID,
		Provider:    req.Provider,
		Prompt:      req.Prompt,
		Model:       req.Model,
		Duration:    req.Duration,
		AspectRatio: req.AspectRatio,
		Status:      domain.GenerationPending,
	}
	if err := s.gens.Create(ctx, gen); err != nil {
		s.ledger.SetError(ctx, task.ID, "failed to persist generation record")
		return nil, err
	}

	s.executor.Submit("video_generation", func(jobCtx context.Context) {
		s.run(jobCtx, task.ID, gen.ID, req)
	})
	return gen, nil
}

// Get returns one generation record.
func (s *VideoService) Get(ctx context.Context, id int64) (*domain.VideoGeneration, error) {
	return s.gens.GetByID(ctx, id)
}

func (s *VideoService) run(ctx context.Context, taskID string, genID int64, req VideoRequest) {
	if err := s.gens.MarkProcessing(ctx, genID, ""); err != nil {
		s.logger.Error().Err(err).Int64("generation_id", genID).Msg("video generation mark processing failed")
	}
	s.ledger.SetStatus(ctx, taskID, domain.TaskStatusProcessing, 10, "submitting video generation")

	cfg, err := s.resolver.Resolve(ctx, domain.CapabilityVideo, req.Model, req.Provider)
	if err != nil {
		s.fail(ctx, taskID, genID, err)
		return
	}

	res, err := s.adapter.Submit(ctx, cfg, video.Request{
		Prompt:          req.Prompt,
		Model:           req.Model,
		ImageURL:        req.ImageURL,
		FirstFrameURL:   req.FirstFrameURL,
		LastFrameURL:    req.LastFrameURL,
		ReferenceImages: req.ReferenceImages,
		Duration:        req.Duration,
		AspectRatio:     req.AspectRatio,
		Resolution:      req.Resolution,
		Seed:            req.Seed,
		CameraFixed:     req.CameraFixed,
		Watermark:       req.Watermark,
		GenerationID:    genID,
	})
	if err != nil {
		s.fail(ctx, taskID, genID, err)
		return
	}

	videoURL := res.VideoURL
	if !res.Done() {
		if err := s.gens.MarkProcessing(ctx, genID, res.TaskID); err != nil {
			s.logger.Error().Err(err).Int64("generation_id", genID).Msg("video generation remote task record failed")
		}
		s.ledger.SetStatus(ctx, taskID, domain.TaskStatusProcessing, 30, "waiting for provider")
		polled, err := s.adapter.Poll(ctx, cfg, res.TaskID)
		if err != nil {
			s.fail(ctx, taskID, genID, err)
			return
		}
		videoURL = polled.VideoURL
	}

	localPath, _ := s.localizer.Localize(ctx, videoURL, "videos", "vg")

	if err := s.gens.MarkCompleted(ctx, genID, videoURL, localPath); err != nil {
		s.logger.Error().Err(err).Int64("generation_id", genID).Msg("video generation mark completed failed")
	}
	s.ledger.SetResult(ctx, taskID, map[string]any{
		"generation_id": genID,
		"video_url":     videoURL,
		"local_path":    localPath,
	})
	s.logger.Info().Int64("generation_id", genID).Str("local_path", localPath).Msg("video generation completed")
}

func (s *VideoService) fail(ctx context.Context, taskID string, genID int64, cause error) {
	msg := cause.Error()
	if err := s.gens.MarkFailed(ctx, genID, msg); err != nil {
		s.logger.Error().Err(err).Int64("generation_id", genID).Msg("video generation mark failed failed")
	}
	s.ledger.SetError(ctx, taskID, msg)
	s.logger.Error().Err(cause).Int64("generation_id", genID).Msg("video generation failed")
}
