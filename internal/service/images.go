// Package service orchestrates generation requests end to end: the ledger
// entry, the persisted record, provider resolution, the adapter call, and
// localization of the result. HTTP handlers stay thin on top of it.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"shortreel/internal/domain"
	"shortreel/internal/media"
	"shortreel/internal/providers"
	"shortreel/internal/providers/image"
	"shortreel/internal/tasks"
)

// ImageRequest carries one image generation request through the service.
type ImageRequest struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model"`
	Size            string   `json:"size"`
	Quality         string   `json:"quality"`
	NegativePrompt  string   `json:"negative_prompt"`
	Provider        string   `json:"provider"`
	ReferenceImages []string `json:"reference_images"`
	Storyboard      bool     `json:"storyboard"`
	ResourceID      string   `json:"resource_id"`
}

// ImageService runs image generations asynchronously against the ledger.
type ImageService struct {
	gens      domain.ImageGenerationRepository
	ledger    *tasks.Ledger
	executor  *tasks.Executor
	resolver  *providers.Resolver
	adapter   *image.Adapter
	localizer *media.Localizer
	logger    zerolog.Logger
}

func NewImageService(
	gens domain.ImageGenerationRepository,
	ledger *tasks.Ledger,
	executor *tasks.Executor,
	resolver *providers.Resolver,
	adapter *image.Adapter,
	localizer *media.Localizer,
	logger zerolog.Logger,
) *ImageService {
	return &ImageService{
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
// the provider call, and returns immediately. Progress is observable only
// through the task.
func (s *ImageService) CreateAndGenerate(ctx context.Context, req ImageRequest) (*domain.ImageGeneration, error) {
	task, err := s.ledger.Create(ctx, domain.TaskKindImageGeneration, req.ResourceID)
	if err != nil {
		return nil, err
	}

	gen := &domain.ImageGeneration{
		TaskID:   task.ID,
		Provider: req.Provider,
		Prompt:   req.Prompt,
		Model:    req.Model,
		Size:     req.Size,
		Quality:  req.Quality,
		Status:   domain.GenerationPending,
	}
	if err := s.gens.Create(ctx, gen); err != nil {
		s.ledger.SetError(ctx, task.ID, "failed to persist generation record")
		return nil, err
	}

	s.executor.Submit("image_generation", func(jobCtx context.Context) {
		s.run(jobCtx, task.ID, gen.ID, req)
	})
	return gen, nil
}

// Get returns one generation record.
func (s *ImageService) Get(ctx context.Context, id int64) (*domain.ImageGeneration, error) {
	return s.gens.GetByID(ctx, id)
}

func (s *ImageService) run(ctx context.Context, taskID string, genID int64, req ImageRequest) {
	if err := s.gens.MarkProcessing(ctx, genID); err != nil {
		s.logger.Error().Err(err).Int64("generation_id", genID).Msg("image generation mark processing failed")
	}
	s.ledger.SetStatus(ctx, taskID, domain.TaskStatusProcessing, 10, "generating image")

	capability := domain.CapabilityImage
	if req.Storyboard {
		capability = domain.CapabilityStoryboardImage
	}
	cfg, err := s.resolver.Resolve(ctx, capability, req.Model, req.Provider)
	if err != nil {
		s.fail(ctx, taskID, genID, err)
		return
	}

	result, err := s.adapter.Generate(ctx, cfg, image.Request{
		Prompt:          req.Prompt,
		Model:           req.Model,
		Size:            req.Size,
		Quality:         req.Quality,
		NegativePrompt:  req.NegativePrompt,
		ReferenceImages: req.ReferenceImages,
		GenerationID:    genID,
	})
	if err != nil {
		s.fail(ctx, taskID, genID, err)
		return
	}

	// Provider CDNs expire; the local copy is the durable one. A failed
	// localize still completes the generation with the remote URL.
	localPath, _ := s.localizer.Localize(ctx, result.ImageURL, "images", "ig")

	if err := s.gens.MarkCompleted(ctx, genID, result.ImageURL, localPath); err != nil {
		s.logger.Error().Err(err).Int64("generation_id", genID).Msg("image generation mark completed failed")
	}
	s.ledger.SetResult(ctx, taskID, map[string]any{
		"generation_id": genID,
		"image_url":     result.ImageURL,
		"local_path":    localPath,
	})
	s.logger.Info().Int64("generation_id", genID).Str("local_path", localPath).Msg("image generation completed")
}

func (s *ImageService) fail(ctx context.Context, taskID string, genID int64, cause error) {
	msg := cause.Error()
	if err := s.gens.MarkFailed(ctx, genID, msg); err != nil {
		s.logger.Error().Err(err).Int64("generation_id", genID).Msg("image generation mark failed failed")
	}
	s.ledger.SetError(ctx, taskID, msg)
	s.logger.Error().Err(cause).Int64("generation_id", genID).Msg("image generation failed")
}
