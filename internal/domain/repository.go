package domain

import "context"

// TaskRepository defines persistence for ledger entries. Update methods must
// ignore writes against tasks already in a terminal state and report whether
// the write was applied.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	ListByResource(ctx context.Context, resourceID string) ([]Task, error)
	UpdateStatus(ctx context.Context, id string, status TaskStatus, progress int, message string) (bool, error)
	SetResult(ctx context.Context, id string, result []byte) (bool, error)
	SetError(ctx context.Context, id string, errMsg string) (bool, error)
}

// ProviderConfigRepository reads provider configurations. Mutation is an
// external concern; listing applies the single-default ordering so the first
// default row per capability is authoritative.
type ProviderConfigRepository interface {
	ListByCapability(ctx context.Context, capability Capability) ([]ProviderConfig, error)
}

// ImageGenerationRepository persists image generation records.
type ImageGenerationRepository interface {
	Create(ctx context.Context, gen *ImageGeneration) error
	GetByID(ctx context.Context, id int64) (*ImageGeneration, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, imageURL, localPath string) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// VideoGenerationRepository persists video generation records.
type VideoGenerationRepository interface {
	Create(ctx context.Context, gen *VideoGeneration) error
	GetByID(ctx context.Context, id int64) (*VideoGeneration, error)
	MarkProcessing(ctx context.Context, id int64, remoteTaskID string) error
	MarkCompleted(ctx context.Context, id int64, videoURL, localPath string) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// VideoMergeRepository persists assembly jobs.
type VideoMergeRepository interface {
	Create(ctx context.Context, merge *VideoMerge) error
	GetByID(ctx context.Context, id int64) (*VideoMerge, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, mergedURL string, duration int) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}
