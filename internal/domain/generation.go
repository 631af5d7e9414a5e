package domain

import "time"

// GenerationStatus tracks a persisted generation record. It mirrors the task
// ledger states so the row and its task never disagree on vocabulary.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// ImageGeneration is one requested image, its inputs and its outcome. The
// remote URL is ephemeral (provider CDNs expire); LocalPath is the durable
// copy under the storage root.
type ImageGeneration struct {
	ID          int64
	TaskID      string
	Provider    string
	Prompt      string
	Model       string
	Size        string
	Quality     string
	Status      GenerationStatus
	ImageURL    string
	LocalPath   string
	ErrorMsg    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// VideoGeneration is one requested clip. RemoteTaskID holds the provider-side
// task identifier while an asynchronous generation is in flight.
type VideoGeneration struct {
	ID           int64
	TaskID       string
	Provider     string
	Prompt       string
	Model        string
	Duration     int
	AspectRatio  string
	Status       GenerationStatus
	RemoteTaskID string
	VideoURL     string
	LocalPath    string
	ErrorMsg     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
