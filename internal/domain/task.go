package domain

import "time"

// TaskKind enumerates supported long-running work categories.
type TaskKind string

const (
	TaskKindImageGeneration TaskKind = "image_generation"
	TaskKindVideoGeneration TaskKind = "video_generation"
	TaskKindVideoMerge      TaskKind = "video_merge"
)

// TaskStatus enumerates task lifecycle states. Transitions only move forward:
// pending -> processing -> completed|failed. A terminal task is never reopened.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is the persisted record of a long-running unit of work. It is the only
// state a polling client observes, independent of which adapter produced it.
type Task struct {
	ID          string     `json:"id"`
	Type        TaskKind   `json:"type"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Error       string     `json:"error"`
	Result      []byte     `json:"result,omitempty"`
	ResourceID  string     `json:"resource_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
