package domain

import "time"

// MergeClip is one ordered input to a merge: where the clip lives and how
// long the caller says it runs. The reference may be a public URL, a URL on
// this service's own static host, or a storage-relative path.
type MergeClip struct {
	VideoURL string  `json:"video_url"`
	Duration float64 `json:"duration"`
}

// VideoMerge is one assembly request over an immutable clip list, with a
// single terminal outcome.
type VideoMerge struct {
	ID          int64
	TaskID      string
	Title       string
	Status      GenerationStatus
	Clips       []MergeClip
	MergedURL   string
	Duration    int
	ErrorMsg    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}
