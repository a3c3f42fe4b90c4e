package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Duration defaults and limits, in seconds.
const (
	DefaultImageDuration = 4.0
	MinImageDuration     = 1.0
	MaxImageDuration     = 10.0

	// Used when ffprobe cannot read an uploaded video's duration.
	FallbackVideoDuration = 10.0

	// Hard cap on items per clip.
	MaxMediaItems = 5
)

// MediaItem is one slot in the clip. The source file is owned exclusively
// by the job until cleanup; render order equals array order.
type MediaItem struct {
	SourcePath      string    `json:"source_path"`
	Kind            MediaKind `json:"kind"`
	DisplayDuration float64   `json:"display_duration"` // seconds, always > 0 after intake
	CaptionText     string    `json:"caption_text"`     // empty = no overlay
}

// ClipJob is one user submission, carried through the queue as JSON.
type ClipJob struct {
	ID         uuid.UUID   `json:"id"`
	SessionID  uuid.UUID   `json:"session_id"`
	MediaItems []MediaItem `json:"media_items"`
	OutputPath string      `json:"output_path"`
	CreatedAt  time.Time   `json:"created_at"`
}

// TotalDuration is the sum of all item display durations. It bounds the
// encode and becomes the output's target duration.
func (j *ClipJob) TotalDuration() float64 {
	var total float64
	for _, item := range j.MediaItems {
		total += item.DisplayDuration
	}
	return total
}

// JobRecord is the durable status row backing the poll endpoint. It is
// written only by the worker that dequeued the job.
type JobRecord struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	Status       JobStatus  `json:"status"`
	OutputPath   *string    `json:"output_path,omitempty"`
	FileSize     *int64     `json:"file_size,omitempty"`
	DurationSec  *float64   `json:"duration_sec,omitempty"`
	ItemCount    int        `json:"item_count"`
	Progress     *float64   `json:"progress,omitempty"` // 0-100, best-effort while active
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DTOs for API responses

type CreateClipResponse struct {
	Success   bool      `json:"success"`
	JobID     uuid.UUID `json:"jobId"`
	SessionID uuid.UUID `json:"sessionId"`
}

type JobStatusResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// WebhookPayload is the JSON body POSTed to the configured webhook when a
// clip finishes rendering. Delivery is fire-and-forget.
type WebhookPayload struct {
	ClipPath       string    `json:"clipPath"`
	SessionID      uuid.UUID `json:"sessionId"`
	FileSize       int64     `json:"fileSize"`
	Duration       float64   `json:"duration"`
	DateCreated    time.Time `json:"dateCreated"`
	MediaItemCount int       `json:"mediaItemCount"`
}
