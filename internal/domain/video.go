package domain

import "time"

// VideoStatus enumerates the video job lifecycle states.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// Video is a property-video generation job. VideoURL is populated only once
// the job completes; ErrorMessage only once it fails.
type Video struct {
	ID           string
	UserID       string
	TemplateID   string
	ImagePath    string
	Status       VideoStatus
	VideoURL     string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Generation mirrors a video's lifecycle with a coarse progress percentage.
// It exists for cheap polling/subscription granularity; Video.Status stays the
// source of truth when the two disagree.
type Generation struct {
	VideoID      string
	Status       VideoStatus
	Progress     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
