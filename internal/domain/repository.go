package domain

import "context"

// VideoRepository defines persistence for video jobs.
type VideoRepository interface {
	Create(ctx context.Context, video *Video) error
	// GetForUser returns the video only when it belongs to userID; anything
	// else is ErrNotFound so callers cannot probe for foreign jobs.
	GetForUser(ctx context.Context, videoID, userID string) (*Video, error)
	ListByUser(ctx context.Context, userID string) ([]Video, error)
	// MarkProcessing moves a pending video to processing.
	MarkProcessing(ctx context.Context, videoID string) error
	// MarkCompleted and MarkFailed write terminal states. Only the callback
	// receiver may call them.
	MarkCompleted(ctx context.Context, videoID, userID, videoURL string) error
	MarkFailed(ctx context.Context, videoID, userID, errMsg string) error
}

// GenerationRepository defines persistence for generation progress rows.
type GenerationRepository interface {
	Create(ctx context.Context, gen *Generation) error
	GetByVideoID(ctx context.Context, videoID string) (*Generation, error)
	// MarkCompleted sets status completed and progress 100.
	MarkCompleted(ctx context.Context, videoID string) error
	MarkFailed(ctx context.Context, videoID, errMsg string) error
}
