package video

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"propvid/internal/domain"
	"propvid/internal/infra"
	"propvid/internal/notify"
	"propvid/internal/render"
	"propvid/internal/retry"
	"propvid/internal/storage"
)

const defaultFailureMessage = "Video generation failed"

// RenderSubmitter submits one render attempt to the external service.
type RenderSubmitter interface {
	Submit(ctx context.Context, req render.SubmitRequest) error
}

// StatusPublisher pushes terminal-state transitions to subscribers.
type StatusPublisher interface {
	Publish(ctx context.Context, ev notify.Event) error
}

// Options wires the service. Videos, Progress and Renderer are required.
type Options struct {
	Videos    domain.VideoRepository
	Progress  domain.GenerationRepository
	Renderer  RenderSubmitter
	Uploader  *storage.ImageUploader
	Publisher StatusPublisher
	Logger    infra.Logger

	// CallbackBaseURL is the public address of this API; the render service
	// reports completion to callback endpoints derived from it.
	CallbackBaseURL string
	MaxRetries      int
	AttemptTimeout  time.Duration

	// OnRetry is forwarded to the retry executor, e.g. for user notification.
	OnRetry func(attempt int, err error)
	// Sleep overrides backoff waits in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Service orchestrates the video generation pipeline: submission of new jobs
// and the callback-driven terminal transitions. It holds no mutable state; a
// single instance is shared by all requests.
type Service struct {
	videos    domain.VideoRepository
	progress  domain.GenerationRepository
	renderer  RenderSubmitter
	uploader  *storage.ImageUploader
	publisher StatusPublisher
	logger    infra.Logger

	callbackBase   string
	maxRetries     int
	attemptTimeout time.Duration
	onRetry        func(attempt int, err error)
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewService(opts Options) *Service {
	return &Service{
		videos:         opts.Videos,
		progress:       opts.Progress,
		renderer:       opts.Renderer,
		uploader:       opts.Uploader,
		publisher:      opts.Publisher,
		logger:         opts.Logger,
		callbackBase:   strings.TrimRight(opts.CallbackBaseURL, "/"),
		maxRetries:     opts.MaxRetries,
		attemptTimeout: opts.AttemptTimeout,
		onRetry:        opts.OnRetry,
		sleep:          opts.Sleep,
	}
}

// CreateVideo runs the submission pipeline: insert the pending job row plus
// its generation row, submit to the render webhook with retries, then mark
// the job processing. The returned id is usable immediately; completion
// arrives asynchronously through the callback receiver.
//
// On failure the rows keep whatever state they reached (a pending row is the
// audit trail of a failed attempt); the caller retries from scratch.
func (s *Service) CreateVideo(ctx context.Context, userID, imageURL string, tpl domain.Template) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", domain.E(domain.KindAuthentication, "please sign in to create videos", nil)
	}
	if strings.TrimSpace(imageURL) == "" {
		return "", domain.E(domain.KindValidation, "image url is required", nil)
	}
	if strings.TrimSpace(tpl.ID) == "" {
		return "", domain.E(domain.KindValidation, "template id is required", nil)
	}

	now := time.Now().UTC()
	video := &domain.Video{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: tpl.ID,
		ImagePath:  imageURL,
		Status:     domain.VideoStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return "", domain.E(domain.KindInternal, "failed to create video record", err)
	}

	gen := &domain.Generation{
		VideoID:   video.ID,
		Status:    domain.VideoStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.progress.Create(ctx, gen); err != nil {
		return "", domain.E(domain.KindInternal, "failed to create generation record", err)
	}

	req := render.SubmitRequest{
		VideoID:    video.ID,
		UserID:     userID,
		ImageURL:   imageURL,
		TemplateID: tpl.ID,
		Template: render.TemplateSpec{
			ID:          tpl.ID,
			Title:       tpl.Title,
			Prompt:      tpl.RenderPrompt(),
			Style:       tpl.RenderStyle(),
			Duration:    tpl.RenderDuration(),
			AspectRatio: tpl.AspectRatio(),
		},
		Callbacks: render.Callbacks{
			Success: s.callbackBase + "/v1/callbacks/video-complete",
			Error:   s.callbackBase + "/v1/callbacks/video-error",
		},
	}

	_, err := retry.Do(ctx, retry.Options{
		MaxRetries:     s.maxRetries,
		AttemptTimeout: s.attemptTimeout,
		OnRetry:        s.onRetry,
		Sleep:          s.sleep,
	}, func(ctx context.Context, attempt int) (struct{}, error) {
		s.logger.Debug().Str("video_id", video.ID).Int("attempt", attempt).Msg("submitting render webhook")
		return struct{}{}, s.renderer.Submit(ctx, req)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("video_id", video.ID).Msg("render webhook submission failed")
		return "", err
	}

	// Acceptance already happened; a failed status write must not fail the
	// submission, the row just stays pending until the callback lands.
	if err := s.videos.MarkProcessing(ctx, video.ID); err != nil {
		s.logger.Error().Err(err).Str("video_id", video.ID).Msg("failed to mark video processing")
	}

	return video.ID, nil
}

// CreateVideoFromUpload uploads the image first and removes it again when the
// subsequent submission fails, so a failed pipeline leaves no orphaned object
// behind.
func (s *Service) CreateVideoFromUpload(ctx context.Context, userID string, up storage.Upload, tpl domain.Template) (string, error) {
	stored, err := s.uploader.UploadImage(ctx, up, userID)
	if err != nil {
		return "", err
	}

	videoID, err := s.CreateVideo(ctx, userID, stored.URL, tpl)
	if err != nil {
		if cleanupErr := s.uploader.Cleanup(ctx, stored.Path); cleanupErr != nil {
			s.logger.Error().Err(cleanupErr).Str("path", stored.Path).Msg("failed to clean up uploaded image")
		}
		return "", err
	}
	return videoID, nil
}

// GetVideo returns the caller's video and its generation row. A missing
// generation row is tolerated; Video.Status is the source of truth anyway.
func (s *Service) GetVideo(ctx context.Context, videoID, userID string) (*domain.Video, *domain.Generation, error) {
	video, err := s.videos.GetForUser(ctx, videoID, userID)
	if err != nil {
		return nil, nil, err
	}
	gen, err := s.progress.GetByVideoID(ctx, videoID)
	if err != nil {
		s.logger.Warn().Err(err).Str("video_id", videoID).Msg("generation row missing")
		gen = nil
	}
	return video, gen, nil
}

// ListVideos returns the caller's videos, newest first.
func (s *Service) ListVideos(ctx context.Context, userID string) ([]domain.Video, error) {
	return s.videos.ListByUser(ctx, userID)
}

