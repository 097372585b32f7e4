package video

import (
	"context"
	"strings"
	"time"

	"propvid/internal/domain"
	"propvid/internal/notify"
)

// Complete records a successful render reported by the external service. It
// is idempotent against at-least-once delivery: a video that is already
// completed is acknowledged without another write. The generation row is a
// best-effort projection; a failed generation update is logged, not surfaced.
//
// Terminal states are written here and in Fail only.
func (s *Service) Complete(ctx context.Context, videoID, userID, videoURL string) error {
	if err := requireCallbackIdentity(videoID, userID); err != nil {
		return err
	}
	if strings.TrimSpace(videoURL) == "" {
		return domain.E(domain.KindValidation, "videoUrl is required", nil)
	}

	video, err := s.videos.GetForUser(ctx, videoID, userID)
	if err != nil {
		return err
	}
	if video.Status == domain.VideoStatusCompleted {
		return nil
	}

	if err := s.videos.MarkCompleted(ctx, videoID, userID, videoURL); err != nil {
		return domain.E(domain.KindInternal, "failed to complete video", err)
	}
	if err := s.progress.MarkCompleted(ctx, videoID); err != nil {
		s.logger.Error().Err(err).Str("video_id", videoID).Msg("generation completion lagging behind video row")
	}

	s.publish(ctx, notify.Event{
		VideoID:  videoID,
		UserID:   userID,
		Status:   domain.VideoStatusCompleted,
		Progress: 100,
		VideoURL: videoURL,
		At:       time.Now().UTC(),
	})
	return nil
}

// Fail records a render failure. Same idempotency and projection rules as
// Complete; an empty message falls back to a generic one.
func (s *Service) Fail(ctx context.Context, videoID, userID, message string) error {
	if err := requireCallbackIdentity(videoID, userID); err != nil {
		return err
	}
	if strings.TrimSpace(message) == "" {
		message = defaultFailureMessage
	}

	video, err := s.videos.GetForUser(ctx, videoID, userID)
	if err != nil {
		return err
	}
	if video.Status == domain.VideoStatusFailed {
		return nil
	}

	if err := s.videos.MarkFailed(ctx, videoID, userID, message); err != nil {
		return domain.E(domain.KindInternal, "failed to record video error", err)
	}
	if err := s.progress.MarkFailed(ctx, videoID, message); err != nil {
		s.logger.Error().Err(err).Str("video_id", videoID).Msg("generation failure lagging behind video row")
	}

	s.publish(ctx, notify.Event{
		VideoID: videoID,
		UserID:  userID,
		Status:  domain.VideoStatusFailed,
		Error:   message,
		At:      time.Now().UTC(),
	})
	return nil
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("video_id", ev.VideoID).Msg("failed to publish status event")
	}
}

func requireCallbackIdentity(videoID, userID string) error {
	if strings.TrimSpace(videoID) == "" {
		return domain.E(domain.KindValidation, "videoId is required", nil)
	}
	if strings.TrimSpace(userID) == "" {
		return domain.E(domain.KindValidation, "userId is required", nil)
	}
	return nil
}
