package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"propvid/internal/domain"
)

// VideoRepositoryPG implements domain.VideoRepository.
type VideoRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new video repository backed by PostgreSQL.
func NewVideoRepository(pool *pgxpool.Pool) *VideoRepositoryPG {
	return &VideoRepositoryPG{pool: pool}
}

const videoColumns = `id, user_id, template_id, image_path, status, video_url, error_message, created_at, updated_at`

// Create inserts a new video record.
func (r *VideoRepositoryPG) Create(ctx context.Context, video *domain.Video) error {
	query := `
INSERT INTO videos (id, user_id, template_id, image_path, status)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := r.pool.Exec(ctx, query,
		video.ID,
		video.UserID,
		video.TemplateID,
		video.ImagePath,
		video.Status,
	)
	return err
}

// GetForUser fetches a video scoped to its owner. A video belonging to a
// different user is indistinguishable from a missing one.
func (r *VideoRepositoryPG) GetForUser(ctx context.Context, videoID, userID string) (*domain.Video, error) {
	query := `
SELECT ` + videoColumns + `
FROM videos
WHERE id = $1 AND user_id = $2;
`
	return scanVideo(r.pool.QueryRow(ctx, query, videoID, userID))
}

// ListByUser returns the user's videos, newest first.
func (r *VideoRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Video, error) {
	query := `
SELECT ` + videoColumns + `
FROM videos
WHERE user_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *video)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return videos, nil
}

// MarkProcessing moves a pending video to processing. Terminal rows are left
// untouched; only the callback receiver writes those.
func (r *VideoRepositoryPG) MarkProcessing(ctx context.Context, videoID string) error {
	query := `
UPDATE videos
SET status = 'processing', updated_at = NOW()
WHERE id = $1 AND status = 'pending';
`
	_, err := r.pool.Exec(ctx, query, videoID)
	return err
}

// MarkCompleted writes the completed terminal state and the output artifact.
func (r *VideoRepositoryPG) MarkCompleted(ctx context.Context, videoID, userID, videoURL string) error {
	query := `
UPDATE videos
SET status = 'completed', video_url = $3, updated_at = NOW()
WHERE id = $1 AND user_id = $2;
`
	_, err := r.pool.Exec(ctx, query, videoID, userID, videoURL)
	return err
}

// MarkFailed writes the failed terminal state and the error message.
func (r *VideoRepositoryPG) MarkFailed(ctx context.Context, videoID, userID, errMsg string) error {
	query := `
UPDATE videos
SET status = 'failed', error_message = $3, updated_at = NOW()
WHERE id = $1 AND user_id = $2;
`
	_, err := r.pool.Exec(ctx, query, videoID, userID, errMsg)
	return err
}

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var video domain.Video
	var videoURL, errMsg *string
	if err := row.Scan(
		&video.ID,
		&video.UserID,
		&video.TemplateID,
		&video.ImagePath,
		&video.Status,
		&videoURL,
		&errMsg,
		&video.CreatedAt,
		&video.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if videoURL != nil {
		video.VideoURL = *videoURL
	}
	if errMsg != nil {
		video.ErrorMessage = *errMsg
	}
	return &video, nil
}
